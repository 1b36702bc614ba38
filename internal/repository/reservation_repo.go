package repository

import (
	"context"
	"errors"

	"invoicing/internal/model"

	"gorm.io/gorm"
)

type ReservationRepository struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) Create(ctx context.Context, reservation *model.Reservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

// GetByID 不存在时返回 nil, nil
func (r *ReservationRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Reservation, error) {
	if tx == nil {
		tx = r.db
	}
	var reservation model.Reservation
	err := tx.WithContext(ctx).Where("id = ?", id).First(&reservation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reservation, nil
}

func (r *ReservationRepository) ValidateTraining(ctx context.Context, userID, trainingID int64) error {
	return r.db.WithContext(ctx).Create(&model.UserTraining{UserID: userID, TrainingID: trainingID}).Error
}

// TrainingValidated 用户是否已完成该培训
func (r *ReservationRepository) TrainingValidated(ctx context.Context, tx *gorm.DB, userID, trainingID int64) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	var n int64
	err := tx.WithContext(ctx).
		Model(&model.UserTraining{}).
		Where("user_id = ? AND training_id = ?", userID, trainingID).
		Count(&n).Error
	return n > 0, err
}
