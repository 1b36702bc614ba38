package model

import (
	"time"
)

const (
	ReservableTypeTraining = "Training"
	ReservableTypeMachine  = "Machine"
	ReservableTypeEvent    = "Event"
	ReservableTypeSpace    = "Space"
)

// Reservation 预约，只保留退款校验需要的字段
type Reservation struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64     `gorm:"index;not null" json:"user_id"`
	ReservableType string    `gorm:"type:varchar(32);not null" json:"reservable_type"`
	ReservableID   int64     `gorm:"not null" json:"reservable_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Reservation) TableName() string {
	return "reservation"
}

// UserTraining 用户已通过的培训
type UserTraining struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64     `gorm:"uniqueIndex:ux_user_training;not null" json:"user_id"`
	TrainingID int64     `gorm:"uniqueIndex:ux_user_training;not null" json:"training_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (UserTraining) TableName() string {
	return "user_training"
}
