package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"invoicing/internal/domain/errs"
	"invoicing/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var t0 = time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

func TestInvoiceRepository_CreateAndGet(t *testing.T) {
	repo := NewInvoiceRepository(newTestDB(t))
	ctx := context.Background()

	inv := seedInvoice(t, repo, t0, 100, 200)
	require.NotZero(t, inv.ID)
	for _, it := range inv.Items {
		assert.NotZero(t, it.ID)
		assert.Equal(t, inv.ID, it.InvoiceID)
	}

	got, err := repo.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.Total)
	assert.True(t, got.CreatedAt.Equal(t0))
	require.Len(t, got.Items, 2)
	assert.Less(t, got.Items[0].ID, got.Items[1].ID)

	_, err = repo.GetByID(ctx, 999)
	assert.ErrorIs(t, err, errs.ErrInvoiceNotFound)
}

func TestInvoiceRepository_Counts(t *testing.T) {
	repo := NewInvoiceRepository(newTestDB(t))
	ctx := context.Background()

	seedInvoice(t, repo, t0.AddDate(0, 0, -1))
	second := seedInvoice(t, repo, t0)
	seedInvoice(t, repo, t0.Add(2*time.Hour))

	dayStart := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	n, err := repo.CountCreatedBetween(ctx, dayStart, dayStart.AddDate(0, 0, 1), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.CountCreatedBetween(ctx, dayStart, dayStart.AddDate(0, 0, 1), second.ID+1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.CountAll(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = repo.CountAll(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInvoiceRepository_FootprintWriteOnce(t *testing.T) {
	repo := NewInvoiceRepository(newTestDB(t))
	ctx := context.Background()

	first := seedInvoice(t, repo, t0, 100)
	second := seedInvoice(t, repo, t0, 50)

	fp, err := repo.PredecessorFootprint(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, fp)

	require.NoError(t, repo.SetFootprint(ctx, first.ID, "fp-1"))
	err = repo.SetFootprint(ctx, first.ID, "forged")
	assert.ErrorIs(t, err, errs.ErrIntegrityViolation)

	fp, err = repo.PredecessorFootprint(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "fp-1", fp)

	require.NoError(t, repo.SetItemFootprint(ctx, first.Items[0].ID, "item-1"))
	assert.ErrorIs(t, repo.SetItemFootprint(ctx, first.Items[0].ID, "x"), errs.ErrIntegrityViolation)

	fp, err = repo.PredecessorItemFootprint(ctx, second.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "item-1", fp)

	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "fp-1", got.Footprint)
}

func TestInvoiceRepository_UpdateFieldsRejectsCoveredColumns(t *testing.T) {
	repo := NewInvoiceRepository(newTestDB(t))
	ctx := context.Background()
	inv := seedInvoice(t, repo, t0, 100)

	for _, col := range []string{"total", "reference", "footprint", "created_at"} {
		err := repo.UpdateFields(ctx, inv.ID, map[string]interface{}{col: "x"})
		assert.ErrorIs(t, err, errs.ErrIntegrityViolation, col)
	}

	later := t0.Add(time.Hour)
	require.NoError(t, repo.UpdateFields(ctx, inv.ID, map[string]interface{}{"updated_at": later}))
	assert.ErrorIs(t, repo.UpdateFields(ctx, 999, map[string]interface{}{"updated_at": later}), errs.ErrInvoiceNotFound)
}

func TestInvoiceRepository_RefundedItemIDsAndAvoirs(t *testing.T) {
	db := newTestDB(t)
	repo := NewInvoiceRepository(db)
	ctx := context.Background()

	inv := seedInvoice(t, repo, t0, 100, 200, 300)
	avoir := &model.Invoice{
		Kind:              model.InvoiceKindAvoir,
		OriginalInvoiceID: int64Ptr(inv.ID),
		UserID:            inv.UserID,
		Total:             100,
		CreatedAt:         t0.Add(time.Hour),
		Items: []model.InvoiceItem{
			{Amount: 100, RefundedItemID: int64Ptr(inv.Items[0].ID), CreatedAt: t0.Add(time.Hour)},
		},
	}
	require.NoError(t, repo.Create(ctx, avoir))

	refunded, err := repo.RefundedItemIDs(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{inv.Items[0].ID: true}, refunded)

	avoirs, err := repo.ListAvoirs(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, avoirs, 1)
	assert.Equal(t, avoir.ID, avoirs[0].ID)
	assert.Len(t, avoirs[0].Items, 1)

	// 同一条明细不能被第二张退款单引用
	dup := &model.Invoice{
		Kind:              model.InvoiceKindAvoir,
		OriginalInvoiceID: int64Ptr(inv.ID),
		UserID:            inv.UserID,
		CreatedAt:         t0.Add(2 * time.Hour),
		Items: []model.InvoiceItem{
			{Amount: 100, RefundedItemID: int64Ptr(inv.Items[0].ID), CreatedAt: t0},
		},
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		return repo.WithTx(tx).Create(ctx, dup)
	})
	assert.Error(t, err)
}

func TestInvoiceRepository_ListAfterAndByUser(t *testing.T) {
	repo := NewInvoiceRepository(newTestDB(t))
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, seedInvoice(t, repo, t0.Add(time.Duration(i)*time.Minute), 10).ID)
	}

	batch, err := repo.ListAfter(ctx, ids[1], 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, ids[2], batch[0].ID)
	assert.Equal(t, ids[3], batch[1].ID)
	assert.Len(t, batch[0].Items, 1)

	list, total, err := repo.ListByUserID(ctx, 1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, list, 2)
	assert.Equal(t, ids[4], list[0].ID)
}

func TestInvoiceRepository_SetFootprintSQL(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	repo := NewInvoiceRepository(db)

	query := regexp.QuoteMeta("UPDATE `invoice` SET `footprint`=? WHERE id = ? AND footprint = ?")
	mock.ExpectExec(query).WithArgs("abc", int64(5), "").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("abc", int64(5), "").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SetFootprint(context.Background(), 5, "abc"))
	assert.ErrorIs(t, repo.SetFootprint(context.Background(), 5, "abc"), errs.ErrIntegrityViolation)
	assert.NoError(t, mock.ExpectationsWereMet())
}
