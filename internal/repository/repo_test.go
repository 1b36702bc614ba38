package repository

import (
	"context"
	"testing"
	"time"

	"invoicing/internal/infrastructure/database"
	"invoicing/internal/model"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:", zap.NewNop())
	require.NoError(t, err)
	return db
}

func int64Ptr(v int64) *int64 { return &v }

func seedInvoice(t *testing.T, repo *InvoiceRepository, createdAt time.Time, amounts ...int64) *model.Invoice {
	t.Helper()
	inv := &model.Invoice{
		Kind:      model.InvoiceKindInvoice,
		UserID:    1,
		CreatedAt: createdAt,
	}
	for _, a := range amounts {
		inv.Items = append(inv.Items, model.InvoiceItem{Amount: a, CreatedAt: createdAt})
		inv.Total += a
	}
	require.NoError(t, repo.Create(context.Background(), inv))
	return inv
}
