package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"invoicing/internal/clock"
	"invoicing/internal/config"
	"invoicing/internal/domain/errs"
	"invoicing/internal/infrastructure/database"
	"invoicing/internal/infrastructure/lock"
	"invoicing/internal/model"
	"invoicing/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db       *gorm.DB
	clk      *clock.Fixed
	invoices *InvoiceService
	refunds  *RefundService
	audit    *AuditService
}

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{Topic: config.KafkaTopicConfig{InvoiceDocument: "invoice_document"}},
		Invoicing: config.InvoicingConfig{
			TimeZone:           "UTC",
			Locale:             "en",
			ReferencePattern:   "YYMMnnnX[/VL]",
			OrderNumberPattern: "yyyymmmm-MM-YY",
			FootprintSecret:    "test-secret",
		},
		Audit: config.AuditConfig{BatchSize: 2},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenSQLite(":memory:", zap.NewNop())
	require.NoError(t, err)

	cfg := testConfig()
	clk := clock.NewFixed(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))
	locker := lock.NewLocalLocker()

	invoices, err := NewInvoiceService(db, locker, clk, cfg, zap.NewNop())
	require.NoError(t, err)

	return &testEnv{
		db:       db,
		clk:      clk,
		invoices: invoices,
		refunds:  NewRefundService(db, locker, clk, cfg, zap.NewNop()),
		audit:    NewAuditService(db, cfg, zap.NewNop()),
	}
}

func (e *testEnv) create(t *testing.T, req *CreateInvoiceRequest) *model.Invoice {
	t.Helper()
	inv, err := e.invoices.CreateInvoice(context.Background(), req)
	require.NoError(t, err)
	return inv
}

func itemsOf(amounts ...int64) []CreateItemRequest {
	items := make([]CreateItemRequest, 0, len(amounts))
	for _, a := range amounts {
		items = append(items, CreateItemRequest{Amount: a})
	}
	return items
}

func countRows(t *testing.T, db *gorm.DB, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(m).Count(&n).Error)
	return n
}

func TestCreateInvoice_ReferenceAndFootprint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.create(t, &CreateInvoiceRequest{UserID: 1, Items: itemsOf(100, 200)})
	second := env.create(t, &CreateInvoiceRequest{UserID: 1, Items: itemsOf(50), PaymentIntentID: "pi_1"})

	require.NotNil(t, first.Reference)
	assert.Equal(t, "2403000", *first.Reference)
	assert.Equal(t, "2403001/VL", *second.Reference)
	assert.Equal(t, int64(300), first.Total)
	assert.NotEmpty(t, first.Footprint)
	assert.NotEqual(t, first.Footprint, second.Footprint)
	for _, it := range first.Items {
		assert.NotEmpty(t, it.Footprint)
	}

	stored, err := repository.NewInvoiceRepository(env.db).GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Footprint, stored.Footprint)

	report, err := env.audit.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 2, report.Checked)

	assert.Equal(t, int64(2), countRows(t, env.db, &model.OutboxMessage{}))
}

func TestCreateInvoice_Coupon(t *testing.T) {
	env := newTestEnv(t)
	coupons := repository.NewCouponRepository(env.db)
	c := &model.Coupon{Code: "FLAT", Type: "amount_off", AmountOff: 200}
	require.NoError(t, coupons.Create(context.Background(), c))

	inv := env.create(t, &CreateInvoiceRequest{UserID: 1, Items: itemsOf(250, 250, 250, 250), CouponID: &c.ID})
	assert.Equal(t, int64(800), inv.Total)

	missing := int64(404)
	_, err := env.invoices.CreateInvoice(context.Background(), &CreateInvoiceRequest{UserID: 1, Items: itemsOf(1), CouponID: &missing})
	assert.ErrorIs(t, err, ErrCouponNotFound)
}

func TestCreateInvoice_WalletRollsBackOnFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.invoices.CreateInvoice(ctx, &CreateInvoiceRequest{UserID: 7, Items: itemsOf(500), WalletAmount: 100})
	assert.ErrorIs(t, err, repository.ErrBalanceNotEnough)
	assert.Zero(t, countRows(t, env.db, &model.Invoice{}), "失败的开票不能留下发票")
	assert.Zero(t, countRows(t, env.db, &model.InvoiceItem{}))

	accounts := repository.NewAccountRepository(env.db)
	require.NoError(t, accounts.Increase(ctx, env.db, 7, 300))

	inv := env.create(t, &CreateInvoiceRequest{UserID: 7, Items: itemsOf(500), WalletAmount: 100})
	require.NotNil(t, inv.WalletAmount)

	acc, err := accounts.GetByUserID(ctx, nil, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(200), acc.Balance)

	txs, err := repository.NewWalletTransactionRepository(env.db).ListByInvoiceID(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(-100), txs[0].Amount)

	_, err = env.invoices.CreateInvoice(ctx, &CreateInvoiceRequest{UserID: 7, Items: itemsOf(50), WalletAmount: 60})
	assert.ErrorIs(t, err, ErrWalletExceedsTotal)
}

func TestOrderNumber_UsesCreationDateAndIsStable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.create(t, &CreateInvoiceRequest{UserID: 1, Items: itemsOf(10)})
	second := env.create(t, &CreateInvoiceRequest{UserID: 1, Items: itemsOf(10)})

	n1, err := env.invoices.OrderNumber(ctx, first)
	require.NoError(t, err)
	n2, err := env.invoices.OrderNumber(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "00000000-03-24", n1)
	assert.Equal(t, "00010001-03-24", n2)

	env.clk.Set(time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC))
	env.create(t, &CreateInvoiceRequest{UserID: 1, Items: itemsOf(10)})

	again, err := env.invoices.OrderNumber(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, n2, again)

	detail, err := env.invoices.GetInvoice(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, n2, detail.OrderNumber)
	assert.Equal(t, "none", detail.RefundStatus)
}

func TestRefund_PartialThenFullWithWallet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c := &model.Coupon{Code: "FLAT", Type: "amount_off", AmountOff: 200}
	require.NoError(t, repository.NewCouponRepository(env.db).Create(ctx, c))
	inv := env.create(t, &CreateInvoiceRequest{UserID: 3, Items: itemsOf(250, 250, 250, 250), CouponID: &c.ID})

	avoirDate := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	resp, err := env.refunds.Refund(ctx, &RefundRequest{
		InvoiceID: inv.ID,
		ItemIDs:   []int64{inv.Items[0].ID, inv.Items[1].ID},
		AvoirDate: &avoirDate,
		AvoirMode: model.AvoirModeCash,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500-100), resp.Avoir.Total)
	assert.Equal(t, "partial", resp.RefundStatus)
	assert.Nil(t, resp.Avoir.Reference)
	assert.True(t, resp.Avoir.CreatedAt.Equal(avoirDate))
	assert.NotEmpty(t, resp.Avoir.Footprint)

	_, err = env.refunds.Refund(ctx, &RefundRequest{
		InvoiceID: inv.ID,
		ItemIDs:   []int64{inv.Items[1].ID},
		AvoirMode: model.AvoirModeCash,
	})
	assert.ErrorIs(t, err, errs.ErrAlreadyRefunded)

	resp, err = env.refunds.Refund(ctx, &RefundRequest{
		InvoiceID: inv.ID,
		ItemIDs:   []int64{inv.Items[2].ID, inv.Items[3].ID},
		AvoirMode: model.AvoirModeWallet,
	})
	require.NoError(t, err)
	assert.Equal(t, "full", resp.RefundStatus)

	wallet := NewWalletService(env.db)
	balance, err := wallet.GetBalance(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(400), balance)

	txs, total, err := wallet.ListTransactions(ctx, 3, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, txs, 1)
	assert.Equal(t, model.WalletTransactionCredit, txs[0].Type)
	assert.Equal(t, resp.Avoir.ID, txs[0].InvoiceID)

	none, err := wallet.GetBalance(ctx, 999)
	require.NoError(t, err)
	assert.Zero(t, none)

	_, err = env.refunds.Refund(ctx, &RefundRequest{
		InvoiceID: inv.ID,
		ItemIDs:   []int64{inv.Items[0].ID},
		AvoirMode: model.AvoirModeCash,
	})
	assert.ErrorIs(t, err, errs.ErrRefundNotAllowed)

	detail, err := env.invoices.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "full", detail.RefundStatus)
	assert.Len(t, detail.Avoirs, 2)

	report, err := env.audit.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK(), "退款单同样在链上")
	assert.Equal(t, 3, report.Checked)
}

func TestRefund_NotAllowed(t *testing.T) {
	t.Run("培训已完成", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		reservations := repository.NewReservationRepository(env.db)

		r := &model.Reservation{UserID: 4, ReservableType: model.ReservableTypeTraining, ReservableID: 8}
		require.NoError(t, reservations.Create(ctx, r))
		inv := env.create(t, &CreateInvoiceRequest{
			UserID:       4,
			Items:        itemsOf(90),
			InvoicedType: model.InvoicedTypeReservation,
			InvoicedID:   &r.ID,
		})
		require.NoError(t, reservations.ValidateTraining(ctx, 4, 8))

		_, err := env.refunds.Refund(ctx, &RefundRequest{InvoiceID: inv.ID, ItemIDs: []int64{inv.Items[0].ID}, AvoirMode: model.AvoirModeCash})
		assert.ErrorIs(t, err, errs.ErrRefundNotAllowed)
	})

	t.Run("用户已不存在", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		inv := env.create(t, &CreateInvoiceRequest{UserID: 5, Items: itemsOf(90)})
		require.NoError(t, env.db.Where("user_id = ?", 5).Delete(&model.Account{}).Error)

		_, err := env.refunds.Refund(ctx, &RefundRequest{InvoiceID: inv.ID, ItemIDs: []int64{inv.Items[0].ID}, AvoirMode: model.AvoirModeCash})
		assert.ErrorIs(t, err, errs.ErrRefundNotAllowed)
		assert.Equal(t, int64(1), countRows(t, env.db, &model.Invoice{}))
	})

	t.Run("发票不存在", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.refunds.Refund(context.Background(), &RefundRequest{InvoiceID: 99, ItemIDs: []int64{1}, AvoirMode: model.AvoirModeCash})
		assert.ErrorIs(t, err, errs.ErrInvoiceNotFound)
	})
}

func TestVerify_TamperingInvalidatesSuffix(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 4; i++ {
		ids = append(ids, env.create(t, &CreateInvoiceRequest{UserID: 1, Items: itemsOf(int64(100 * (i + 1)))}).ID)
	}

	require.NoError(t, env.db.Exec("UPDATE invoice SET total = total + 1 WHERE id = ?", ids[1]).Error)

	for i, id := range ids {
		res, err := env.audit.Verify(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, i < 1, res.Valid, "invoice %d", id)
	}

	report, err := env.audit.Audit(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[1], report.FirstBroken)
	assert.Equal(t, ids[1:], report.Invalidated)

	_, err = env.audit.Verify(ctx, 999)
	assert.ErrorIs(t, err, errs.ErrInvoiceNotFound)
}

func TestSettings_PatternOverride(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	settings := env.invoices.Settings()

	tpl, err := settings.Pattern(ctx, model.SettingInvoiceReference)
	require.NoError(t, err)
	assert.Equal(t, "YYMMnnnX[/VL]", tpl)

	anomalies, err := settings.SetPattern(ctx, model.SettingInvoiceReference, "FA-YYYY-nnnn[")
	require.NoError(t, err)
	assert.Len(t, anomalies, 1)

	inv := env.create(t, &CreateInvoiceRequest{UserID: 1, Items: itemsOf(10)})
	assert.Equal(t, "FA-2024-0000[", *inv.Reference)

	_, err = settings.SetPattern(ctx, "unknown", "x")
	assert.ErrorIs(t, err, ErrUnknownSetting)

	preview, _, err := env.invoices.RenderPreview(ctx, "YYYY-nnnn", false)
	require.NoError(t, err)
	assert.Equal(t, "2024-0001", preview)
}

func TestCreateInvoice_RepeatedReferenceIsAllowed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.invoices.Settings().SetPattern(ctx, model.SettingInvoiceReference, "FA-dd")
	require.NoError(t, err)

	first := env.create(t, &CreateInvoiceRequest{UserID: 1, Items: itemsOf(100)})
	env.clk.Advance(24 * time.Hour)
	second := env.create(t, &CreateInvoiceRequest{UserID: 1, Items: itemsOf(200)})

	assert.Equal(t, "FA-00", *first.Reference)
	assert.Equal(t, "FA-00", *second.Reference)
	assert.NotEqual(t, first.Footprint, second.Footprint)

	report, err := env.audit.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestCreateInvoice_ConcurrentChainStaysValid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const n = 12
	refs := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			inv, err := env.invoices.CreateInvoice(ctx, &CreateInvoiceRequest{UserID: user, Items: itemsOf(10, 20)})
			if assert.NoError(t, err) {
				refs <- *inv.Reference
			}
		}(int64(i%3 + 1))
	}
	wg.Wait()
	close(refs)

	seen := make(map[string]bool)
	for r := range refs {
		assert.False(t, seen[r], "duplicate reference %s", r)
		seen[r] = true
	}
	assert.Len(t, seen, n)

	report, err := env.audit.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, n, report.Checked)
}
