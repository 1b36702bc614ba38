package footprint

import (
	"context"
	"testing"
	"time"

	"invoicing/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	invoices []model.Invoice
	reads    int // 读到的发票条数
}

func (s *memStore) ListAfter(_ context.Context, afterID int64, limit int) ([]model.Invoice, error) {
	var out []model.Invoice
	for _, inv := range s.invoices {
		if inv.ID > afterID {
			out = append(out, inv)
			if len(out) == limit {
				break
			}
		}
	}
	s.reads += len(out)
	return out, nil
}

// buildChain 按开票流程生成 n 张带两条明细的发票
func buildChain(h *Hasher, n int) *memStore {
	s := &memStore{}
	base := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	var prevInvoice, prevItem string
	var itemID int64

	for i := 1; i <= n; i++ {
		ref := "REF-" + string(rune('A'+i))
		inv := model.Invoice{
			ID:        int64(i),
			Kind:      model.InvoiceKindInvoice,
			UserID:    7,
			Reference: &ref,
			Total:     int64(i * 1000),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		for j := 0; j < 2; j++ {
			itemID++
			item := model.InvoiceItem{
				ID:        itemID,
				InvoiceID: inv.ID,
				Amount:    int64(i * 500),
				CreatedAt: inv.CreatedAt,
			}
			item.Footprint = h.Item(&item, prevItem)
			prevItem = item.Footprint
			inv.Items = append(inv.Items, item)
		}
		inv.Footprint = h.Invoice(&inv, prevInvoice)
		prevInvoice = inv.Footprint
		s.invoices = append(s.invoices, inv)
	}
	return s
}

func TestHasher_Deterministic(t *testing.T) {
	h := NewHasher("")
	inv := &model.Invoice{ID: 1, Kind: model.InvoiceKindInvoice, Total: 100, CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	a := h.Invoice(inv, "")
	b := h.Invoice(inv, "")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, h.Invoice(inv, "prev"), "前序 footprint 必须参与计算")
	assert.NotEqual(t, a, NewHasher("secret").Invoice(inv, ""), "配置密钥后结果不同")
}

func TestHasher_IgnoresUpdatedAtAndSubSecond(t *testing.T) {
	h := NewHasher("")
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	inv := &model.Invoice{ID: 3, Total: 100, CreatedAt: created}
	want := h.Invoice(inv, "x")

	inv.UpdatedAt = time.Now()
	inv.CreatedAt = created.Add(300 * time.Millisecond).In(time.FixedZone("CET", 3600))
	inv.Footprint = "anything"

	assert.Equal(t, want, h.Invoice(inv, "x"))
}

func TestHasher_NilAndEmptyDistinctFields(t *testing.T) {
	h := NewHasher("")
	zero := int64(0)
	a := &model.Invoice{ID: 1, CouponID: &zero}
	b := &model.Invoice{ID: 1, WalletAmount: &zero}
	assert.NotEqual(t, h.Invoice(a, ""), h.Invoice(b, ""))
}

func TestHasher_FieldBoundaryIsPartOfFootprint(t *testing.T) {
	h := NewHasher("")
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &model.Invoice{ID: 1, PaymentIntentID: "pi|invoiced_type=Order", InvoicedType: "", CreatedAt: created}
	b := &model.Invoice{ID: 1, PaymentIntentID: "pi", InvoicedType: "Order|invoiced_type=", CreatedAt: created}
	assert.NotEqual(t, h.Invoice(a, ""), h.Invoice(b, ""))

	x := &model.InvoiceItem{ID: 1, Description: "a|amount=5", CreatedAt: created}
	y := &model.InvoiceItem{ID: 1, Description: "a", CreatedAt: created}
	assert.NotEqual(t, h.Item(x, "p"), h.Item(y, "p"))
}

func TestAuditor_CleanChain(t *testing.T) {
	h := NewHasher("k")
	store := buildChain(h, 7)
	auditor := NewAuditor(store, h, 3, nil)

	report, err := auditor.Audit(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 7, report.Checked)
	assert.Empty(t, report.Invalidated)

	for id := int64(1); id <= 7; id++ {
		ok, _, err := auditor.Verify(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, ok, "invoice %d", id)
	}
}

func TestAuditor_TamperInvalidatesSuffix(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(inv *model.Invoice)
	}{
		{"修改金额", func(inv *model.Invoice) { inv.Total++ }},
		{"修改编号", func(inv *model.Invoice) { r := "FORGED"; inv.Reference = &r }},
		{"修改开票时间", func(inv *model.Invoice) { inv.CreatedAt = inv.CreatedAt.Add(time.Minute) }},
		{"修改明细金额", func(inv *model.Invoice) { inv.Items[1].Amount = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHasher("")
			store := buildChain(h, 6)
			const k = 3
			tt.tamper(&store.invoices[k-1])

			auditor := NewAuditor(store, h, 2, nil)
			report, err := auditor.Audit(context.Background(), 0)
			require.NoError(t, err)
			assert.Equal(t, int64(k), report.FirstBroken)
			assert.Equal(t, []int64{3, 4, 5, 6}, report.Invalidated)

			for id := int64(1); id <= 6; id++ {
				ok, _, err := auditor.Verify(context.Background(), id)
				require.NoError(t, err)
				assert.Equal(t, id < k, ok, "invoice %d", id)
			}
		})
	}
}

func TestAuditor_DeletedRecordBreaksChain(t *testing.T) {
	h := NewHasher("")
	store := buildChain(h, 5)
	store.invoices = append(store.invoices[:1], store.invoices[2:]...)

	report, err := NewAuditor(store, h, 10, nil).Audit(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.FirstBroken)
	assert.Equal(t, []int64{3, 4, 5}, report.Invalidated)
}

func TestAuditor_VerifyResumesFromLastFullAudit(t *testing.T) {
	h := NewHasher("")
	store := buildChain(h, 6)
	auditor := NewAuditor(store, h, 2, nil)
	ctx := context.Background()

	report, err := auditor.Audit(ctx, 0)
	require.NoError(t, err)
	require.True(t, report.OK())

	// 全量审计之后追加两张
	more := buildChain(h, 8)
	store.invoices = append(store.invoices, more.invoices[6:]...)

	store.reads = 0
	ok, report, err := auditor.Verify(ctx, 8)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 8, report.Checked)
	assert.Equal(t, 2, store.reads, "只重算检查点之后的记录")

	store.invoices[7].Total++
	ok, report, err = auditor.Verify(ctx, 8)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(8), report.FirstBroken)

	// 检查点之前的 id 从头校验
	store.reads = 0
	ok, _, err = auditor.Verify(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, store.reads)

	// 全量审计发现篡改后清空检查点，Verify 回到从头校验
	store.invoices[1].Total++
	report, err = auditor.Audit(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.FirstBroken)

	ok, _, err = auditor.Verify(ctx, 6)
	require.NoError(t, err)
	assert.False(t, ok)
}
