// Package footprint 计算发票的链式校验值。
//
// 每张发票的 footprint = H(按固定顺序拼接的字段 + 上一张发票的 footprint)，
// 发票明细同样各自成链。任何一条历史记录被改动，其后所有记录都无法通过校验。
package footprint

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strconv"
	"strings"
	"time"

	"invoicing/internal/model"
)

// CoveredInvoiceColumns 创建后不允许通过普通更新修改的发票列（footprint 本身只能写一次）
var CoveredInvoiceColumns = []string{
	"id", "kind", "original_invoice_id", "user_id", "reference", "total", "wallet_amount",
	"coupon_id", "payment_intent_id", "invoiced_type", "invoiced_id", "avoir_mode",
	"description", "created_at", "footprint",
}

// CoveredItemColumns 创建后不允许修改的明细列
var CoveredItemColumns = []string{
	"id", "invoice_id", "amount", "description", "subscription_id", "refunded_item_id",
	"created_at", "footprint",
}

// Hasher 配置了密钥时使用 HMAC-SHA256，否则使用 SHA-256
type Hasher struct {
	secret []byte
}

func NewHasher(secret string) *Hasher {
	h := &Hasher{}
	if secret != "" {
		h.secret = []byte(secret)
	}
	return h
}

// Invoice 计算发票 footprint，prev 为 id 紧邻的上一张发票的 footprint，第一张为空串
func (h *Hasher) Invoice(inv *model.Invoice, prev string) string {
	return h.sum(InvoiceFields(inv), prev)
}

// Item 计算明细 footprint，prev 为 id 紧邻的上一条明细的 footprint
func (h *Hasher) Item(item *model.InvoiceItem, prev string) string {
	return h.sum(ItemFields(item), prev)
}

func (h *Hasher) sum(fields []string, prev string) string {
	var mac hash.Hash
	if h.secret != nil {
		mac = hmac.New(sha256.New, h.secret)
	} else {
		mac = sha256.New()
	}
	mac.Write([]byte(strings.Join(fields, "|")))
	mac.Write([]byte("|"))
	mac.Write([]byte(prev))
	return hex.EncodeToString(mac.Sum(nil))
}

// InvoiceFields 发票的规范化字段，不含 footprint 和 updated_at
func InvoiceFields(inv *model.Invoice) []string {
	return []string{
		field("id", strconv.FormatInt(inv.ID, 10)),
		field("kind", string(inv.Kind)),
		field("original_invoice_id", optInt(inv.OriginalInvoiceID)),
		field("user_id", strconv.FormatInt(inv.UserID, 10)),
		field("reference", optString(inv.Reference)),
		field("total", strconv.FormatInt(inv.Total, 10)),
		field("wallet_amount", optInt(inv.WalletAmount)),
		field("coupon_id", optInt(inv.CouponID)),
		field("payment_intent_id", inv.PaymentIntentID),
		field("invoiced_type", inv.InvoicedType),
		field("invoiced_id", optInt(inv.InvoicedID)),
		field("avoir_mode", string(inv.AvoirMode)),
		field("description", inv.Description),
		field("created_at", timestamp(inv.CreatedAt)),
	}
}

// ItemFields 明细的规范化字段，不含 footprint 和 updated_at
func ItemFields(item *model.InvoiceItem) []string {
	return []string{
		field("id", strconv.FormatInt(item.ID, 10)),
		field("invoice_id", strconv.FormatInt(item.InvoiceID, 10)),
		field("amount", strconv.FormatInt(item.Amount, 10)),
		field("description", item.Description),
		field("subscription_id", optInt(item.SubscriptionID)),
		field("refunded_item_id", optInt(item.RefundedItemID)),
		field("created_at", timestamp(item.CreatedAt)),
	}
}

// field 输出 key=<字节长度>:value，值里出现分隔符也无法把内容挪到相邻字段
func field(key, value string) string {
	return key + "=" + strconv.Itoa(len(value)) + ":" + value
}

// Normalize 入库前把时间截到秒并转成 UTC，保证读回后计算结果一致
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return Normalize(t).Format(time.RFC3339)
}

func optInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func optString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
