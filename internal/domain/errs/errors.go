package errs

import (
	"errors"
	"fmt"
)

// ============================================================================
// 发票核心错误分类
// ============================================================================

var (
	// ErrRefundNotAllowed 业务规则禁止退款（已全额退款、培训已完成、用户已不存在等）
	ErrRefundNotAllowed = errors.New("不允许退款")

	// ErrAlreadyRefunded 目标明细已经被退过款
	ErrAlreadyRefunded = errors.New("明细已退款，请勿重复操作")

	// ErrInvalidCouponType 优惠券类型无法识别，属于配置错误
	ErrInvalidCouponType = errors.New("优惠券类型无效")

	// ErrInvalidCoupon 优惠券面额超出范围
	ErrInvalidCoupon = errors.New("优惠券面额无效")

	// ErrIntegrityViolation 指纹校验失败或试图修改受指纹保护的字段
	ErrIntegrityViolation = errors.New("发票数据完整性校验失败")

	// ErrPatternSyntaxAnomaly 编号模板中存在无法解析的片段，只记录不阻断
	ErrPatternSyntaxAnomaly = errors.New("编号模板存在无法解析的片段")

	ErrInvoiceNotFound = errors.New("发票不存在")
	ErrUnknownItem     = errors.New("明细不属于该发票")
)

// Error 携带操作名和发票ID的错误包装，方便排查
type Error struct {
	Op        string
	InvoiceID int64
	Err       error
	Details   string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Err)
	if e.InvoiceID != 0 {
		msg = fmt.Sprintf("%s (invoice=%d): %v", e.Op, e.InvoiceID, e.Err)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// New 创建带上下文的错误
func New(op string, invoiceID int64, err error, details string) *Error {
	return &Error{
		Op:        op,
		InvoiceID: invoiceID,
		Err:       err,
		Details:   details,
	}
}

// IsUserVisible 判断错误是否可以直接展示给用户
func IsUserVisible(err error) bool {
	return errors.Is(err, ErrRefundNotAllowed) ||
		errors.Is(err, ErrAlreadyRefunded) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrUnknownItem)
}
