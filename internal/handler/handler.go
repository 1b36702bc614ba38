package handler

import (
	"errors"
	"strconv"

	"invoicing/internal/domain/errs"
	"invoicing/internal/repository"
	"invoicing/internal/service"
	"invoicing/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	invoiceService *service.InvoiceService
	refundService  *service.RefundService
	auditService   *service.AuditService
	walletService  *service.WalletService
	log            *zap.Logger
}

func NewHandler(invoices *service.InvoiceService, refunds *service.RefundService, audit *service.AuditService, wallet *service.WalletService, log *zap.Logger) *Handler {
	return &Handler{
		invoiceService: invoices,
		refundService:  refunds,
		auditService:   audit,
		walletService:  wallet,
		log:            log.Named("handler"),
	}
}

// fail 把业务错误映射为响应码；内部错误只记录日志，不把细节返回给调用方
func (h *Handler) fail(c *gin.Context, err error) {
	code := response.CodeServerError
	switch {
	case errors.Is(err, errs.ErrInvoiceNotFound):
		code = response.CodeInvoiceNotFound
	case errors.Is(err, errs.ErrRefundNotAllowed):
		code = response.CodeRefundNotAllowed
	case errors.Is(err, errs.ErrAlreadyRefunded):
		code = response.CodeAlreadyRefunded
	case errors.Is(err, errs.ErrUnknownItem):
		code = response.CodeUnknownItem
	case errors.Is(err, errs.ErrIntegrityViolation):
		h.log.Error("完整性错误", zap.Error(err))
		response.BusinessError(c, response.CodeIntegrityViolation, errs.ErrIntegrityViolation.Error())
		return
	case errors.Is(err, service.ErrCouponNotFound):
		response.BusinessError(c, response.CodeCouponNotFound, err.Error())
		return
	case errors.Is(err, repository.ErrBalanceNotEnough):
		response.BusinessError(c, response.CodeBalanceNotEnough, repository.ErrBalanceNotEnough.Error())
		return
	case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrWalletExceedsTotal), errors.Is(err, errs.ErrInvalidCoupon):
		response.BusinessError(c, response.CodeInvalidAmount, err.Error())
		return
	case errors.Is(err, service.ErrUnknownSetting):
		response.ParamError(c, err.Error())
		return
	}

	if errs.IsUserVisible(err) {
		response.BusinessError(c, code, err.Error())
		return
	}
	h.log.Error("请求处理失败", zap.String("path", c.FullPath()), zap.Error(err))
	response.ServerError(c, "服务器内部错误")
}

func queryID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return id, true
}

// ============================================================
// 发票相关接口
// ============================================================

// CreateInvoice 开具发票
// POST /api/v1/invoice/create
func (h *Handler) CreateInvoice(c *gin.Context) {
	var req service.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	inv, err := h.invoiceService.CreateInvoice(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, inv)
}

// GetInvoice 发票详情（含订单号、退款状态、退款单）
// GET /api/v1/invoice/detail?id=xxx
func (h *Handler) GetInvoice(c *gin.Context) {
	id, ok := queryID(c, "id")
	if !ok {
		return
	}

	detail, err := h.invoiceService.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, detail)
}

// ListInvoices 查询用户发票
// GET /api/v1/invoice/list?user_id=xxx&page=1&page_size=20
func (h *Handler) ListInvoices(c *gin.Context) {
	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	invoices, total, err := h.invoiceService.ListInvoices(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessPage(c, invoices, total, page)
}

// VerifyInvoice 校验发票 footprint
// GET /api/v1/invoice/verify?id=xxx
func (h *Handler) VerifyInvoice(c *gin.Context) {
	id, ok := queryID(c, "id")
	if !ok {
		return
	}

	result, err := h.auditService.Verify(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// AuditChain 校验整条发票链
// GET /api/v1/invoice/audit
func (h *Handler) AuditChain(c *gin.Context) {
	report, err := h.auditService.Audit(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, report)
}

// ============================================================
// 编号模板
// ============================================================

type SetPatternRequest struct {
	Name  string `json:"name" binding:"required"`
	Value string `json:"value" binding:"required"`
}

// SetPattern 修改编号模板
// POST /api/v1/setting/pattern
func (h *Handler) SetPattern(c *gin.Context) {
	var req SetPatternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	anomalies, err := h.invoiceService.Settings().SetPattern(c.Request.Context(), req.Name, req.Value)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"anomalies": anomalies})
}

// PreviewPattern 按当前计数预览模板
// GET /api/v1/setting/preview?pattern=xxx&online=true
func (h *Handler) PreviewPattern(c *gin.Context) {
	tpl := c.Query("pattern")
	if tpl == "" {
		response.ParamError(c, "pattern 参数不能为空")
		return
	}
	online, _ := strconv.ParseBool(c.Query("online"))

	out, anomalies, err := h.invoiceService.RenderPreview(c.Request.Context(), tpl, online)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"result": out, "anomalies": anomalies})
}

// ============================================================
// 退款相关接口
// ============================================================

// Refund 开具退款单
// POST /api/v1/refund/execute
func (h *Handler) Refund(c *gin.Context) {
	var req service.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	resp, err := h.refundService.Refund(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, resp)
}

// ============================================================
// 钱包相关接口
// ============================================================

// GetBalance 查询钱包余额
// GET /api/v1/wallet/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}

	balance, err := h.walletService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"user_id": userID,
		"balance": balance,
	})
}

// ListTransactions 钱包流水
// GET /api/v1/wallet/transactions?user_id=xxx&page=1&page_size=20
// GET /api/v1/wallet/transactions?invoice_id=xxx
func (h *Handler) ListTransactions(c *gin.Context) {
	if c.Query("invoice_id") != "" {
		invoiceID, ok := queryID(c, "invoice_id")
		if !ok {
			return
		}
		list, err := h.walletService.InvoiceTransactions(c.Request.Context(), invoiceID)
		if err != nil {
			h.fail(c, err)
			return
		}
		response.SuccessPage(c, list, int64(len(list)), 0)
		return
	}

	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	list, total, err := h.walletService.ListTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessPage(c, list, total, page)
}
