// Package response 统一的 HTTP 响应结构。HTTP 状态码始终为 200，业务结果看 code
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess     = 0
	CodeParamError  = 400
	CodeServerError = 500
)

// 业务错误码
const (
	CodeInvoiceNotFound    = 1001
	CodeRefundNotAllowed   = 1002
	CodeAlreadyRefunded    = 1003
	CodeUnknownItem        = 1004
	CodeIntegrityViolation = 1005
	CodeCouponNotFound     = 1006
	CodeBalanceNotEnough   = 1007
	CodeInvalidAmount      = 1008
)

type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// PageData 分页列表
type PageData struct {
	List  interface{} `json:"list"`
	Total int64       `json:"total"`
	Page  int         `json:"page,omitempty"`
}

func write(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:      code,
		Message:   message,
		Data:      data,
		RequestID: c.GetString("request_id"),
	})
}

func Success(c *gin.Context, data interface{}) {
	write(c, CodeSuccess, "success", data)
}

func SuccessPage(c *gin.Context, list interface{}, total int64, page int) {
	Success(c, PageData{List: list, Total: total, Page: page})
}

func Error(c *gin.Context, code int, message string) {
	write(c, code, message, nil)
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
