package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, log *zap.Logger, mode string) *gin.Engine {
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	r := gin.New()

	r.Use(RecoveryMiddleware(log))
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		invoice := api.Group("/invoice")
		{
			invoice.POST("/create", h.CreateInvoice)
			invoice.GET("/detail", h.GetInvoice)
			invoice.GET("/list", h.ListInvoices)
			invoice.GET("/verify", h.VerifyInvoice)
			invoice.GET("/audit", h.AuditChain)
		}

		setting := api.Group("/setting")
		{
			setting.POST("/pattern", h.SetPattern)
			setting.GET("/preview", h.PreviewPattern)
		}

		refund := api.Group("/refund")
		{
			refund.POST("/execute", h.Refund)
		}

		wallet := api.Group("/wallet")
		{
			wallet.GET("/balance", h.GetBalance)
			wallet.GET("/transactions", h.ListTransactions)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
