package service

import (
	"context"

	"invoicing/internal/config"
	"invoicing/internal/domain/footprint"
	"invoicing/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuditService 发票链完整性校验
type AuditService struct {
	invoiceRepo *repository.InvoiceRepository
	auditor     *footprint.Auditor
}

func NewAuditService(db *gorm.DB, cfg *config.Config, log *zap.Logger) *AuditService {
	invoiceRepo := repository.NewInvoiceRepository(db)
	return &AuditService{
		invoiceRepo: invoiceRepo,
		auditor: footprint.NewAuditor(
			invoiceRepo,
			footprint.NewHasher(cfg.Invoicing.FootprintSecret),
			cfg.Audit.BatchSize,
			log.Named("audit"),
		),
	}
}

type VerifyResult struct {
	InvoiceID int64             `json:"invoice_id"`
	Valid     bool              `json:"valid"`
	Report    *footprint.Report `json:"report"`
}

// Verify 校验一张发票：它本身以及链上在它之前的记录都必须完好
func (s *AuditService) Verify(ctx context.Context, id int64) (*VerifyResult, error) {
	if _, err := s.invoiceRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	ok, report, err := s.auditor.Verify(ctx, id)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{InvoiceID: id, Valid: ok, Report: report}, nil
}

// Audit 校验整条链
func (s *AuditService) Audit(ctx context.Context) (*footprint.Report, error) {
	return s.auditor.Audit(ctx, 0)
}
