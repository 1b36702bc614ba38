package service

import (
	"context"
	"errors"
	"fmt"

	"invoicing/internal/config"
	"invoicing/internal/domain/errs"
	"invoicing/internal/domain/pattern"
	"invoicing/internal/model"
	"invoicing/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrUnknownSetting = errors.New("不支持的设置项")

// SettingsService 编号模板的读写
// setting 表里没有时使用配置文件中的默认模板
type SettingsService struct {
	repo     *repository.SettingRepository
	renderer *pattern.Renderer
	defaults map[string]string
	log      *zap.Logger
}

func NewSettingsService(db *gorm.DB, renderer *pattern.Renderer, cfg *config.InvoicingConfig, log *zap.Logger) *SettingsService {
	return &SettingsService{
		repo:     repository.NewSettingRepository(db),
		renderer: renderer,
		defaults: map[string]string{
			model.SettingInvoiceReference:   cfg.ReferencePattern,
			model.SettingInvoiceOrderNumber: cfg.OrderNumberPattern,
		},
		log: log.Named("settings"),
	}
}

// Pattern 读取模板
func (s *SettingsService) Pattern(ctx context.Context, name string) (string, error) {
	def, ok := s.defaults[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSetting, name)
	}

	value, found, err := s.repo.Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("读取设置失败: %w", err)
	}
	if !found || value == "" {
		return def, nil
	}
	return value, nil
}

// SetPattern 保存模板
// 无法解析的片段只记录告警，不拒绝保存
func (s *SettingsService) SetPattern(ctx context.Context, name, value string) ([]pattern.Anomaly, error) {
	if _, ok := s.defaults[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSetting, name)
	}

	anomalies := s.renderer.Check(value)
	for _, a := range anomalies {
		s.log.Warn(errs.ErrPatternSyntaxAnomaly.Error(),
			zap.String("setting", name),
			zap.String("pattern", value),
			zap.Int("offset", a.Offset),
			zap.String("fragment", a.Fragment),
			zap.String("reason", a.Reason),
		)
	}

	if err := s.repo.Set(ctx, name, value); err != nil {
		return anomalies, fmt.Errorf("保存设置失败: %w", err)
	}
	s.log.Info("编号模板已更新", zap.String("setting", name), zap.String("pattern", value))
	return anomalies, nil
}
