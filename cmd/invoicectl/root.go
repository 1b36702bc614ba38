package main

import (
	"errors"

	"invoicing/internal/clock"
	"invoicing/internal/config"
	"invoicing/internal/infrastructure/database"
	"invoicing/internal/infrastructure/lock"
	"invoicing/internal/logger"
	"invoicing/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var version = "1.0.0"

// errChainBroken 审计发现篡改时返回，进程以非零状态退出
var errChainBroken = errors.New("发票链校验失败")

type rootOptions struct {
	configPath string
	sqlitePath string
}

// env 子命令共用的依赖，按需创建
type env struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "invoicectl",
		Short:         "发票运维工具",
		Long:          "invoicectl 用于预览编号模板、审计发票 footprint 链以及计算订单号。\n数据库默认使用配置中的 MySQL，指定 --sqlite 时读取 SQLite 文件。",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "配置文件路径，为空时只使用默认值和 INVOICING_ 环境变量")
	root.PersistentFlags().StringVar(&opts.sqlitePath, "sqlite", "", "使用 SQLite 文件代替 MySQL")

	root.AddCommand(
		newRenderCmd(opts),
		newAuditCmd(opts),
		newOrderNumberCmd(opts),
		newSetPatternCmd(opts),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	// stdout 留给命令结果
	if cfg.Log.Output == "" || cfg.Log.Output == "stdout" {
		cfg.Log.Output = "stderr"
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func (o *rootOptions) open() (*env, error) {
	cfg, log, err := o.load()
	if err != nil {
		return nil, err
	}

	var db *gorm.DB
	if o.sqlitePath != "" {
		db, err = database.OpenSQLite(o.sqlitePath, log)
	} else {
		db, err = database.OpenMySQL(&cfg.MySQL, log)
	}
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, db: db}, nil
}

// invoiceService 命令行只做单进程操作，使用进程内锁
func (e *env) invoiceService() (*service.InvoiceService, error) {
	return service.NewInvoiceService(e.db, lock.NewLocalLocker(), clock.SystemClock{}, e.cfg, e.log)
}
