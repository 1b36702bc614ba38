package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"invoicing/internal/clock"
	"invoicing/internal/config"
	"invoicing/internal/handler"
	"invoicing/internal/infrastructure/cache"
	"invoicing/internal/infrastructure/database"
	"invoicing/internal/infrastructure/lock"
	"invoicing/internal/infrastructure/mq"
	"invoicing/internal/job"
	"invoicing/internal/logger"
	"invoicing/internal/service"
	"invoicing/pkg/idgen"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "服务异常退出: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 加载配置
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// 初始化 ID 生成器
	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		return err
	}

	// 初始化 MySQL
	db, err := database.OpenMySQL(&cfg.MySQL, log)
	if err != nil {
		return err
	}

	// 初始化 Redis，发票链锁依赖它在多实例间互斥
	redisClient, err := cache.NewRedis(&cfg.Redis, log)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// 初始化 Kafka
	producer, err := mq.NewKafkaProducer(&cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer producer.Close()

	chainLockTTL := time.Duration(cfg.Invoicing.ChainLockSeconds) * time.Second
	locker := lock.NewRedisLocker(redisClient, chainLockTTL)
	clk := clock.SystemClock{}

	invoiceService, err := service.NewInvoiceService(db, locker, clk, cfg, log)
	if err != nil {
		return err
	}
	refundService := service.NewRefundService(db, locker, clk, cfg, log)
	auditService := service.NewAuditService(db, cfg, log)
	walletService := service.NewWalletService(db)

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(db, producer, &cfg.Outbox, log)
	go outboxSender.Start(ctx)

	auditJob := job.NewChainAuditJob(auditService, time.Duration(cfg.Audit.IntervalSeconds)*time.Second, log)
	go auditJob.Start(ctx)

	// 设置路由
	h := handler.NewHandler(invoiceService, refundService, auditService, walletService, log)
	router := handler.SetupRouter(h, log, cfg.Server.Mode)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("服务启动失败: %w", err)
	}

	log.Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("服务关闭异常", zap.Error(err))
	}

	log.Info("服务已关闭")
	return nil
}
