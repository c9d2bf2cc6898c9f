// Package main 现金流分析引擎启动入口
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	alertapp "github.com/wyfcoding/cashflow/internal/alert/application"
	alertinfra "github.com/wyfcoding/cashflow/internal/alert/infrastructure"
	alertifaces "github.com/wyfcoding/cashflow/internal/alert/interfaces"
	cashapp "github.com/wyfcoding/cashflow/internal/cashposition/application"
	cashinfra "github.com/wyfcoding/cashflow/internal/cashposition/infrastructure"
	cashifaces "github.com/wyfcoding/cashflow/internal/cashposition/interfaces"
	forecastapp "github.com/wyfcoding/cashflow/internal/forecast/application"
	forecastinfra "github.com/wyfcoding/cashflow/internal/forecast/infrastructure"
	forecastifaces "github.com/wyfcoding/cashflow/internal/forecast/interfaces"
	wcapp "github.com/wyfcoding/cashflow/internal/workingcapital/application"
	wcinfra "github.com/wyfcoding/cashflow/internal/workingcapital/infrastructure"
	wcifaces "github.com/wyfcoding/cashflow/internal/workingcapital/interfaces"
	"github.com/wyfcoding/cashflow/pkg/cache"
	"github.com/wyfcoding/cashflow/pkg/config"
	"github.com/wyfcoding/cashflow/pkg/database"
	"github.com/wyfcoding/cashflow/pkg/logger"
	"github.com/wyfcoding/cashflow/pkg/metrics"
	"github.com/wyfcoding/cashflow/pkg/middleware"
	"github.com/wyfcoding/cashflow/pkg/mq"
)

func main() {
	configPath := flag.String("config", "config/config.toml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Get()

	// 数据库
	db, err := database.Init(database.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Redis 可选，连不上时降级为无缓存
	var redisCache *cache.RedisCache
	if rc, err := cache.New(cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ConnTimeout:  cfg.Redis.ConnTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}); err != nil {
		log.Warn("redis unavailable, running without cache", "error", err)
	} else {
		redisCache = rc
		defer redisCache.Close()
	}

	// Kafka 可选，未配置 broker 时事件静默丢弃
	var events mq.EventPublisher = mq.NoopEventPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		if err != nil {
			log.Warn("kafka unavailable, events disabled", "error", err)
		} else {
			events = mq.NewKafkaEventPublisher(producer)
			defer producer.Close()
		}
	}

	// 指标
	m := metrics.New(cfg.ServiceName)
	if cfg.Metrics.Enabled {
		if err := m.Register(); err != nil {
			log.Error("failed to register metrics", "error", err)
			os.Exit(1)
		}
		metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	txManager := database.NewTransactionManager(db.DB)

	// 现金头寸
	accountRepo := cashinfra.NewGormAccountRepository(db.DB)
	txRepo := cashinfra.NewGormTransactionRepository(db.DB)
	cashService := cashapp.NewQueryService(accountRepo, txRepo, m,
		cashapp.Config{BurnWindowDays: cfg.Analytics.BurnWindowDays}, log)
	cashHandler := cashifaces.NewHTTPHandler(cashService)

	// 营运资金
	invoiceRepo := wcinfra.NewGormInvoiceRepository(db.DB)
	metricRepo := wcinfra.NewGormMetricRepository(db.DB)
	wcService := wcapp.NewCalculatorService(invoiceRepo, metricRepo, accountRepo, redisCache, m,
		wcapp.Config{
			InvoiceSampleSize: cfg.Analytics.InvoiceSampleSize,
			MetricCacheTTL:    time.Duration(cfg.Analytics.MetricCacheTTL) * time.Second,
		}, log)
	wcHandler := wcifaces.NewHTTPHandler(wcService)

	// 预测编排
	runRepo := forecastinfra.NewGormRunRepository(db.DB)
	forecastRepo := forecastinfra.NewGormForecastRepository(db.DB)
	workerClient := forecastinfra.NewHTTPWorkerClient(
		cfg.Worker.BaseURL, time.Duration(cfg.Worker.HandoffTimeout)*time.Second)
	orchestratorCfg := forecastapp.Config{
		HandoffTimeout:     time.Duration(cfg.Worker.HandoffTimeout) * time.Second,
		StaleAfter:         time.Duration(cfg.Worker.StaleAfter) * time.Second,
		FailAfter:          time.Duration(cfg.Worker.FailAfter) * time.Second,
		SweepInterval:      time.Duration(cfg.Worker.SweepInterval) * time.Second,
		MaxHandoffAttempts: forecastapp.DefaultConfig().MaxHandoffAttempts,
		MinHistoryDays:     cfg.Analytics.MinHistoryDays,
	}
	orchestrator := forecastapp.NewOrchestrator(
		runRepo, forecastRepo, txRepo, workerClient, txManager, redisCache, events, m, orchestratorCfg, log)
	forecastHandler := forecastifaces.NewHTTPHandler(orchestrator)

	// 告警
	alertRepo := alertinfra.NewGormAlertRepository(db.DB)
	evaluator := alertapp.NewEvaluator(
		alertRepo,
		alertinfra.NewGormMetricReader(db.DB),
		alertinfra.NewGormInvoiceReader(db.DB),
		accountRepo,
		alertinfra.NewGormForecastReader(db.DB),
		events, m, log)
	alertHandler := alertifaces.NewHTTPHandler(evaluator)

	// Gin
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.GinLoggingMiddleware(),
		middleware.GinRecoveryMiddleware(),
		middleware.GinMetricsMiddleware(m),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName, "version": cfg.Version})
	})

	api := router.Group("/api/v1")
	api.Use(middleware.GinCompanyScopeMiddleware())
	cashHandler.RegisterRoutes(api)
	wcHandler.RegisterRoutes(api)
	forecastHandler.RegisterRoutes(api)
	alertHandler.RegisterRoutes(api)

	// worker 回写走内部路由，不经公司范围中间件
	internalAPI := router.Group("/internal/v1")
	forecastHandler.RegisterInternalRoutes(internalAPI)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			middleware.GRPCLoggingInterceptor(),
			middleware.GRPCRecoveryInterceptor(),
		),
	)

	// Lifecycle
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting HTTP server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen gRPC: %w", err)
		}
		log.Info("starting gRPC server", "addr", addr)
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("gRPC server error: %w", err)
		}
		return nil
	})

	// 滞留运行对账
	g.Go(func() error {
		return orchestrator.RunSweeper(ctx)
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
			log.Info("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP shutdown error", "error", err)
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
