package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"RescueHub/internal/channel"
	"RescueHub/internal/coord"
	"RescueHub/internal/handler"
	"RescueHub/internal/ledger"
	"RescueHub/internal/listeners"
	"RescueHub/internal/matching"
	"RescueHub/internal/models"
	"RescueHub/internal/timeline"
	"RescueHub/pkg/cache"
	"RescueHub/pkg/config"
	"RescueHub/pkg/llm"
	"RescueHub/pkg/logger"
	"RescueHub/pkg/metrics"
	"RescueHub/pkg/middleware"
	"RescueHub/pkg/notification"
	"RescueHub/pkg/scheduler"
	"RescueHub/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := config.GlobalConfig

	if err := logger.Init(cfg.Log); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	db, err := util.OpenDatabase(cfg.DBDriver, cfg.DSN)
	if err != nil {
		logger.Error("open database failed", zap.Error(err))
		os.Exit(1)
	}
	if err := models.Migrate(db); err != nil {
		logger.Error("migrate failed", zap.Error(err))
		os.Exit(1)
	}

	store, err := cache.NewCache(cache.Config{
		Type: cfg.CacheType,
		Redis: cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       int(cfg.RedisDB),
		},
	})
	if err != nil {
		logger.Error("init cache failed", zap.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	var gen llm.TextGenerator
	if cfg.LLMProvider != "" {
		gen, err = llm.New(llm.Config{
			Provider: cfg.LLMProvider,
			APIKey:   cfg.LLMApiKey,
			BaseURL:  cfg.LLMBaseURL,
			Model:    cfg.LLMModel,
		})
		if err != nil {
			logger.Warn("text generator disabled", zap.Error(err))
		}
	}

	m := metrics.NewMetrics()
	rec := timeline.NewRecorder(db)
	engine := matching.New(db, matching.Config{
		SkillInference:      cfg.SkillInference,
		DefaultRadiusMeters: cfg.DefaultSearchRadiusM,
		CacheTTL:            time.Duration(cfg.CandidateCacheTTLSec) * time.Second,
	}, store, m)
	led := ledger.New(db, engine, rec, m, int(cfg.CASRetries))
	ch := channel.New(db, rec, m,
		time.Duration(cfg.GraceWindowSec)*time.Second, int(cfg.PollBatchSize))
	co := coord.New(db, led, engine, ch, rec, gen, m, coord.Options{
		AssignMode:    cfg.AssignMode,
		RematchMinAge: time.Duration(cfg.RematchMinAgeSec) * time.Second,
		StoreRetries:  int(cfg.StoreRetries),
		StoreBackoff:  time.Duration(cfg.StoreBackoffMs) * time.Millisecond,
	})

	var notifier notification.Notifier = notification.NoopNotifier{}
	if cfg.SMSGatewayURL != "" {
		notifier = notification.NewSMSNotifier(
			notification.SMSConfig{SignName: cfg.SMSSignName, TemplateCode: cfg.SMSTemplateCode},
			notification.NewHTTPSMSClient(cfg.SMSGatewayURL),
		)
	}
	listeners.RegisterAssignmentListeners(db, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.NewSystemMonitor(m, 15*time.Second).Start(ctx)

	// 重扫优先用 cron 表达式，未配置时退化为固定间隔；
	// 启动后先补扫一轮，接住停机期间滞留的 open 案件
	sched := scheduler.New()
	defer sched.Stop()
	sched.OnceAfter(time.Duration(cfg.RematchMinAgeSec)*time.Second, scheduler.FuncJob(co.RematchSweep))
	if cfg.RematchCron != "" {
		cr := scheduler.NewCron(nil)
		if _, err := cr.AddWithCtx(cfg.RematchCron, co.RematchSweep); err != nil {
			logger.Error("schedule rematch sweep failed", zap.Error(err))
			os.Exit(1)
		}
		cr.Start()
		defer cr.Stop()
	} else {
		sched.Every(time.Duration(cfg.RematchMinAgeSec)*time.Second, scheduler.FuncJob(co.RematchSweep))
	}

	gin.SetMode(cfg.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), metrics.Middleware(m), middleware.InjectDB(db))
	router.Use(middleware.Idempotency(middleware.IdempotencyConfig{}))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group(cfg.APIPrefix)
	handler.NewHandlers(co).Register(api)

	srv := &http.Server{Addr: cfg.Addr, Handler: router}
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", zap.Error(err))
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}
