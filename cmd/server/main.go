package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"market-predictor/internal/app"
	"market-predictor/internal/config"
	"market-predictor/internal/handler"
	"market-predictor/internal/job"
	"market-predictor/internal/logging"
	"market-predictor/pkg/tracing"

	_ "market-predictor/docs"
)

var (
	loadEnvFunc    = godotenv.Load
	loadConfigFunc = config.Load
	initTracerFunc = tracing.InitTracer
	newAppFunc     = app.New
	startJobsFunc  = func(ctx context.Context, a *app.App, j *job.PredictionJob, q *job.QuotaPoller) {
		go a.RunProgressFanout(ctx)
		go q.Start(ctx)
		go j.Start(ctx)
	}
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Market Predictor API
// @version         1.0
// @description     Daily market direction predictions from technical and sentiment signals.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        X-API-Key
func main() {
	_ = loadEnvFunc()

	cfg := loadConfigFunc()
	logger := logging.NewLogger(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log.Logger = logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, tracer, err := initTracerFunc(ctx, "server")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	a, err := newAppFunc(ctx, cfg, tracer, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build prediction stack")
	}
	defer a.Close()

	interval := time.Duration(cfg.PredictionIntervalMins) * time.Minute
	predictionJob := job.NewPredictionJob(tracer, a.Service, interval, cfg.RunOnStart, logger)
	quotaPoller := job.NewQuotaPoller(tracer, a.Quota, a.Metrics, time.Minute, logger)
	startJobsFunc(ctx, a, predictionJob, quotaPoller)

	h := handler.New(tracer, a.Service, logger)
	h.SetAPIKey(cfg.APIAuthToken)
	h.SetMetricsHandler(a.Metrics.Handler())
	h.SetRunContext(ctx)

	r := newRouterFunc()
	r.Use(otelgin.Middleware(tracing.ServiceName))

	h.RegisterRoutes(r)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: r,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Strs("symbols", cfg.Symbols).Msg("http server listening")
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("listen failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	logger.Info().Msg("shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		logger.WithLevel(zerolog.FatalLevel).Err(err).Msg("server forced to shutdown")
		return
	}

	logger.Info().Msg("server exiting")
}
