package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"market-predictor/internal/app"
	"market-predictor/internal/config"
	"market-predictor/internal/logging"
	"market-predictor/internal/mcpserver"
	"market-predictor/pkg/tracing"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initTracerFunc         = tracing.InitTracer
	newAppFunc             = app.New
	runStdioFunc           = func(ctx context.Context, s *mcpserver.Server) error { return s.RunStdio(ctx) }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
	notifyContextFunc      = signal.NotifyContext
)

func main() {
	_ = loadEnvFunc()
	cfg := loadConfigFunc()
	// stdout carries protocol frames in stdio mode.
	logger := logging.NewLogger(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr})
	log.Logger = logger

	ctx, stop := notifyContextFunc(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, tracer, err := initTracerFunc(ctx, "mcp")
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

	srv := mcpserver.New(tracer, a.Service, mcpserver.Options{
		Version:         tracing.Version,
		RequestTimeout:  time.Duration(cfg.MCPRequestTimeoutSecs) * time.Second,
		RateLimitPerMin: cfg.MCPRateLimitPerMin,
	}, logger)
	srv.SetRunContext(ctx)

	if cfg.MCPTransport == "http" {
		serveHTTP(ctx, cfg, srv)
		return
	}

	logger.Info().Msg("mcp server running on stdio")
	if err := runStdioFunc(ctx, srv); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("mcp stdio session ended")
	}
}

func serveHTTP(ctx context.Context, cfg *config.Config, srv *mcpserver.Server) {
	if cfg.MCPAuthToken == "" && cfg.MCPHTTPBind != "127.0.0.1" && cfg.MCPHTTPBind != "localhost" {
		log.Warn().Str("bind", cfg.MCPHTTPBind).Msg("MCP_AUTH_TOKEN not set on a non-loopback bind")
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", srv.HTTPHandler(cfg.MCPAuthToken))
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.MCPHTTPBind, cfg.MCPHTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpSrv.Addr).Msg("mcp http server listening")
		if err := startHTTPServerFunc(httpSrv); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("mcp http server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownHTTPServerFunc(httpSrv, shutdownCtx); err != nil {
		log.Error().Err(err).Msg("mcp http shutdown error")
	}
}
