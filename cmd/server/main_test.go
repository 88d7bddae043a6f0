package main

import (
	"context"
	"net/http"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"market-predictor/internal/app"
	"market-predictor/internal/config"
	"market-predictor/internal/job"
)

func TestMainBootstrap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var jobsStarted, served atomic.Bool
	restore := stubServerDeps(&jobsStarted, &served)
	defer restore()

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("main did not exit")
	}
	if !jobsStarted.Load() {
		t.Fatal("expected background jobs to be started")
	}
	if !served.Load() {
		t.Fatal("expected http server to be started")
	}
}

func stubServerDeps(jobsStarted, served *atomic.Bool) func() {
	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origInitTracer := initTracerFunc
	origStartJobs := startJobsFunc
	origNewRouter := newRouterFunc
	origSetupSignal := setupSignalNotify
	origWait := waitForSignalFunc
	origStartHTTP := startHTTPServerFunc
	origShutdownHTTP := shutdownHTTPServerFunc

	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = func() *config.Config {
		return &config.Config{
			Symbols:                []string{"SPY"},
			AlphaVantageDailyLimit: 25,
			AlphaVantagePerMinute:  5,
			PredictionIntervalMins: 180,
			HTTPPort:               8080,
			LogLevel:               "disabled",
		}
	}
	initTracerFunc = func(ctx context.Context, component string) (*sdktrace.TracerProvider, trace.Tracer, error) {
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("test"), nil
	}
	startJobsFunc = func(context.Context, *app.App, *job.PredictionJob, *job.QuotaPoller) {
		jobsStarted.Store(true)
	}
	newRouterFunc = func(...gin.OptionFunc) *gin.Engine { return gin.New() }
	setupSignalNotify = func(c chan<- os.Signal, sig ...os.Signal) {}
	// Give the listener goroutine a moment before shutdown.
	waitForSignalFunc = func(<-chan os.Signal) { time.Sleep(20 * time.Millisecond) }
	startHTTPServerFunc = func(*http.Server) error {
		served.Store(true)
		return http.ErrServerClosed
	}
	shutdownHTTPServerFunc = func(*http.Server, context.Context) error { return nil }

	return func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		initTracerFunc = origInitTracer
		startJobsFunc = origStartJobs
		newRouterFunc = origNewRouter
		setupSignalNotify = origSetupSignal
		waitForSignalFunc = origWait
		startHTTPServerFunc = origStartHTTP
		shutdownHTTPServerFunc = origShutdownHTTP
	}
}
