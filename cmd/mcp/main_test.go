package main

import (
	"context"
	"net/http"
	"os"
	"sync/atomic"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"market-predictor/internal/config"
	"market-predictor/internal/mcpserver"
)

func stubMCPDeps(transport string, stdioCalls, httpCalls *atomic.Int32) func() {
	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origInitTracer := initTracerFunc
	origRunStdio := runStdioFunc
	origStartHTTP := startHTTPServerFunc
	origShutdownHTTP := shutdownHTTPServerFunc
	origNotify := notifyContextFunc

	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = func() *config.Config {
		return &config.Config{
			Symbols:               []string{"SPY"},
			LogLevel:              "disabled",
			MCPTransport:          transport,
			MCPHTTPBind:           "127.0.0.1",
			MCPHTTPPort:           8090,
			MCPRequestTimeoutSecs: 5,
			MCPRateLimitPerMin:    60,
		}
	}
	initTracerFunc = func(ctx context.Context, component string) (*sdktrace.TracerProvider, trace.Tracer, error) {
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("test"), nil
	}
	runStdioFunc = func(context.Context, *mcpserver.Server) error {
		stdioCalls.Add(1)
		return nil
	}
	startHTTPServerFunc = func(*http.Server) error {
		httpCalls.Add(1)
		return http.ErrServerClosed
	}
	shutdownHTTPServerFunc = func(*http.Server, context.Context) error { return nil }
	// HTTP mode blocks on ctx, so cancel it shortly after start.
	notifyContextFunc = func(parent context.Context, _ ...os.Signal) (context.Context, context.CancelFunc) {
		ctx, cancel := context.WithCancel(parent)
		if transport == "http" {
			go func() {
				time.Sleep(20 * time.Millisecond)
				cancel()
			}()
		}
		return ctx, cancel
	}

	return func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		initTracerFunc = origInitTracer
		runStdioFunc = origRunStdio
		startHTTPServerFunc = origStartHTTP
		shutdownHTTPServerFunc = origShutdownHTTP
		notifyContextFunc = origNotify
	}
}

func runMain(t *testing.T) {
	t.Helper()
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
}

func TestMainStdio(t *testing.T) {
	var stdio, httpCalls atomic.Int32
	restore := stubMCPDeps("stdio", &stdio, &httpCalls)
	defer restore()

	runMain(t)
	if stdio.Load() != 1 || httpCalls.Load() != 0 {
		t.Fatalf("expected stdio transport only, got stdio=%d http=%d", stdio.Load(), httpCalls.Load())
	}
}

func TestMainHTTP(t *testing.T) {
	var stdio, httpCalls atomic.Int32
	restore := stubMCPDeps("http", &stdio, &httpCalls)
	defer restore()

	runMain(t)
	if stdio.Load() != 0 || httpCalls.Load() != 1 {
		t.Fatalf("expected http transport only, got stdio=%d http=%d", stdio.Load(), httpCalls.Load())
	}
}
