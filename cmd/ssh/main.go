package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	gossh "golang.org/x/crypto/ssh"

	"market-predictor/internal/app"
	"market-predictor/internal/config"
	applog "market-predictor/internal/logging"
	"market-predictor/internal/tui"
	"market-predictor/pkg/tracing"
)

var (
	loadEnvFunc       = godotenv.Load
	loadConfigFunc    = config.Load
	initTracerFunc    = tracing.InitTracer
	newAppFunc        = app.New
	startFanoutFunc   = func(ctx context.Context, a *app.App) { go a.RunProgressFanout(ctx) }
	newWishServerFunc = wish.NewServer
	setupSignalNotify = ossignal.Notify
	waitForSignalFunc = func(quit <-chan os.Signal) { <-quit }
)

func main() {
	_ = loadEnvFunc()
	cfg := loadConfigFunc()
	logger := applog.NewLogger(applog.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log.Logger = logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, tracer, err := initTracerFunc(ctx, "ssh")
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
	startFanoutFunc(ctx, a)

	allowed, err := authorizedFingerprints(cfg.SSHAuthorizedKeys)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid SSH_AUTHORIZED_KEYS")
	}
	if len(allowed) == 0 {
		logger.Warn().Msg("SSH_AUTHORIZED_KEYS is empty, every login will be denied")
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.SSHPort)

	srv, err := newWishServerFunc(
		wish.WithAddress(addr),
		wish.WithHostKeyPath(cfg.SSHHostKeyPath),
		wish.WithPublicKeyAuth(func(ctx ssh.Context, key ssh.PublicKey) bool {
			fingerprint := gossh.FingerprintSHA256(key)
			if !allowed[fingerprint] {
				logger.Warn().Str("user", ctx.User()).Str("fingerprint", fingerprint).Msg("ssh auth denied")
				return false
			}
			logger.Info().Str("user", ctx.User()).Str("fingerprint", fingerprint).Msg("ssh auth accepted")
			return true
		}),
		wish.WithMiddleware(
			bubbletea.Middleware(func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
				// Runs started from a session outlive it; the service owns them.
				model := tui.NewModel(ctx, a.Service, s.User())
				pty, _, _ := s.Pty()
				model.SetSize(pty.Window.Width, pty.Window.Height)

				return model, []tea.ProgramOption{tea.WithAltScreen()}
			}),
			logging.Middleware(),
		),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create SSH server")
	}

	if srv != nil {
		go func() {
			logger.Info().Str("addr", addr).Msg("ssh server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
				logger.Error().Err(err).Msg("ssh server stopped")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	logger.Info().Msg("shutting down ssh server")

	cancel()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("ssh server shutdown error")
		}
	}

	logger.Info().Msg("ssh server exited")
}
