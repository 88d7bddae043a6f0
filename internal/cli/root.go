// Package cli implements the predictor command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"market-predictor/internal/app"
	"market-predictor/internal/config"
	"market-predictor/internal/domain"
	"market-predictor/internal/logging"
	"market-predictor/internal/pipeline"
	"market-predictor/internal/provider"
	"market-predictor/internal/service"
	"market-predictor/pkg/tracing"
)

// Service is the prediction service surface the commands use.
type Service interface {
	Run(ctx context.Context, req service.RunRequest) (*pipeline.RunResult, error)
	Running() bool
	Symbols() []string
	Predictions() []domain.Prediction
	Summary() domain.MarketSummary
	Progress() domain.ProgressState
	SubscribeProgress(buffer int) (<-chan domain.ProgressState, func())
	Usage() []provider.QuotaUsage
}

var (
	tuningFile string
	logLevel   string
	logFormat  string

	svcHandle Service
	closeApp  func()
)

var newServiceFunc = func(ctx context.Context) (Service, func(), error) {
	_ = godotenv.Load()
	cfg := config.Load()
	if tuningFile != "" {
		cfg.TuningFile = tuningFile
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	} else {
		cfg.LogLevel = "warn"
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	} else {
		cfg.LogFormat = "console"
	}

	// Logs go to stderr so stdout stays clean for results.
	logger := logging.NewLogger(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr})
	log.Logger = logger

	tp, tracer, err := tracing.InitTracer(ctx, "cli")
	if err != nil {
		return nil, nil, fmt.Errorf("init tracer: %w", err)
	}
	a, err := app.New(ctx, cfg, tracer, logger)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, nil, err
	}
	fanoutCtx, stopFanout := context.WithCancel(ctx)
	go a.RunProgressFanout(fanoutCtx)

	return a.Service, func() {
		stopFanout()
		_ = a.Close()
		_ = tp.Shutdown(context.Background())
	}, nil
}

var rootCmd = &cobra.Command{
	Use:           "predictor",
	Short:         "Predict next-session market direction from technical and sentiment signals",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if svcHandle != nil || !needsService(cmd) {
			return nil
		}
		svc, closer, err := newServiceFunc(cmd.Context())
		if err != nil {
			return err
		}
		svcHandle, closeApp = svc, closer
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeApp != nil {
			closeApp()
			closeApp = nil
		}
		svcHandle = nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&tuningFile, "tuning", "", "Path to a tuning file (overrides PREDICTOR_TUNING_FILE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (default warn)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json (default console)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(versionCmd)
}

func needsService(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version", "help", "completion":
		return false
	case "usage":
		return usageServer == ""
	}
	return true
}

func getService() Service {
	if svcHandle == nil {
		panic("service not initialized; PersistentPreRunE not executed")
	}
	return svcHandle
}
