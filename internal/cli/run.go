package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/spf13/cobra"

	"market-predictor/internal/domain"
	"market-predictor/internal/pipeline"
	"market-predictor/internal/service"
	"market-predictor/internal/tui"
)

var (
	runPlain         bool
	runTechnicalOnly bool
)

var runCmd = &cobra.Command{
	Use:   "run [symbols...]",
	Short: "Run one prediction cycle and print the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := getService()
		req := service.RunRequest{Symbols: args, TechnicalOnly: runTechnicalOnly}

		var result *pipeline.RunResult
		var err error
		if runPlain {
			result, err = svc.Run(cmd.Context(), req)
		} else {
			result, err = runWithProgress(cmd.Context(), svc, req, cmd.ErrOrStderr())
		}
		if result != nil {
			for _, f := range result.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %s (%s)\n", f.Symbol, f.Message, f.Kind)
			}
		}
		if err != nil {
			return err
		}

		preds := svc.Predictions()
		out := cmd.OutOrStdout()
		if runPlain {
			_, err = io.WriteString(out, tui.FormatPlain(preds, svc.Summary()))
			return err
		}
		fmt.Fprintln(out, tui.RenderTable(preds, 0))
		if s := svc.Summary(); s.Bullish+s.Bearish+s.Flat > 0 {
			fmt.Fprintf(out, "Market: %s, average confidence %.0f%%\n", s.Sentiment, s.AverageConfidence)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "Plain tab separated output without progress")
	runCmd.Flags().BoolVar(&runTechnicalOnly, "technical-only", false, "Skip sentiment aggregation")
}

// runWithProgress redraws a single progress line on w while the run executes.
func runWithProgress(ctx context.Context, svc Service, req service.RunRequest, w io.Writer) (*pipeline.RunResult, error) {
	updates, cancel := svc.SubscribeProgress(32)
	defer cancel()

	type outcome struct {
		result *pipeline.RunResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := svc.Run(ctx, req)
		done <- outcome{r, err}
	}()

	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(30))
	draw := func(s domain.ProgressState) {
		fmt.Fprintf(w, "\r\033[K%s %-20s %s ETA %s", bar.ViewAs(s.Percent/100), s.Stage, s.CurrentItem, s.ETAString())
	}

	for {
		select {
		case s, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			draw(s)
		case o := <-done:
			draw(svc.Progress())
			fmt.Fprintln(w)
			if errors.Is(o.err, service.ErrRunInProgress) {
				return nil, fmt.Errorf("a run is already in progress")
			}
			return o.result, o.err
		}
	}
}
