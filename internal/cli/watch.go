package cli

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"market-predictor/internal/tui"
)

var runProgramFunc = func(ctx context.Context, m tea.Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open the live dashboard (r runs, t toggles technical only, q quits)",
	RunE: func(cmd *cobra.Command, args []string) error {
		model := tui.NewModel(cmd.Context(), getService(), "")
		return runProgramFunc(cmd.Context(), model)
	},
}
