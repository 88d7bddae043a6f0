package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"market-predictor/internal/domain"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	upStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	downStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	flatStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
	degradeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
)

func directionStyle(d domain.Direction) lipgloss.Style {
	switch d {
	case domain.DirectionUp:
		return upStyle
	case domain.DirectionDown:
		return downStyle
	default:
		return flatStyle
	}
}

func arrow(d domain.Direction) string {
	switch d {
	case domain.DirectionUp:
		return "▲"
	case domain.DirectionDown:
		return "▼"
	default:
		return "■"
	}
}

// RenderTable draws predictions as a styled table. width bounds the
// explanation column; zero means no limit.
func RenderTable(predictions []domain.Prediction, width int) string {
	if len(predictions) == 0 {
		return mutedStyle.Render("No predictions yet. Press r to run.")
	}

	cols := []string{
		fmt.Sprintf("%-8s", "SYMBOL"),
		fmt.Sprintf("%-7s", "DIR"),
		fmt.Sprintf("%8s", "CHANGE"),
		fmt.Sprintf("%6s", "CONF"),
		"EXPLANATION",
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(strings.Join(cols, "  ")))
	b.WriteString("\n")

	for _, p := range predictions {
		explanation := p.Explanation
		if limit := width - 45; limit > 3 && len(explanation) > limit {
			explanation = explanation[:limit-3] + "..."
		}
		dir := directionStyle(p.Direction).Render(fmt.Sprintf("%-7s", arrow(p.Direction)+" "+string(p.Direction)))
		row := strings.Join([]string{
			fmt.Sprintf("%-8s", p.Symbol),
			dir,
			fmt.Sprintf("%+7.2f%%", p.SignedChange),
			fmt.Sprintf("%5.0f%%", p.Confidence),
			explanation,
		}, "  ")
		if p.Degraded {
			row += " " + degradeStyle.Render("(technical only)")
		}
		b.WriteString(row)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderSummary(s domain.MarketSummary) string {
	if s.Bullish+s.Bearish+s.Flat == 0 {
		return ""
	}
	return fmt.Sprintf("Market: %s  (%d up, %d down, %d flat, avg confidence %.0f%%)",
		strings.ToUpper(s.Sentiment), s.Bullish, s.Bearish, s.Flat, s.AverageConfidence)
}

// FormatPlain renders predictions without styling for logs and pipes.
func FormatPlain(predictions []domain.Prediction, summary domain.MarketSummary) string {
	var b strings.Builder
	for _, p := range predictions {
		fmt.Fprintf(&b, "%s\t%s\t%+.2f%%\t%.0f%%\t%s\n", p.Symbol, p.Direction, p.SignedChange, p.Confidence, p.Explanation)
	}
	if line := renderSummary(summary); line != "" {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
