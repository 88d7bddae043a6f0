package domain

import (
	"fmt"
	"time"
)

type Stage string

const (
	StageIdle                Stage = "idle"
	StageInitializing        Stage = "initializing"
	StageFetchingData        Stage = "fetching_data"
	StageProcessingTechnical Stage = "processing_technical"
	StageProcessingSentiment Stage = "processing_sentiment"
	StageCalculating         Stage = "calculating"
	StageComplete            Stage = "complete"
	StageError               Stage = "error"
)

// Terminal reports whether no further updates are expected for the run.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageError
}

type ProgressState struct {
	RunID          string    `json:"run_id,omitempty"`
	Stage          Stage     `json:"stage"`
	Percent        float64   `json:"percent"`
	CurrentItem    string    `json:"current_item"`
	ETASeconds     float64   `json:"eta_seconds"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ETAString formats the ETA as "45s", "2m 5s" or "1h 3m".
func (p ProgressState) ETAString() string {
	if p.Stage.Terminal() || p.Percent <= 0 {
		return "-"
	}
	secs := int(p.ETASeconds + 0.5)
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
	}
}
