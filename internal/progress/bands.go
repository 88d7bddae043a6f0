package progress

import (
	"fmt"

	"market-predictor/internal/domain"
)

// Bands places each stage on the 0-100 scale. A stage runs from the end of
// the previous band to its own end.
type Bands struct {
	Initializing float64 `json:"initializing" mapstructure:"initializing" validate:"gte=0,lte=100"`
	FetchingData float64 `json:"fetching_data" mapstructure:"fetching_data" validate:"gte=0,lte=100"`
	Technical    float64 `json:"technical" mapstructure:"technical" validate:"gte=0,lte=100"`
	Sentiment    float64 `json:"sentiment" mapstructure:"sentiment" validate:"gte=0,lte=100"`
	Calculating  float64 `json:"calculating" mapstructure:"calculating" validate:"gte=0,lte=100"`
}

func DefaultBands() Bands {
	return Bands{
		Initializing: 5,
		FetchingData: 25,
		Technical:    50,
		Sentiment:    75,
		Calculating:  90,
	}
}

func (b Bands) Validate() error {
	ends := []float64{b.Initializing, b.FetchingData, b.Technical, b.Sentiment, b.Calculating}
	for i := 1; i < len(ends); i++ {
		if ends[i] < ends[i-1] {
			return fmt.Errorf("progress bands must be non-decreasing, got %v", ends)
		}
	}
	if b.Calculating > 100 {
		return fmt.Errorf("progress bands must end at or below 100, got %v", b.Calculating)
	}
	return nil
}

// Range returns the start and end percent of stage.
func (b Bands) Range(stage domain.Stage) (float64, float64) {
	switch stage {
	case domain.StageInitializing:
		return 0, b.Initializing
	case domain.StageFetchingData:
		return b.Initializing, b.FetchingData
	case domain.StageProcessingTechnical:
		return b.FetchingData, b.Technical
	case domain.StageProcessingSentiment:
		return b.Technical, b.Sentiment
	case domain.StageCalculating:
		return b.Sentiment, b.Calculating
	case domain.StageComplete:
		return 100, 100
	default:
		return 0, 0
	}
}

// At interpolates done/total of the way through stage's band.
func (b Bands) At(stage domain.Stage, done, total int) float64 {
	lo, hi := b.Range(stage)
	if total <= 0 {
		return hi
	}
	frac := float64(done) / float64(total)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return lo + (hi-lo)*frac
}
