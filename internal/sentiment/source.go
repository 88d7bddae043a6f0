// Package sentiment scores items from named sources and folds them into one
// weighted market sentiment value.
package sentiment

import (
	"context"
	"errors"
)

var ErrEmptyItem = errors.New("item has no text to score")

// Item is one unit of sentiment input. Score is set when the source already
// knows the value (simulated sources, pre-scored news feeds).
type Item struct {
	ID    string
	Title string
	Text  string
	Score *float64
}

type Source interface {
	Name() string
	Fetch(ctx context.Context, limit int) ([]Item, error)
}

type Scorer interface {
	Score(ctx context.Context, item Item) (float64, error)
}

func clampUnit(v float64) float64 {
	if v != v {
		return 0
	}
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
