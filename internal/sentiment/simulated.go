package sentiment

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
)

// SimulatedSource draws item scores from a gaussian around Bias. The
// generator is seeded from the source name so every run sees the same
// sequence for the same source.
type SimulatedSource struct {
	name       string
	bias       float64
	volatility float64
}

func NewSimulatedSource(name string, bias, volatility float64) *SimulatedSource {
	if volatility < 0 {
		volatility = 0
	}
	return &SimulatedSource{name: name, bias: bias, volatility: volatility}
}

func (s *SimulatedSource) Name() string { return s.name }

func (s *SimulatedSource) Fetch(ctx context.Context, limit int) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(s.name))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	items := make([]Item, limit)
	for i := range items {
		score := clampUnit(s.bias + s.volatility*rng.NormFloat64())
		items[i] = Item{
			ID:    fmt.Sprintf("%s-%d", s.name, i+1),
			Title: fmt.Sprintf("%s item %d", s.name, i+1),
			Score: &score,
		}
	}
	return items, nil
}
