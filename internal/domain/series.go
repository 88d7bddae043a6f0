package domain

import "time"

type PricePoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// PriceSeries is ordered most recent first.
type PriceSeries struct {
	Symbol    string       `json:"symbol"`
	Provider  string       `json:"provider"`
	Points    []PricePoint `json:"points"`
	FetchedAt time.Time    `json:"fetched_at"`
}

func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// Closes returns closing prices oldest first, the order indicator math expects.
func (s *PriceSeries) Closes() []float64 {
	n := s.Len()
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	for i, p := range s.Points {
		out[n-1-i] = p.Close
	}
	return out
}

// Volumes returns volumes oldest first.
func (s *PriceSeries) Volumes() []float64 {
	n := s.Len()
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	for i, p := range s.Points {
		out[n-1-i] = p.Volume
	}
	return out
}
