// Package scoring ranks a single station offer. Scores are pure functions of
// price, detour and the market reference price, so a Scorer is safe for
// concurrent use.
package scoring

import (
	"errors"
	"math"
)

// Mode is the search mode a candidate was found in. It selects the detour penalty.
type Mode string

const (
	Nearby     Mode = "nearby"
	AlongRoute Mode = "along_route"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case "", Nearby:
		return Nearby, true
	case AlongRoute, "route":
		return AlongRoute, true
	}
	return "", false
}

const (
	maxSubScore = 10.0

	priceWeight     = 0.4
	proximityWeight = 0.3
	savingsWeight   = 0.3
)

type Config struct {
	PriceAnchor       float64
	PriceSlope        float64
	NearbyPenalty     float64
	AlongRoutePenalty float64
	SavingsMultiplier float64
}

func DefaultConfig() Config {
	return Config{
		PriceAnchor:       4.0,
		PriceSlope:        2.0,
		NearbyPenalty:     1.0,
		AlongRoutePenalty: 2.0,
		SavingsMultiplier: 2.0,
	}
}

var ErrInvalidConfig = errors.New("invalid scoring config")

type Scorer struct {
	cfg Config
}

// NewScorer rejects negative slopes and penalties, which would make the
// score grow with price or detour.
func NewScorer(cfg Config) (*Scorer, error) {
	for _, v := range []float64{cfg.PriceAnchor, cfg.PriceSlope, cfg.NearbyPenalty, cfg.AlongRoutePenalty, cfg.SavingsMultiplier} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, ErrInvalidConfig
		}
	}
	if cfg.PriceSlope < 0 || cfg.NearbyPenalty < 0 || cfg.AlongRoutePenalty < 0 || cfg.SavingsMultiplier < 0 {
		return nil, ErrInvalidConfig
	}
	return &Scorer{cfg: cfg}, nil
}

// Input is the part of a station candidate the score depends on.
type Input struct {
	Price    float64
	DetourKm float64
}

type RouteContext struct {
	Mode           Mode
	ReferencePrice float64
}

type Breakdown struct {
	PriceScore     float64 `json:"price_score"`
	ProximityScore float64 `json:"proximity_score"`
	SavingsScore   float64 `json:"savings_score"`
	Total          float64 `json:"total"`
}

// Score returns the weighted total rounded to two decimals.
func (s *Scorer) Score(in Input, rc RouteContext) float64 {
	return s.Breakdown(in, rc).Total
}

func (s *Scorer) Breakdown(in Input, rc RouteContext) Breakdown {
	price := clamp(maxSubScore - (in.Price-s.cfg.PriceAnchor)*s.cfg.PriceSlope)
	proximity := clamp(maxSubScore - in.DetourKm*s.penalty(rc.Mode))
	savings := clamp(math.Max(0, rc.ReferencePrice-in.Price) * s.cfg.SavingsMultiplier)

	total := price*priceWeight + proximity*proximityWeight + savings*savingsWeight
	return Breakdown{
		PriceScore:     round2(price),
		ProximityScore: round2(proximity),
		SavingsScore:   round2(savings),
		Total:          round2(total),
	}
}

func (s *Scorer) penalty(mode Mode) float64 {
	if mode == AlongRoute {
		return s.cfg.AlongRoutePenalty
	}
	return s.cfg.NearbyPenalty
}

// clamp bounds v to [0, 10]. NaN scores as 0.
func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > maxSubScore:
		return maxSubScore
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
