// Package recommend ranks fuel stations around a point or along a route.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"backend-tanquecheio/internal/scoring"
	"backend-tanquecheio/internal/shared/apperr"
	"backend-tanquecheio/internal/shared/fuel"
	"backend-tanquecheio/internal/shared/geo"
)

type Config struct {
	// MaxDetourKm discards along-route candidates farther than this from the route.
	MaxDetourKm        float64
	MinPriceConfidence float64
	DefaultRadiusKm    float64
	DefaultLimit       int
	MaxLimit           int
	// ReferencePrice is used when no ReferencePricer is set or it fails.
	ReferencePrice float64
	TankLiters     float64
}

func DefaultConfig() Config {
	return Config{
		MaxDetourKm:     5,
		DefaultRadiusKm: 10,
		DefaultLimit:    20,
		MaxLimit:        50,
		ReferencePrice:  5.75,
		TankLiters:      40,
	}
}

type Deps struct {
	Stations  StationStore
	Prices    PriceStore
	Routes    RouteProvider
	Reference ReferencePricer
	Scorer    *scoring.Scorer
}

// Engine holds no per-call state and is safe for concurrent use.
type Engine struct {
	deps Deps
	cfg  Config
}

func NewEngine(deps Deps, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.DefaultRadiusKm <= 0 {
		cfg.DefaultRadiusKm = def.DefaultRadiusKm
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = max(def.MaxLimit, cfg.DefaultLimit)
	}
	if cfg.MaxDetourKm <= 0 {
		cfg.MaxDetourKm = def.MaxDetourKm
	}
	if cfg.TankLiters <= 0 {
		cfg.TankLiters = def.TankLiters
	}
	if deps.Scorer == nil {
		deps.Scorer, _ = scoring.NewScorer(scoring.DefaultConfig())
	}
	return &Engine{deps: deps, cfg: cfg}
}

// Recommend returns candidates ranked by score, best first. An empty result
// is not an error.
func (e *Engine) Recommend(ctx context.Context, req Request) ([]Result, error) {
	req, err := e.normalize(req)
	if err != nil {
		return nil, err
	}

	var (
		candidates []Candidate
		box        geo.BBox
	)
	switch req.Mode {
	case AlongRoute:
		candidates, box, err = e.alongRoute(ctx, req)
	default:
		candidates, box, err = e.nearby(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []Result{}, nil
	}

	priced, err := e.attachPrices(ctx, candidates, box, req.FuelType)
	if err != nil {
		return nil, err
	}

	ref := e.referencePrice(ctx, req)
	rc := scoring.RouteContext{Mode: req.Mode, ReferencePrice: ref}
	results := make([]Result, 0, len(priced))
	for _, c := range priced {
		b := e.deps.Scorer.Breakdown(scoring.Input{Price: c.FuelPrice, DetourKm: *c.DetourKm}, rc)
		results = append(results, Result{
			Candidate:        c,
			Score:            b.Total,
			EstimatedSavings: math.Round(math.Max(0, ref-c.FuelPrice)*e.cfg.TankLiters*100) / 100,
			Breakdown:        b,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Candidate.StationID < results[j].Candidate.StationID
	})
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

func (e *Engine) normalize(req Request) (Request, error) {
	if err := req.Origin.Validate(); err != nil {
		return req, fmt.Errorf("%w: origin: %v", ErrInvalidRequest, err)
	}
	if req.FuelType == "" {
		req.FuelType = fuel.Gasoline
	} else if req.FuelType = fuel.Normalize(req.FuelType); req.FuelType == "" {
		return req, fmt.Errorf("%w: unknown fuel type", ErrInvalidRequest)
	}
	mode, ok := scoring.ParseMode(string(req.Mode))
	if !ok {
		return req, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, req.Mode)
	}
	req.Mode = mode
	if mode == AlongRoute {
		if req.Destination == nil {
			return req, fmt.Errorf("%w: along-route search needs a destination", ErrInvalidRequest)
		}
		if err := req.Destination.Validate(); err != nil {
			return req, fmt.Errorf("%w: destination: %v", ErrInvalidRequest, err)
		}
	}

	switch {
	case req.RadiusKm == 0:
		req.RadiusKm = e.cfg.DefaultRadiusKm
	case !(req.RadiusKm > 0) || math.IsInf(req.RadiusKm, 0):
		return req, fmt.Errorf("%w: radius must be positive", ErrInvalidRequest)
	}
	switch {
	case req.Limit == 0:
		req.Limit = e.cfg.DefaultLimit
	case req.Limit < 0:
		return req, fmt.Errorf("%w: limit must be positive", ErrInvalidRequest)
	case req.Limit > e.cfg.MaxLimit:
		req.Limit = e.cfg.MaxLimit
	}
	return req, nil
}

func (e *Engine) nearby(ctx context.Context, req Request) ([]Candidate, geo.BBox, error) {
	box := geo.BoundingBox(req.Origin, req.RadiusKm)
	found, err := e.deps.Stations.CandidatesNear(ctx, box)
	if err != nil {
		return nil, box, apperr.Dependency("station store", err)
	}

	out := make([]Candidate, 0, len(found))
	for _, c := range found {
		d := geo.Distance(req.Origin, c.Point())
		if d > req.RadiusKm {
			continue
		}
		c.DistanceKm = d
		detour := d
		c.DetourKm = &detour
		out = append(out, c)
	}
	return out, box, nil
}

func (e *Engine) alongRoute(ctx context.Context, req Request) ([]Candidate, geo.BBox, error) {
	if e.deps.Routes == nil {
		return nil, geo.BBox{}, apperr.Dependency("route provider", ErrRoutingUnavailable)
	}
	route, err := e.deps.Routes.Route(ctx, req.Origin, *req.Destination)
	if err != nil {
		return nil, geo.BBox{}, apperr.Dependency("route provider", err)
	}
	if len(route) < 2 {
		route = []geo.Point{req.Origin, *req.Destination}
	}

	box := geo.RouteBounds(route).Expand(e.cfg.MaxDetourKm)
	found, err := e.deps.Stations.CandidatesNear(ctx, box)
	if err != nil {
		return nil, box, apperr.Dependency("station store", err)
	}

	out := make([]Candidate, 0, len(found))
	for _, c := range found {
		detour := geo.DistanceToRouteKm(c.Point(), route)
		if detour > e.cfg.MaxDetourKm {
			continue
		}
		c.DistanceKm = geo.Distance(req.Origin, c.Point())
		c.DetourKm = &detour
		out = append(out, c)
	}
	return out, box, nil
}

// attachPrices prefers one bulk lookup and falls back to per-station lookups.
// Stations without a usable price are dropped. Per-station failures are
// tolerated as long as at least one lookup succeeds.
func (e *Engine) attachPrices(ctx context.Context, candidates []Candidate, box geo.BBox, fuelType string) ([]Candidate, error) {
	prices, err := e.deps.Prices.PricesNear(ctx, box, fuelType)
	if err != nil {
		prices, err = e.pricesEach(ctx, candidates, fuelType)
		if err != nil {
			return nil, err
		}
	}

	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		p, ok := prices[c.StationID]
		if !ok || !(p.Price > 0) || math.IsInf(p.Price, 0) {
			continue
		}
		if p.Confidence < e.cfg.MinPriceConfidence {
			continue
		}
		c.FuelPrice = p.Price
		c.PriceConfidence = p.Confidence
		out = append(out, c)
	}
	return out, nil
}

func (e *Engine) pricesEach(ctx context.Context, candidates []Candidate, fuelType string) (map[string]Price, error) {
	prices := make(map[string]Price, len(candidates))
	var lastErr error
	failed := 0
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := e.deps.Prices.Price(ctx, c.StationID, fuelType)
		switch {
		case err == nil:
			prices[c.StationID] = p
		case errors.Is(err, ErrPriceNotFound):
		default:
			failed++
			lastErr = err
		}
	}
	if failed == len(candidates) {
		return nil, apperr.Dependency("price store", lastErr)
	}
	return prices, nil
}

func (e *Engine) referencePrice(ctx context.Context, req Request) float64 {
	if req.ReferencePrice != nil && *req.ReferencePrice > 0 {
		return *req.ReferencePrice
	}
	if e.deps.Reference != nil {
		if ref, err := e.deps.Reference.ReferencePrice(ctx, req.FuelType); err == nil && ref > 0 {
			return ref
		}
	}
	return e.cfg.ReferencePrice
}
