package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend-tanquecheio/internal/scoring"
	"backend-tanquecheio/internal/shared/apperr"
	"backend-tanquecheio/internal/shared/geo"
)

type Mode = scoring.Mode

const (
	Nearby     = scoring.Nearby
	AlongRoute = scoring.AlongRoute
)

var (
	ErrInvalidRequest = fmt.Errorf("%w: invalid recommendation request", apperr.ErrValidation)
	// ErrPriceNotFound is returned by a PriceStore when a station has no
	// current price for the fuel type.
	ErrPriceNotFound = fmt.Errorf("%w: price", apperr.ErrNotFound)
	// ErrRoutingUnavailable is returned for along-route requests when no
	// RouteProvider is configured.
	ErrRoutingUnavailable = errors.New("routing unavailable")
)

// Candidate is a station considered for a recommendation. DetourKm is nil
// until the engine has measured it.
type Candidate struct {
	StationID       string   `json:"station_id"`
	Name            string   `json:"name"`
	Brand           string   `json:"brand"`
	Lat             float64  `json:"lat"`
	Lng             float64  `json:"lng"`
	FuelPrice       float64  `json:"fuel_price"`
	PriceConfidence float64  `json:"price_confidence"`
	DistanceKm      float64  `json:"distance_km"`
	DetourKm        *float64 `json:"detour_km,omitempty"`
}

func (c Candidate) Point() geo.Point {
	return geo.Point{Lat: c.Lat, Lng: c.Lng}
}

type Price struct {
	StationID  string    `json:"station_id"`
	FuelType   string    `json:"fuel_type"`
	Price      float64   `json:"price"`
	Confidence float64   `json:"confidence"`
	ReportedAt time.Time `json:"reported_at"`
}

type Result struct {
	Candidate        Candidate         `json:"candidate"`
	Score            float64           `json:"score"`
	Rank             int               `json:"rank"`
	EstimatedSavings float64           `json:"estimated_savings"`
	Breakdown        scoring.Breakdown `json:"breakdown"`
}

type Request struct {
	Origin      geo.Point
	FuelType    string
	Mode        Mode
	Destination *geo.Point
	RadiusKm    float64
	Limit       int
	// ReferencePrice overrides the ReferencePricer when set.
	ReferencePrice *float64
}

type StationStore interface {
	CandidatesNear(ctx context.Context, box geo.BBox) ([]Candidate, error)
}

type PriceStore interface {
	Price(ctx context.Context, stationID, fuelType string) (Price, error)
	PricesNear(ctx context.Context, box geo.BBox, fuelType string) (map[string]Price, error)
}

// RouteProvider returns the ordered polyline from origin to destination.
type RouteProvider interface {
	Route(ctx context.Context, origin, destination geo.Point) ([]geo.Point, error)
}

// ReferencePricer supplies the rolling market average used for savings.
type ReferencePricer interface {
	ReferencePrice(ctx context.Context, fuelType string) (float64, error)
}
