// Package station reads stations and prices from Postgres for the
// recommendation engine and accepts new price reports.
package station

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"backend-tanquecheio/internal/db"
	"backend-tanquecheio/internal/recommend"
	"backend-tanquecheio/internal/shared/apperr"
	"backend-tanquecheio/internal/shared/fuel"
	"backend-tanquecheio/internal/shared/geo"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const defaultConfidence = 0.5

const storeOp = "station store"

var (
	ErrStationNotFound = fmt.Errorf("%w: station", apperr.ErrNotFound)
	ErrInvalidReport   = fmt.Errorf("%w: invalid price report", apperr.ErrValidation)
)

// Service implements recommend.StationStore and recommend.PriceStore.
// Prices older than maxPriceAge are ignored.
type Service struct {
	db          db.Querier
	maxPriceAge time.Duration
	now         func() time.Time
}

func NewService(db db.Querier, maxPriceAge time.Duration) *Service {
	return &Service{db: db, maxPriceAge: maxPriceAge, now: time.Now}
}

func (s *Service) cutoff() time.Time {
	if s.maxPriceAge <= 0 {
		return time.Time{}
	}
	return s.now().Add(-s.maxPriceAge)
}

// CandidatesNear lists active stations inside box, including boxes that wrap
// the antimeridian.
func (s *Service) CandidatesNear(ctx context.Context, box geo.BBox) ([]recommend.Candidate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, COALESCE(brand, ''), latitude, longitude
		FROM gas_stations
		WHERE is_active
		  AND latitude BETWEEN $1 AND $2
		  AND (longitude BETWEEN $3 AND $4 OR ($3 > $4 AND (longitude >= $3 OR longitude <= $4)))
	`, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng)
	if err != nil {
		return nil, apperr.Dependency(storeOp, err)
	}
	defer rows.Close()

	candidates := []recommend.Candidate{}
	for rows.Next() {
		var c recommend.Candidate
		if err := rows.Scan(&c.StationID, &c.Name, &c.Brand, &c.Lat, &c.Lng); err != nil {
			return nil, apperr.Dependency(storeOp, err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Dependency(storeOp, err)
	}
	return candidates, nil
}

func (s *Service) Price(ctx context.Context, stationID, fuelType string) (recommend.Price, error) {
	p := recommend.Price{StationID: stationID, FuelType: fuelType}
	err := s.db.QueryRow(ctx, `
		SELECT price, COALESCE(source_confidence, 0.5), reported_at
		FROM fuel_prices
		WHERE gas_station_id=$1 AND fuel_type=$2 AND is_active AND reported_at >= $3
		ORDER BY reported_at DESC
		LIMIT 1
	`, stationID, fuelType, s.cutoff()).Scan(&p.Price, &p.Confidence, &p.ReportedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return recommend.Price{}, recommend.ErrPriceNotFound
	}
	if err != nil {
		return recommend.Price{}, apperr.Dependency(storeOp, err)
	}
	return p, nil
}

// PricesNear returns the latest fresh price per station inside box.
func (s *Service) PricesNear(ctx context.Context, box geo.BBox, fuelType string) (map[string]recommend.Price, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT ON (fp.gas_station_id)
		       fp.gas_station_id, fp.price, COALESCE(fp.source_confidence, 0.5), fp.reported_at
		FROM fuel_prices fp
		JOIN gas_stations gs ON gs.id = fp.gas_station_id
		WHERE fp.fuel_type=$1 AND fp.is_active AND fp.reported_at >= $2
		  AND gs.is_active
		  AND gs.latitude BETWEEN $3 AND $4
		  AND (gs.longitude BETWEEN $5 AND $6 OR ($5 > $6 AND (gs.longitude >= $5 OR gs.longitude <= $6)))
		ORDER BY fp.gas_station_id, fp.reported_at DESC
	`, fuelType, s.cutoff(), box.MinLat, box.MaxLat, box.MinLng, box.MaxLng)
	if err != nil {
		return nil, apperr.Dependency(storeOp, err)
	}
	defer rows.Close()

	prices := map[string]recommend.Price{}
	for rows.Next() {
		p := recommend.Price{FuelType: fuelType}
		if err := rows.Scan(&p.StationID, &p.Price, &p.Confidence, &p.ReportedAt); err != nil {
			return nil, apperr.Dependency(storeOp, err)
		}
		prices[p.StationID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Dependency(storeOp, err)
	}
	return prices, nil
}

// AveragePrice is the mean fresh price for fuelType reported since since.
func (s *Service) AveragePrice(ctx context.Context, fuelType string, since time.Time) (float64, error) {
	var avg pgtype.Float8
	err := s.db.QueryRow(ctx, `
		SELECT AVG(price)
		FROM fuel_prices
		WHERE fuel_type=$1 AND is_active AND reported_at >= $2
	`, fuelType, since).Scan(&avg)
	if err != nil {
		return 0, apperr.Dependency(storeOp, err)
	}
	if !avg.Valid {
		return 0, recommend.ErrPriceNotFound
	}
	return avg.Float64, nil
}

func (s *Service) GetStation(ctx context.Context, id string) (Station, error) {
	var st Station
	var confidence pgtype.Float8
	err := s.db.QueryRow(ctx, `
		SELECT id, name, COALESCE(brand, ''), COALESCE(address, ''), latitude, longitude,
		       data_confidence, is_active, created_at
		FROM gas_stations WHERE id=$1
	`, id).Scan(&st.ID, &st.Name, &st.Brand, &st.Address, &st.Lat, &st.Lng, &confidence, &st.IsActive, &st.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Station{}, ErrStationNotFound
	}
	if err != nil {
		return Station{}, apperr.Dependency(storeOp, err)
	}
	st.Confidence = defaultConfidence
	if confidence.Valid {
		st.Confidence = confidence.Float64
	}
	return st, nil
}

// ReportPrice stores a new price and retires the previous active price for
// the same station and fuel type.
func (s *Service) ReportPrice(ctx context.Context, in PriceReport) (PriceReport, error) {
	if in.FuelType = fuel.Normalize(in.FuelType); in.FuelType == "" {
		return PriceReport{}, fmt.Errorf("%w: unknown fuel type", ErrInvalidReport)
	}
	if !(in.Price > 0) || math.IsInf(in.Price, 0) {
		return PriceReport{}, fmt.Errorf("%w: price must be positive", ErrInvalidReport)
	}
	if in.Confidence == 0 {
		in.Confidence = defaultConfidence
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return PriceReport{}, fmt.Errorf("%w: confidence must be within [0,1]", ErrInvalidReport)
	}
	if in.Source == "" {
		in.Source = "user"
	}
	if in.ReportedAt.IsZero() {
		in.ReportedAt = s.now()
	}
	if _, err := s.GetStation(ctx, in.StationID); err != nil {
		return PriceReport{}, err
	}

	if _, err := s.db.Exec(ctx, `
		UPDATE fuel_prices SET is_active=false
		WHERE gas_station_id=$1 AND fuel_type=$2 AND is_active
	`, in.StationID, in.FuelType); err != nil {
		return PriceReport{}, apperr.Dependency(storeOp, err)
	}

	in.ID = uuid.NewString()
	if _, err := s.db.Exec(ctx, `
		INSERT INTO fuel_prices (id, gas_station_id, fuel_type, price, source, source_confidence, reported_at, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,true)
	`, in.ID, in.StationID, in.FuelType, in.Price, in.Source, in.Confidence, in.ReportedAt); err != nil {
		return PriceReport{}, apperr.Dependency(storeOp, err)
	}
	return in, nil
}
