package station

import (
	"context"
	"errors"
	"testing"
	"time"

	"backend-tanquecheio/internal/recommend"
	"backend-tanquecheio/internal/shared/apperr"
	"backend-tanquecheio/internal/shared/geo"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

var stationRowColumns = []string{"id", "name", "brand", "address", "latitude", "longitude", "data_confidence", "is_active", "created_at"}

func TestCandidatesAndPricesNear(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	box := geo.BoundingBox(geo.Point{Lat: -23.55, Lng: -46.63}, 5)
	reported := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM gas_stations\s+WHERE is_active`).
		WithArgs(box.MinLat, box.MaxLat, box.MinLng, box.MaxLng).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "brand", "latitude", "longitude"}).
			AddRow("st-1", "Posto Paulista", "Shell", -23.55, -46.63).
			AddRow("st-2", "Posto Centro", "", -23.56, -46.64))

	mock.ExpectQuery(`SELECT DISTINCT ON \(fp.gas_station_id\)`).
		WithArgs("gasoline", pgxmock.AnyArg(), box.MinLat, box.MaxLat, box.MinLng, box.MaxLng).
		WillReturnRows(pgxmock.NewRows([]string{"gas_station_id", "price", "source_confidence", "reported_at"}).
			AddRow("st-1", 5.89, 0.9, reported))

	svc := NewService(mock, 7*24*time.Hour)
	candidates, err := svc.CandidatesNear(context.Background(), box)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(candidates) != 2 || candidates[0].StationID != "st-1" || candidates[0].Brand != "Shell" {
		t.Fatalf("unexpected candidates: %+v", candidates)
	}

	prices, err := svc.PricesNear(context.Background(), box, "gasoline")
	if err != nil {
		t.Fatalf("prices: %v", err)
	}
	if len(prices) != 1 || prices["st-1"].Price != 5.89 || prices["st-1"].Confidence != 0.9 {
		t.Fatalf("unexpected prices: %+v", prices)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPriceLookup(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	now := time.Date(2024, 5, 8, 10, 0, 0, 0, time.UTC)
	svc := NewService(mock, 24*time.Hour)
	svc.now = func() time.Time { return now }

	mock.ExpectQuery(`FROM fuel_prices\s+WHERE gas_station_id=\$1`).
		WithArgs("st-1", "diesel", now.Add(-24*time.Hour)).
		WillReturnRows(pgxmock.NewRows([]string{"price", "source_confidence", "reported_at"}).AddRow(6.19, 0.5, now))

	p, err := svc.Price(context.Background(), "st-1", "diesel")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if p.Price != 6.19 || p.StationID != "st-1" || p.FuelType != "diesel" {
		t.Fatalf("unexpected price: %+v", p)
	}

	mock.ExpectQuery(`FROM fuel_prices\s+WHERE gas_station_id=\$1`).
		WithArgs("st-2", "diesel", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	if _, err := svc.Price(context.Background(), "st-2", "diesel"); !errors.Is(err, recommend.ErrPriceNotFound) {
		t.Fatalf("expected price not found, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAveragePrice(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	svc := NewService(mock, 0)
	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT AVG\(price\)`).
		WithArgs("gasoline", since).
		WillReturnRows(pgxmock.NewRows([]string{"avg"}).AddRow(5.75))
	avg, err := svc.AveragePrice(context.Background(), "gasoline", since)
	if err != nil || avg != 5.75 {
		t.Fatalf("unexpected average: %v %v", avg, err)
	}

	mock.ExpectQuery(`SELECT AVG\(price\)`).
		WithArgs("gnv", since).
		WillReturnRows(pgxmock.NewRows([]string{"avg"}).AddRow(nil))
	if _, err := svc.AveragePrice(context.Background(), "gnv", since); !errors.Is(err, recommend.ErrPriceNotFound) {
		t.Fatalf("expected not found for empty average, got %v", err)
	}
}

func TestReportPrice(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM gas_stations WHERE id=\$1`).
		WithArgs("st-1").
		WillReturnRows(pgxmock.NewRows(stationRowColumns).
			AddRow("st-1", "Posto Paulista", "Shell", "Av. Paulista, 1000", -23.56, -46.65, nil, true, created))
	mock.ExpectExec(`UPDATE fuel_prices SET is_active=false`).
		WithArgs("st-1", "ethanol").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO fuel_prices`).
		WithArgs(pgxmock.AnyArg(), "st-1", "ethanol", 3.99, "user", 0.5, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	svc := NewService(mock, time.Hour)
	report, err := svc.ReportPrice(context.Background(), PriceReport{StationID: "st-1", FuelType: "Ethanol", Price: 3.99})
	if err != nil {
		t.Fatalf("report price: %v", err)
	}
	if report.ID == "" || report.FuelType != "ethanol" || report.ReportedAt.IsZero() {
		t.Fatalf("unexpected report: %+v", report)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReportPriceValidation(t *testing.T) {
	svc := NewService(nil, time.Hour)
	cases := []PriceReport{
		{StationID: "st-1", FuelType: "jet", Price: 3},
		{StationID: "st-1", FuelType: "diesel", Price: 0},
		{StationID: "st-1", FuelType: "diesel", Price: -1},
		{StationID: "st-1", FuelType: "diesel", Price: 5, Confidence: 1.5},
	}
	for _, in := range cases {
		if _, err := svc.ReportPrice(context.Background(), in); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("%+v: expected validation error, got %v", in, err)
		}
	}
}

func TestGetStationNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`FROM gas_stations WHERE id=\$1`).WithArgs("missing").WillReturnError(pgx.ErrNoRows)
	if _, err := NewService(mock, 0).GetStation(context.Background(), "missing"); !errors.Is(err, ErrStationNotFound) {
		t.Fatalf("expected station not found, got %v", err)
	}
}

func TestServiceFeedsEngine(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	origin := geo.Point{Lat: -23.5505, Lng: -46.6333}
	mock.ExpectQuery(`FROM gas_stations\s+WHERE is_active`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "brand", "latitude", "longitude"}).
			AddRow("st-1", "Posto Paulista", "Shell", -23.5460, -46.6333))
	mock.ExpectQuery(`SELECT DISTINCT ON \(fp.gas_station_id\)`).
		WithArgs("gasoline", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"gas_station_id", "price", "source_confidence", "reported_at"}).
			AddRow("st-1", 5.49, 1.0, time.Now()))

	svc := NewService(mock, time.Hour)
	engine := recommend.NewEngine(recommend.Deps{Stations: svc, Prices: svc}, recommend.DefaultConfig())
	results, err := engine.Recommend(context.Background(), recommend.Request{Origin: origin, FuelType: "gasoline"})
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if len(results) != 1 || results[0].Candidate.FuelPrice != 5.49 {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestServiceWrapsStoreFailures(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()
	svc := NewService(mock, time.Hour)
	ctx := context.Background()
	connErr := errors.New("connection reset by peer")
	box := geo.BBox{MinLat: -1, MaxLat: 1, MinLng: -1, MaxLng: 1}

	mock.ExpectQuery(`FROM gas_stations`).WillReturnError(connErr)
	_, err = svc.CandidatesNear(ctx, box)
	mustBeDependency(t, "candidates", err, connErr)

	mock.ExpectQuery(`FROM fuel_prices fp`).WillReturnError(connErr)
	_, err = svc.PricesNear(ctx, box, "gasoline")
	mustBeDependency(t, "prices near", err, connErr)

	mock.ExpectQuery(`FROM fuel_prices\s+WHERE gas_station_id=\$1`).WillReturnError(connErr)
	_, err = svc.Price(ctx, "st-1", "gasoline")
	mustBeDependency(t, "price", err, connErr)

	mock.ExpectQuery(`SELECT AVG\(price\)`).WillReturnError(connErr)
	_, err = svc.AveragePrice(ctx, "gasoline", time.Now())
	mustBeDependency(t, "average", err, connErr)

	mock.ExpectQuery(`FROM gas_stations WHERE id=\$1`).WillReturnError(connErr)
	_, err = svc.GetStation(ctx, "st-1")
	mustBeDependency(t, "station", err, connErr)

	mock.ExpectQuery(`FROM gas_stations WHERE id=\$1`).
		WillReturnRows(pgxmock.NewRows(stationRowColumns).
			AddRow("st-1", "Posto", "", "", 0.0, 0.0, 0.8, true, time.Now()))
	mock.ExpectExec(`UPDATE fuel_prices`).WillReturnError(connErr)
	_, err = svc.ReportPrice(ctx, PriceReport{StationID: "st-1", FuelType: "gasoline", Price: 5.5})
	mustBeDependency(t, "report", err, connErr)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func mustBeDependency(t *testing.T, name string, err, cause error) {
	t.Helper()
	if !errors.Is(err, apperr.ErrDependency) || !errors.Is(err, cause) {
		t.Fatalf("%s: expected dependency error wrapping %v, got %v", name, cause, err)
	}
	if errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("%s: store failure must not look like not found", name)
	}
}

func TestCandidatesNearAcrossAntimeridian(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	box := geo.BoundingBox(geo.Point{Lat: -16.8, Lng: 179.9}, 50)
	if !box.CrossesAntimeridian() {
		t.Fatalf("expected a wrapped box, got %+v", box)
	}
	mock.ExpectQuery(`longitude BETWEEN \$3 AND \$4 OR \(\$3 > \$4 AND \(longitude >= \$3 OR longitude <= \$4\)\)`).
		WithArgs(box.MinLat, box.MaxLat, box.MinLng, box.MaxLng).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "brand", "latitude", "longitude"}).
			AddRow("st-west", "Posto Oeste", "", -16.8, 179.8).
			AddRow("st-east", "Posto Leste", "", -16.8, -179.8))

	candidates, err := NewService(mock, time.Hour).CandidatesNear(context.Background(), box)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	for _, c := range candidates {
		if !box.Contains(c.Point()) {
			t.Fatalf("%s outside %+v", c.StationID, box)
		}
	}
	if len(candidates) != 2 {
		t.Fatalf("expected stations on both sides of 180, got %+v", candidates)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
