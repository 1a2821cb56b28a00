package station

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend-tanquecheio/internal/db"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

func TestStationHandlers(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	created := time.Now()
	stationRows := func() *pgxmock.Rows {
		return pgxmock.NewRows(stationRowColumns).
			AddRow("st-1", "Posto Paulista", "Shell", "Av. Paulista", -23.56, -46.65, 0.8, true, created)
	}

	mock.ExpectQuery(`FROM gas_stations WHERE id=\$1`).WithArgs("st-1").WillReturnRows(stationRows())
	mock.ExpectQuery(`FROM gas_stations WHERE id=\$1`).WithArgs("st-1").WillReturnRows(stationRows())
	mock.ExpectExec(`UPDATE fuel_prices`).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`INSERT INTO fuel_prices`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`FROM fuel_prices\s+WHERE gas_station_id=\$1`).
		WithArgs("st-1", "gnv", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	app := fiber.New()
	RegisterRoutes(app.Group("/stations"), NewService(mock, time.Hour), func(c *fiber.Ctx) error { return c.Next() })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/stations/st-1", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("get station status: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/stations/st-1/prices", bytes.NewReader([]byte(`{"fuel_type":"gasoline","price":5.79}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("report price status: %v %v", resp.StatusCode, err)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/stations/st-1/prices/gnv", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodPost, "/stations/st-1/prices", bytes.NewReader([]byte(`{"fuel_type":"gasoline","price":-1}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", resp.StatusCode)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStationHandlersStoreDown(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/stations"), NewService(db.Unavailable{}, time.Hour), func(c *fiber.Ctx) error { return c.Next() })

	for _, target := range []string{"/stations/st-1", "/stations/st-1/prices/gasoline"} {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
		if resp.StatusCode != http.StatusBadGateway {
			t.Fatalf("%s: expected 502, got %d", target, resp.StatusCode)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/stations/st-1/prices", bytes.NewReader([]byte(`{"fuel_type":"gasoline","price":5.79}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("report price: expected 502, got %d", resp.StatusCode)
	}
}
