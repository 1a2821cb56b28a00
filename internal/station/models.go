package station

import "time"

type Station struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Brand      string    `json:"brand"`
	Address    string    `json:"address"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Confidence float64   `json:"data_confidence"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// PriceReport is a user or partner submitted price for one fuel type.
type PriceReport struct {
	ID         string    `json:"id"`
	StationID  string    `json:"station_id"`
	FuelType   string    `json:"fuel_type"`
	Price      float64   `json:"price"`
	Source     string    `json:"source"`
	Confidence float64   `json:"source_confidence"`
	ReportedAt time.Time `json:"reported_at"`
}
