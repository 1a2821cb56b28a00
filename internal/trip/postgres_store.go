package trip

import (
	"context"
	"errors"
	"time"

	"backend-tanquecheio/internal/db"
	"backend-tanquecheio/internal/shared/geo"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const uniqueViolation = "23505"

// PostgresStore keeps trips in the trips table. A partial unique index on
// (user_id) WHERE status='active' backs the one-active-trip rule.
type PostgresStore struct {
	db db.Querier
}

func NewPostgresStore(db db.Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

const tripColumns = `id, user_id, fuel_type, notification_interval_km, status,
	distance_traveled_km, last_notification_km, notifications_sent, samples_accepted,
	dest_lat, dest_lng, last_lat, last_lng, last_sample_at, started_at, ended_at`

func (s *PostgresStore) Create(ctx context.Context, t Trip) error {
	destLat, destLng := pointArgs(t.Destination)
	_, err := s.db.Exec(ctx, `
		INSERT INTO trips (id, user_id, fuel_type, notification_interval_km, status, dest_lat, dest_lng, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, t.ID, t.UserID, t.FuelType, t.NotificationIntervalKm, string(t.Status), destLat, destLng, t.StartedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrTripAlreadyActive
	}
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Trip, error) {
	row := s.db.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id=$1`, id)
	return scanTrip(row)
}

func (s *PostgresStore) ActiveByUser(ctx context.Context, userID string) (Trip, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE user_id=$1 AND status='active'
		ORDER BY started_at DESC
		LIMIT 1
	`, userID)
	return scanTrip(row)
}

func (s *PostgresStore) Save(ctx context.Context, t Trip) error {
	lastLat, lastLng := pointArgs(t.LastSample)
	var lastAt *time.Time
	if t.LastSample != nil && !t.LastSample.Timestamp.IsZero() {
		ts := t.LastSample.Timestamp
		lastAt = &ts
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE trips
		SET status=$2, distance_traveled_km=$3, last_notification_km=$4,
		    notifications_sent=$5, samples_accepted=$6,
		    last_lat=$7, last_lng=$8, last_sample_at=$9, ended_at=$10
		WHERE id=$1
	`, t.ID, string(t.Status), t.DistanceTraveledKm, t.LastNotificationKm,
		t.NotificationsSent, t.SamplesAccepted, lastLat, lastLng, lastAt, t.EndedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTripNotFound
	}
	return nil
}

// SaveSample updates the running totals and inserts the sample into
// trip_points in a single statement. seq is the trip's samples_accepted.
func (s *PostgresStore) SaveSample(ctx context.Context, t Trip, sample geo.Point) error {
	var at *time.Time
	if !sample.Timestamp.IsZero() {
		ts := sample.Timestamp
		at = &ts
	}

	tag, err := s.db.Exec(ctx, `
		WITH upd AS (
			UPDATE trips
			SET distance_traveled_km=$2, samples_accepted=$3,
			    last_lat=$4, last_lng=$5, last_sample_at=$6
			WHERE id=$1
			RETURNING id
		)
		INSERT INTO trip_points (trip_id, seq, latitude, longitude, accuracy_m, speed_kmh, heading_deg, recorded_at)
		SELECT id, $3, $4, $5, $7, $8, $9, COALESCE($6, now()) FROM upd
	`, t.ID, t.DistanceTraveledKm, t.SamplesAccepted, sample.Lat, sample.Lng, at,
		sample.AccuracyM, sample.SpeedKmh, sample.HeadingDeg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTripNotFound
	}
	return nil
}

func (s *PostgresStore) Points(ctx context.Context, tripID string) ([]geo.Point, error) {
	rows, err := s.db.Query(ctx, `
		SELECT latitude, longitude, accuracy_m, speed_kmh, heading_deg, recorded_at
		FROM trip_points
		WHERE trip_id=$1
		ORDER BY seq
	`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []geo.Point{}
	for rows.Next() {
		var (
			p                        geo.Point
			accuracy, speed, heading pgtype.Float8
			recordedAt               pgtype.Timestamptz
		)
		if err := rows.Scan(&p.Lat, &p.Lng, &accuracy, &speed, &heading, &recordedAt); err != nil {
			return nil, err
		}
		p.AccuracyM = floatPtr(accuracy)
		p.SpeedKmh = floatPtr(speed)
		p.HeadingDeg = floatPtr(heading)
		if recordedAt.Valid {
			p.Timestamp = recordedAt.Time
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func floatPtr(f pgtype.Float8) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func scanTrip(row pgx.Row) (Trip, error) {
	var (
		t                                  Trip
		status                             string
		destLat, destLng, lastLat, lastLng pgtype.Float8
		lastAt, endedAt                    pgtype.Timestamptz
	)
	err := row.Scan(&t.ID, &t.UserID, &t.FuelType, &t.NotificationIntervalKm, &status,
		&t.DistanceTraveledKm, &t.LastNotificationKm, &t.NotificationsSent, &t.SamplesAccepted,
		&destLat, &destLng, &lastLat, &lastLng, &lastAt, &t.StartedAt, &endedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Trip{}, ErrTripNotFound
	}
	if err != nil {
		return Trip{}, err
	}

	trip := t
	trip.Status = Status(status)
	if destLat.Valid && destLng.Valid {
		trip.Destination = &geo.Point{Lat: destLat.Float64, Lng: destLng.Float64}
	}
	if lastLat.Valid && lastLng.Valid {
		sample := geo.Point{Lat: lastLat.Float64, Lng: lastLng.Float64}
		if lastAt.Valid {
			sample.Timestamp = lastAt.Time
		}
		trip.LastSample = &sample
	}
	if endedAt.Valid {
		ended := endedAt.Time
		trip.EndedAt = &ended
	}
	return trip, nil
}

func pointArgs(p *geo.Point) (*float64, *float64) {
	if p == nil {
		return nil, nil
	}
	lat, lng := p.Lat, p.Lng
	return &lat, &lng
}
