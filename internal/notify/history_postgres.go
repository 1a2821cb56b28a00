package notify

import (
	"context"
	"errors"
	"time"

	"backend-tanquecheio/internal/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// PostgresHistory keeps records in the notifications table.
type PostgresHistory struct {
	db  db.Querier
	now func() time.Time
}

func NewPostgresHistory(db db.Querier) *PostgresHistory {
	return &PostgresHistory{db: db, now: time.Now}
}

const recordColumns = `id, user_id, trip_id, station_id, station_name, fuel_type, price, score,
	estimated_savings, distance_at_notification_km, mode, latitude, longitude, message,
	is_read, is_clicked, read_at, clicked_at, created_at`

func (h *PostgresHistory) Add(ctx context.Context, r Record) error {
	_, err := h.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, trip_id, station_id, station_name, fuel_type, price, score,
			estimated_savings, distance_at_notification_km, mode, latitude, longitude, message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, r.ID, r.UserID, r.TripID, r.StationID, r.StationName, r.FuelType, r.Price, r.Score,
		r.EstimatedSavings, r.AtKm, r.Mode, r.Lat, r.Lng, r.Message, r.CreatedAt)
	return err
}

func (h *PostgresHistory) List(ctx context.Context, userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := h.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM notifications
		WHERE user_id=$1
		ORDER BY created_at DESC, id
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (h *PostgresHistory) MarkRead(ctx context.Context, userID, id string) (Record, error) {
	return scanRecord(h.db.QueryRow(ctx, `
		UPDATE notifications
		SET is_read=true, read_at=COALESCE(read_at, $3)
		WHERE id=$1 AND user_id=$2
		RETURNING `+recordColumns, id, userID, h.now().UTC()))
}

func (h *PostgresHistory) MarkClicked(ctx context.Context, userID, id string) (Record, error) {
	return scanRecord(h.db.QueryRow(ctx, `
		UPDATE notifications
		SET is_clicked=true, clicked_at=COALESCE(clicked_at, $3)
		WHERE id=$1 AND user_id=$2
		RETURNING `+recordColumns, id, userID, h.now().UTC()))
}

func (h *PostgresHistory) Stats(ctx context.Context, userID string) (Stats, error) {
	var s Stats
	err := h.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_read),
		       COUNT(*) FILTER (WHERE is_clicked),
		       COUNT(*) FILTER (WHERE created_at >= $2)
		FROM notifications
		WHERE user_id=$1
	`, userID, h.now().Add(-recentWindow)).Scan(&s.Total, &s.Read, &s.Clicked, &s.Recent)
	if err != nil {
		return Stats{}, err
	}
	s.fillRates()
	return s, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		r                 Record
		readAt, clickedAt pgtype.Timestamptz
	)
	err := row.Scan(&r.ID, &r.UserID, &r.TripID, &r.StationID, &r.StationName, &r.FuelType, &r.Price, &r.Score,
		&r.EstimatedSavings, &r.AtKm, &r.Mode, &r.Lat, &r.Lng, &r.Message,
		&r.IsRead, &r.IsClicked, &readAt, &clickedAt, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotificationNotFound
	}
	if err != nil {
		return Record{}, err
	}
	if readAt.Valid {
		t := readAt.Time
		r.ReadAt = &t
	}
	if clickedAt.Valid {
		t := clickedAt.Time
		r.ClickedAt = &t
	}
	return r, nil
}
