package trip

import (
	"time"

	"backend-tanquecheio/internal/shared/geo"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Trip is owned by the Tracker. DistanceTraveledKm never decreases while the
// trip is active and LastNotificationKm never exceeds it.
type Trip struct {
	ID                     string     `json:"id"`
	UserID                 string     `json:"user_id"`
	FuelType               string     `json:"fuel_type"`
	NotificationIntervalKm float64    `json:"notification_interval_km"`
	Status                 Status     `json:"status"`
	DistanceTraveledKm     float64    `json:"distance_traveled_km"`
	LastNotificationKm     float64    `json:"last_notification_km"`
	NotificationsSent      int        `json:"notifications_sent"`
	SamplesAccepted        int        `json:"samples_accepted"`
	Destination            *geo.Point `json:"destination,omitempty"`
	LastSample             *geo.Point `json:"last_sample,omitempty"`
	StartedAt              time.Time  `json:"started_at"`
	EndedAt                *time.Time `json:"ended_at,omitempty"`
}

// NextNotificationKm is the distance after which the next notification is due.
func (t Trip) NextNotificationKm() float64 {
	return t.LastNotificationKm + t.NotificationIntervalKm
}

// distanceEpsilonKm absorbs floating point noise from summing haversine deltas.
const distanceEpsilonKm = 1e-9

// notificationDue reports whether the distance since the last confirmed
// notification exceeds the interval.
func (t Trip) notificationDue() bool {
	return t.DistanceTraveledKm-t.LastNotificationKm > t.NotificationIntervalKm+distanceEpsilonKm
}

func (t Trip) Summary() Summary {
	end := time.Now()
	if t.EndedAt != nil {
		end = *t.EndedAt
	}
	duration := end.Sub(t.StartedAt)
	if duration < 0 {
		duration = 0
	}
	avg := 0.0
	if hours := duration.Hours(); hours > 0 {
		avg = t.DistanceTraveledKm / hours
	}
	return Summary{
		TripID:             t.ID,
		UserID:             t.UserID,
		Status:             t.Status,
		DistanceTraveledKm: t.DistanceTraveledKm,
		Duration:           duration,
		DurationSec:        int64(duration.Seconds()),
		NotificationsSent:  t.NotificationsSent,
		SamplesAccepted:    t.SamplesAccepted,
		AverageSpeedKmh:    avg,
	}
}

type StartInput struct {
	UserID      string     `json:"user_id"`
	FuelType    string     `json:"fuel_type"`
	IntervalKm  float64    `json:"notification_interval_km"`
	Destination *geo.Point `json:"destination,omitempty"`
}

type UpdateResult struct {
	TripID             string  `json:"trip_id"`
	UserID             string  `json:"user_id"`
	FuelType           string  `json:"fuel_type"`
	DistanceDeltaKm    float64 `json:"distance_delta_km"`
	TotalKm            float64 `json:"total_km"`
	ShouldNotify       bool    `json:"should_notify"`
	NextNotificationKm float64 `json:"next_notification_km"`
	// Destination is copied from the trip so callers can pick a search mode.
	Destination *geo.Point `json:"destination,omitempty"`
}

type Summary struct {
	TripID             string        `json:"trip_id"`
	UserID             string        `json:"user_id"`
	Status             Status        `json:"status"`
	DistanceTraveledKm float64       `json:"distance_traveled_km"`
	Duration           time.Duration `json:"-"`
	DurationSec        int64         `json:"duration_sec"`
	NotificationsSent  int           `json:"notifications_sent"`
	SamplesAccepted    int           `json:"samples_accepted"`
	AverageSpeedKmh    float64       `json:"average_speed_kmh"`
}
