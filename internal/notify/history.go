package notify

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"backend-tanquecheio/internal/recommend"
	"backend-tanquecheio/internal/shared/apperr"

	"github.com/google/uuid"
)

// recentWindow bounds Stats.Recent.
const recentWindow = 7 * 24 * time.Hour

var ErrNotificationNotFound = fmt.Errorf("%w: notification", apperr.ErrNotFound)

// Record is a delivered recommendation as the user's inbox shows it.
type Record struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	TripID           string     `json:"trip_id"`
	StationID        string     `json:"station_id"`
	StationName      string     `json:"station_name"`
	FuelType         string     `json:"fuel_type"`
	Price            float64    `json:"price"`
	Score            float64    `json:"score"`
	EstimatedSavings float64    `json:"estimated_savings"`
	AtKm             float64    `json:"distance_at_notification_km"`
	Mode             string     `json:"mode"`
	Lat              float64    `json:"lat"`
	Lng              float64    `json:"lng"`
	Message          string     `json:"message"`
	IsRead           bool       `json:"is_read"`
	IsClicked        bool       `json:"is_clicked"`
	ReadAt           *time.Time `json:"read_at,omitempty"`
	ClickedAt        *time.Time `json:"clicked_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// NewRecord builds the inbox entry for a delivered result.
func NewRecord(userID, tripID, fuelType string, atKm float64, mode string, result recommend.Result) Record {
	c := result.Candidate
	return Record{
		ID:               uuid.NewString(),
		UserID:           userID,
		TripID:           tripID,
		StationID:        c.StationID,
		StationName:      c.Name,
		FuelType:         fuelType,
		Price:            c.FuelPrice,
		Score:            result.Score,
		EstimatedSavings: result.EstimatedSavings,
		AtKm:             atKm,
		Mode:             mode,
		Lat:              c.Lat,
		Lng:              c.Lng,
		Message:          fmt.Sprintf("%s: %s at %.2f", c.Name, fuelType, c.FuelPrice),
		CreatedAt:        time.Now().UTC(),
	}
}

type Stats struct {
	Total     int     `json:"total_notifications"`
	Read      int     `json:"read_notifications"`
	Clicked   int     `json:"clicked_notifications"`
	Recent    int     `json:"recent_notifications"`
	ReadRate  float64 `json:"read_rate"`
	ClickRate float64 `json:"click_rate"`
}

func (s *Stats) fillRates() {
	if s.Total == 0 {
		return
	}
	s.ReadRate = math.Round(float64(s.Read)/float64(s.Total)*10000) / 100
	s.ClickRate = math.Round(float64(s.Clicked)/float64(s.Total)*10000) / 100
}

// History is the per-user notification log. Records of other users are
// reported as ErrNotificationNotFound.
type History interface {
	Add(ctx context.Context, r Record) error
	List(ctx context.Context, userID string, limit int) ([]Record, error)
	MarkRead(ctx context.Context, userID, id string) (Record, error)
	MarkClicked(ctx context.Context, userID, id string) (Record, error)
	Stats(ctx context.Context, userID string) (Stats, error)
}

type MemoryHistory struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{records: map[string]Record{}, now: time.Now}
}

func (h *MemoryHistory) Add(_ context.Context, r Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = h.now().UTC()
	}
	h.records[r.ID] = r
	return nil
}

// List returns the newest records first. limit <= 0 returns all of them.
func (h *MemoryHistory) List(_ context.Context, userID string, limit int) ([]Record, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := []Record{}
	for _, r := range h.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *MemoryHistory) MarkRead(_ context.Context, userID, id string) (Record, error) {
	return h.mark(userID, id, func(r *Record, now time.Time) {
		r.IsRead = true
		if r.ReadAt == nil {
			r.ReadAt = &now
		}
	})
}

func (h *MemoryHistory) MarkClicked(_ context.Context, userID, id string) (Record, error) {
	return h.mark(userID, id, func(r *Record, now time.Time) {
		r.IsClicked = true
		if r.ClickedAt == nil {
			r.ClickedAt = &now
		}
	})
}

func (h *MemoryHistory) mark(userID, id string, apply func(*Record, time.Time)) (Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.records[id]
	if !ok || r.UserID != userID {
		return Record{}, ErrNotificationNotFound
	}
	apply(&r, h.now().UTC())
	h.records[id] = r
	return r, nil
}

func (h *MemoryHistory) Stats(_ context.Context, userID string) (Stats, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	since := h.now().Add(-recentWindow)
	var s Stats
	for _, r := range h.records {
		if r.UserID != userID {
			continue
		}
		s.Total++
		if r.IsRead {
			s.Read++
		}
		if r.IsClicked {
			s.Clicked++
		}
		if !r.CreatedAt.Before(since) {
			s.Recent++
		}
	}
	s.fillRates()
	return s, nil
}
