// Package notify delivers fuel recommendations to users. A dispatcher reports
// whether the message reached at least one consumer so the trip tracker only
// advances its notification counter on real deliveries.
package notify

import (
	"context"
	"errors"
	"time"

	"backend-tanquecheio/internal/recommend"

	"github.com/google/uuid"
)

const TypeFuelRecommendation = "fuel_recommendation"

type Dispatcher interface {
	Send(ctx context.Context, userID string, result recommend.Result) (bool, error)
}

type Message struct {
	ID     string           `json:"id"`
	Type   string           `json:"type"`
	UserID string           `json:"user_id"`
	Result recommend.Result `json:"result"`
	SentAt time.Time        `json:"sent_at"`
}

func NewMessage(userID string, result recommend.Result) Message {
	return Message{
		ID:     uuid.NewString(),
		Type:   TypeFuelRecommendation,
		UserID: userID,
		Result: result,
		SentAt: time.Now().UTC(),
	}
}

// Multi sends to every dispatcher and reports delivery if any of them
// delivered. Errors are joined and returned alongside the delivery flag.
type Multi []Dispatcher

func (m Multi) Send(ctx context.Context, userID string, result recommend.Result) (bool, error) {
	delivered := false
	var errs []error
	for _, d := range m {
		if d == nil {
			continue
		}
		ok, err := d.Send(ctx, userID, result)
		if err != nil {
			errs = append(errs, err)
		}
		delivered = delivered || ok
	}
	return delivered, errors.Join(errs...)
}
