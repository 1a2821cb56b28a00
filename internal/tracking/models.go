package tracking

import (
	"backend-tanquecheio/internal/recommend"
	"backend-tanquecheio/internal/trip"
)

// PointResult is the outcome of one GPS sample: the tracker update plus, when
// a notification was due, what the pipeline did about it.
type PointResult struct {
	trip.UpdateResult
	Notification *Notification `json:"notification,omitempty"`
}

type Notification struct {
	Mode           recommend.Mode    `json:"mode"`
	Recommendation *recommend.Result `json:"recommendation,omitempty"`
	Delivered      bool              `json:"delivered"`
	Error          string            `json:"error,omitempty"`
}
