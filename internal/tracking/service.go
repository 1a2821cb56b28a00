// Package tracking runs the per-sample pipeline: update the trip, and when a
// notification is due, recommend a station, dispatch it and confirm the
// notification only after a real delivery.
package tracking

import (
	"context"
	"errors"
	"log"
	"time"

	"backend-tanquecheio/internal/notify"
	"backend-tanquecheio/internal/recommend"
	"backend-tanquecheio/internal/shared/geo"
	"backend-tanquecheio/internal/trip"
)

type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) ([]recommend.Result, error)
}

type Metrics interface {
	RecommendObserve(mode string, d time.Duration)
	NotificationResult(result string)
}

type nopMetrics struct{}

func (nopMetrics) RecommendObserve(string, time.Duration) {}
func (nopMetrics) NotificationResult(string)              {}

type Service struct {
	tracker     *trip.Tracker
	recommender Recommender
	dispatcher  notify.Dispatcher
	history     notify.History
	metrics     Metrics
	radiusKm    float64
}

// NewService wires the pipeline. A nil history skips the inbox log.
func NewService(tracker *trip.Tracker, recommender Recommender, dispatcher notify.Dispatcher, history notify.History, m Metrics, radiusKm float64) *Service {
	if m == nil {
		m = nopMetrics{}
	}
	return &Service{
		tracker:     tracker,
		recommender: recommender,
		dispatcher:  dispatcher,
		history:     history,
		metrics:     m,
		radiusKm:    radiusKm,
	}
}

// AddPoint applies sample to userID's trip. Tracker errors are returned as is
// and a trip owned by someone else is reported as trip.ErrTripNotFound.
// Recommendation and dispatch failures are reported in the result and leave
// the notification pending for the next sample.
func (s *Service) AddPoint(ctx context.Context, userID, tripID string, sample geo.Point) (PointResult, error) {
	if _, err := s.tracker.GetOwned(ctx, tripID, userID); err != nil {
		return PointResult{}, err
	}
	res, err := s.tracker.Update(ctx, tripID, sample)
	if err != nil {
		return PointResult{}, err
	}
	out := PointResult{UpdateResult: res}
	if !res.ShouldNotify || s.recommender == nil || s.dispatcher == nil {
		return out, nil
	}

	n := s.notify(ctx, res, sample)
	out.Notification = &n
	if !n.Delivered {
		return out, nil
	}

	confirmed, err := s.tracker.ConfirmNotification(ctx, tripID, res.TotalKm)
	switch {
	case err == nil:
		out.ShouldNotify = false
		out.NextNotificationKm = confirmed.NextNotificationKm()
	case errors.Is(err, trip.ErrTripNotFound):
		// stopped while the notification was in flight
	default:
		log.Printf("confirm notification trip=%s: %v", tripID, err)
	}
	s.record(ctx, res, n)
	return out, nil
}

// record logs a delivered notification in the user's inbox. A failed write
// does not fail the sample.
func (s *Service) record(ctx context.Context, res trip.UpdateResult, n Notification) {
	if s.history == nil || n.Recommendation == nil {
		return
	}
	rec := notify.NewRecord(res.UserID, res.TripID, res.FuelType, res.TotalKm, string(n.Mode), *n.Recommendation)
	if err := s.history.Add(ctx, rec); err != nil {
		log.Printf("record notification trip=%s user=%s: %v", res.TripID, res.UserID, err)
	}
}

func (s *Service) notify(ctx context.Context, res trip.UpdateResult, at geo.Point) Notification {
	results, mode, err := s.recommend(ctx, res, at)
	n := Notification{Mode: mode}
	if err != nil {
		log.Printf("recommend trip=%s: %v", res.TripID, err)
		s.metrics.NotificationResult("error")
		n.Error = err.Error()
		return n
	}
	if len(results) == 0 {
		s.metrics.NotificationResult("empty")
		return n
	}

	best := results[0]
	n.Recommendation = &best
	delivered, err := s.dispatcher.Send(ctx, res.UserID, best)
	if err != nil {
		log.Printf("dispatch trip=%s user=%s: %v", res.TripID, res.UserID, err)
		n.Error = err.Error()
	}
	n.Delivered = delivered
	switch {
	case delivered:
		s.metrics.NotificationResult("delivered")
	case err != nil:
		s.metrics.NotificationResult("error")
	default:
		s.metrics.NotificationResult("undelivered")
	}
	return n
}

// recommend searches along the route to the trip destination when there is
// one and falls back to a nearby search if that fails.
func (s *Service) recommend(ctx context.Context, res trip.UpdateResult, at geo.Point) ([]recommend.Result, recommend.Mode, error) {
	req := recommend.Request{
		Origin:   geo.Point{Lat: at.Lat, Lng: at.Lng},
		FuelType: res.FuelType,
		Mode:     recommend.Nearby,
		RadiusKm: s.radiusKm,
		Limit:    1,
	}
	if res.Destination != nil {
		routeReq := req
		routeReq.Mode = recommend.AlongRoute
		routeReq.Destination = res.Destination
		results, err := s.observe(ctx, routeReq)
		if err == nil {
			return results, recommend.AlongRoute, nil
		}
		log.Printf("along-route recommend trip=%s, falling back to nearby: %v", res.TripID, err)
	}
	results, err := s.observe(ctx, req)
	return results, recommend.Nearby, err
}

func (s *Service) observe(ctx context.Context, req recommend.Request) ([]recommend.Result, error) {
	start := time.Now()
	results, err := s.recommender.Recommend(ctx, req)
	s.metrics.RecommendObserve(string(req.Mode), time.Since(start))
	return results, err
}
