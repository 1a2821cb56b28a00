package server

import (
	"fmt"
	"log"
	"time"

	"backend-tanquecheio/internal/auth"
	"backend-tanquecheio/internal/config"
	"backend-tanquecheio/internal/db"
	"backend-tanquecheio/internal/metrics"
	"backend-tanquecheio/internal/notify"
	"backend-tanquecheio/internal/recommend"
	"backend-tanquecheio/internal/routing"
	"backend-tanquecheio/internal/scoring"
	"backend-tanquecheio/internal/station"
	"backend-tanquecheio/internal/stream"
	"backend-tanquecheio/internal/tracking"
	"backend-tanquecheio/internal/trip"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App     *fiber.App
	Cfg     config.Config
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Stream  *stream.Hub
	Metrics *metrics.Collector

	Tracker  *trip.Tracker
	Engine   *recommend.Engine
	Stations *station.Service
	Tracking *tracking.Service
	History  notify.History
}

type Option func(*options)

type options struct {
	metrics     *metrics.Collector
	dispatchers []notify.Dispatcher
}

// WithMetrics shares a collector created by the caller, e.g. one already
// attached to the NATS connection.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithDispatcher adds a notification dispatcher next to the websocket hub.
func WithDispatcher(d notify.Dispatcher) Option {
	return func(o *options) {
		if d != nil {
			o.dispatchers = append(o.dispatchers, d)
		}
	}
}

// NewServer wires the fuel services. pool and redisClient may be nil.
func NewServer(cfg config.Config, pool *pgxpool.Pool, redisClient *redis.Client, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     pool,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}
	switch {
	case o.metrics != nil:
		s.Metrics = o.metrics
	case cfg.MetricsEnabled:
		s.Metrics = metrics.NewCollector()
	}

	if err := s.buildServices(o.dispatchers); err != nil {
		_ = s.Stream.Close()
		return nil, err
	}

	registerRoutes(s)
	return s, nil
}

// Close releases the hub subscription. The pool and redis client belong to
// the caller.
func (s *Server) Close() error {
	return s.Stream.Close()
}

func (s *Server) querier() db.Querier {
	if s.DB == nil {
		return db.Unavailable{}
	}
	return s.DB
}

func (s *Server) buildServices(extra []notify.Dispatcher) error {
	cfg := s.Cfg

	s.Tracker = trip.NewTracker(s.tripStore(), trip.Options{
		Policy:      trip.ParsePolicy(cfg.ActiveTripPolicy),
		MaxSpeedKmh: cfg.MaxSpeedKmh,
		Metrics:     s.Metrics,
	})

	scoreCfg := scoring.DefaultConfig()
	scoreCfg.PriceAnchor = cfg.PriceAnchor
	scoreCfg.PriceSlope = cfg.PriceSlope
	scoreCfg.NearbyPenalty = cfg.NearbyPenalty
	scoreCfg.AlongRoutePenalty = cfg.AlongRoutePenalty
	scorer, err := scoring.NewScorer(scoreCfg)
	if err != nil {
		return fmt.Errorf("scorer: %w", err)
	}

	s.Stations = station.NewService(s.querier(), cfg.MaxPriceAge)

	deps := recommend.Deps{
		Stations:  s.Stations,
		Prices:    s.Stations,
		Reference: station.NewReferencePricer(s.Stations, s.Redis, cfg.ReferencePriceTTL),
		Scorer:    scorer,
	}
	if cfg.RoutingURL != "" {
		deps.Routes = routing.NewClient(nil, cfg.RoutingURL, cfg.RoutingTimeout)
	} else {
		log.Printf("ROUTING_URL not set; along-route recommendations disabled")
	}

	engineCfg := recommend.DefaultConfig()
	if cfg.MaxDetourKm > 0 {
		engineCfg.MaxDetourKm = cfg.MaxDetourKm
	}
	if cfg.ReferencePrice > 0 {
		engineCfg.ReferencePrice = cfg.ReferencePrice
	}
	s.Engine = recommend.NewEngine(deps, engineCfg)

	dispatchers := notify.Multi{s.Stream}
	dispatchers = append(dispatchers, extra...)
	s.History = s.notificationHistory()
	s.Tracking = tracking.NewService(s.Tracker, s.Engine, dispatchers, s.History, s.Metrics, cfg.NotifyRadiusKm)
	return nil
}

func (s *Server) tripStore() trip.Store {
	switch s.Cfg.TripStore {
	case "postgres":
		if s.DB != nil {
			return trip.NewPostgresStore(s.DB)
		}
		log.Printf("TRIP_STORE=postgres but postgres is unavailable; using memory store")
	case "", "memory":
	default:
		log.Printf("unknown TRIP_STORE %q; using memory store", s.Cfg.TripStore)
	}
	return trip.NewMemoryStore()
}

// notificationHistory follows TRIP_STORE so trips and their inbox share a
// backend.
func (s *Server) notificationHistory() notify.History {
	if s.Cfg.TripStore == "postgres" && s.DB != nil {
		return notify.NewPostgresHistory(s.DB)
	}
	return notify.NewMemoryHistory()
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "time": time.Now().UTC()})
	})
	if s.Metrics != nil {
		s.App.Get("/metrics", adaptor.HTTPHandler(s.Metrics.Handler()))
	}

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	trips := s.App.Group("/trips")
	trip.RegisterRoutes(trips, s.Tracker, s.Cfg.DefaultIntervalKm, jwtMiddleware)
	tracking.RegisterRoutes(trips, s.Tracking, jwtMiddleware)
	recommend.RegisterRoutes(s.App.Group("/recommendations"), s.Engine, jwtMiddleware)
	station.RegisterRoutes(s.App.Group("/stations"), s.Stations, jwtMiddleware)
	notify.RegisterRoutes(s.App.Group("/notifications"), s.History, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, auth.JWTQueryMiddleware(s.Cfg.JWTSecret))
}
