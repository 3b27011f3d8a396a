package server

import (
	"context"
	"log/slog"

	"github.com/Abhinavchoudhary2005/AlertIQ/internal/classifier"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/config"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/contacts"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/deviation"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/escalation"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/journey"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/logging"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/notify"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/route"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/stream"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Log      *slog.Logger
	Stream   *stream.Hub
	Sessions *tracking.Store
	Journeys *journey.Registry
	SOS      *escalation.Coordinator

	contacts *contacts.Service
	routes   *route.Service
}

// NewServer wires every component. db, redisClient and mq may be nil; the
// server then runs without persistence, shared sessions or SMS delivery.
func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client, mq *amqp.Channel, log *slog.Logger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	hub := stream.NewHub(redisClient, log)
	storeCfg := tracking.Config{
		SessionTTL:    cfg.Sessions.SessionTTL,
		SweepInterval: cfg.Sessions.SweepInterval,
		MaxLocations:  cfg.Sessions.MaxLocations,
	}
	if redisClient != nil {
		storeCfg.Mirror = tracking.NewRedisMirror(redisClient)
	}
	sessions := tracking.NewStore(hub, storeCfg, log)

	s := &Server{
		App:      app,
		Cfg:      cfg,
		DB:       db,
		Redis:    redisClient,
		Log:      log,
		Stream:   hub,
		Sessions: sessions,
	}
	if db != nil {
		s.contacts = contacts.NewService(db)
		s.routes = route.NewService(db)
	}

	var dir escalation.Directory
	if s.contacts != nil {
		dir = s.contacts
	}
	s.SOS = escalation.NewCoordinator(dir, sessions, newSender(mq, log), escalation.Config{
		PublicBaseURL: cfg.PublicBaseURL,
		NotifyTimeout: cfg.NotifyTimeout,
	}, log)

	s.Journeys = journey.NewRegistry(journeyConfig(cfg), journey.Deps{
		Classifier: newClassifier(cfg),
		Escalator:  s.SOS,
		Sink:       sessions,
	}, log)

	registerRoutes(s)
	return s
}

// Start runs background work until ctx is done.
func (s *Server) Start(ctx context.Context) {
	go s.Sessions.Run(ctx)
}

// Close stops journeys and the stream relay.
func (s *Server) Close() {
	s.Journeys.Close()
	s.Stream.Close()
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"sessions": s.Sessions.Len(),
			"journeys": s.Journeys.Active(),
		})
	})

	sos := s.App.Group("/sos")
	escalation.RegisterRoutes(sos, s.SOS)
	tracking.RegisterRoutes(sos, s.Sessions, s.Cfg.PublicBaseURL)
	stream.RegisterRoutes(sos, s.Sessions)

	var routeSource journey.RouteSource
	if s.routes != nil {
		routeSource = s.routes
	}
	journey.RegisterRoutes(s.App.Group("/journeys"), s.Journeys, routeSource)

	users := s.App.Group("/users", requireDB(s))
	routes := s.App.Group("/routes", requireDB(s))
	if s.DB != nil {
		contacts.RegisterRoutes(users, s.contacts)
		route.RegisterRoutes(routes, s.routes)
	}
}

func requireDB(s *Server) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if s.DB == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "database not configured")
		}
		return c.Next()
	}
}

func journeyConfig(cfg config.Config) journey.Config {
	jc := journey.DefaultConfig()
	if cfg.Journey.TraveledThresholdM > 0 {
		jc.Tracker.TraveledThresholdM = cfg.Journey.TraveledThresholdM
	}
	if cfg.Journey.DestinationRadiusM > 0 {
		jc.Tracker.DestinationRadiusM = cfg.Journey.DestinationRadiusM
	}
	if cfg.Journey.BacktrackWindow > 0 {
		jc.Tracker.BacktrackWindow = cfg.Journey.BacktrackWindow
	}
	jc.Monitor = deviation.Config{Countdown: cfg.Journey.Countdown, Cooldown: cfg.Journey.Cooldown}
	if cfg.Journey.CheckInterval > 0 {
		jc.CheckInterval = cfg.Journey.CheckInterval
	}
	if cfg.ClassifierTimeout > 0 {
		jc.ClassifierTimeout = cfg.ClassifierTimeout
	}
	return jc
}

func newClassifier(cfg config.Config) classifier.Classifier {
	if cfg.ClassifierURL != "" {
		return classifier.NewHTTP(cfg.ClassifierURL, cfg.ClassifierTimeout)
	}
	return classifier.NewRules(classifier.DefaultRuleConfig())
}

func newSender(mq *amqp.Channel, log *slog.Logger) notify.Sender {
	if mq == nil {
		return notify.NewLogSender(log)
	}
	sender, err := notify.NewAMQPSender(mq, log)
	if err != nil {
		log.Error("amqp sender unavailable, falling back to log sender", "error", err)
		return notify.NewLogSender(log)
	}
	return sender
}
