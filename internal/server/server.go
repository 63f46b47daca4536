package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/manseok-song/readlock-sub000/internal/auth"
	"github.com/manseok-song/readlock-sub000/internal/config"
	"github.com/manseok-song/readlock-sub000/internal/db"
	"github.com/manseok-song/readlock-sub000/internal/history"
	"github.com/manseok-song/readlock-sub000/internal/locker"
	"github.com/manseok-song/readlock-sub000/internal/remote"
	"github.com/manseok-song/readlock-sub000/internal/session"
	"github.com/manseok-song/readlock-sub000/internal/store"
	"github.com/manseok-song/readlock-sub000/internal/syncer"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	Log      *zap.Logger
	Store    *store.Store
	Sessions *session.Service
	Syncer   *syncer.Orchestrator
	Locker   *locker.Hub
	History  *history.Service
}

func NewServer(cfg config.Config, pg *pgxpool.Pool, redisClient *redis.Client, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	st := store.New(redisClient, cfg.HistoryCacheSize)
	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.DeviceID)
	authority := remote.NewClient(cfg.AuthorityURL, cfg.AuthorityTimeout, issuer, log)

	var querier db.Querier
	if pg != nil {
		querier = pg
	}
	hist := history.NewService(querier, st, log)
	orch := syncer.New(st, authority, hist, log)
	hub := locker.NewHub(redisClient, log)
	sessions := session.NewService(st, authority, hub, orch, hist, log)

	s := &Server{
		App:      app,
		Cfg:      cfg,
		Log:      log,
		Store:    st,
		Sessions: sessions,
		Syncer:   orch,
		Locker:   hub,
		History:  hist,
	}

	registerRoutes(s, issuer)
	return s
}

func registerRoutes(s *Server, issuer *auth.TokenIssuer) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), issuer)
	session.RegisterRoutes(s.App.Group("/sessions"), s.Sessions, jwtMiddleware)
	history.RegisterRoutes(s.App.Group("/sessions/history"), s.History, jwtMiddleware)
	syncer.RegisterRoutes(s.App.Group("/sync"), s.Syncer, jwtMiddleware)
	locker.RegisterRoutes(s.App.Group("/locker"), s.Locker)
}

// StartBackground launches the sync loop and the lock-event pump, then kicks
// an initial drain for anything queued before the last shutdown.
func (s *Server) StartBackground(ctx context.Context) {
	go s.Syncer.Run(ctx)
	go s.pumpLockerEvents(ctx)
	go func() {
		if err := s.Sessions.RecoverRemote(ctx); err != nil {
			s.Log.Warn("active session recovery failed", zap.Error(err))
		}
		s.Syncer.Trigger()
	}()
}

func (s *Server) pumpLockerEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.Locker.Events():
			s.Sessions.HandleLockerEvent(ctx, ev)
		}
	}
}
