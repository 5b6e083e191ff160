// Package devgateway is a self-contained stand-in for the production
// gateway: the REST surface, the broadcast fan-out, the authoritative timer
// and a stub evaluator in one process. It exists for local development and
// integration testing of the session core.
package devgateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"codesync/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Addrs []string
		Pass  string
	}

	Auth struct {
		Secret string
	}

	// TickInterval and EvalDelay are overridable for tests; zero picks the
	// production defaults (1s ticks, 500ms evaluation latency).
	TickInterval time.Duration
	EvalDelay    time.Duration
}

type Server struct {
	c Config

	infra struct {
		redis redis.UniversalClient
	}

	service struct {
		store *Store
		auth  *Auth
		bc    *Broadcaster
		timer *TimerRunner
		eval  *Evaluator
		relay *Relay
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("devgateway: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initService() {
	s.service.store = NewStore()
	s.service.auth = NewAuth(s.c.Auth.Secret)
	s.service.bc = NewBroadcaster(s.infra.redis)
	s.service.timer = NewTimerRunner(s.service.store, s.service.bc, s.c.TickInterval)
	s.service.eval = NewEvaluator(s.service.store, s.service.bc, s.c.EvalDelay)
	s.service.relay = NewRelay(s.infra.redis)
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	NewAPI(APIConfig{
		Engine:      e,
		Store:       s.service.store,
		Auth:        s.service.auth,
		Broadcaster: s.service.bc,
		Timer:       s.service.timer,
		Evaluator:   s.service.eval,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

// Handler exposes the HTTP surface for in-process test servers.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) Start() {
	ctx := context.TODO()

	if err := s.service.relay.Start(ctx); err != nil {
		slog.ErrorContext(ctx, "devgateway: start relay failed", "error", err)
		panic(err)
	}

	slog.InfoContext(ctx, fmt.Sprintf("devgateway: HTTP listening on port %d", s.c.HTTP.Port))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.ErrorContext(ctx, "devgateway: shutdown with error", "error", err)
	}
}

// StartRelay brings up only the code relay, for tests that serve HTTP
// through httptest instead of ListenAndServe.
func (s *Server) StartRelay(ctx context.Context) error {
	return s.service.relay.Start(ctx)
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "devgateway: shutdown HTTP failed", "error", err)
	}

	s.service.relay.Stop()
	s.service.timer.Stop()
	s.service.eval.Wait()

	if err := s.infra.redis.Close(); err != nil {
		slog.ErrorContext(ctx, "devgateway: close redis failed", "error", err)
	}

	slog.InfoContext(ctx, "devgateway: shutdown completed")
}
