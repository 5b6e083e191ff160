// Package client assembles the per-session core: one broker connection, one
// gateway client and the five synchronized channels, wired to an event bus
// the rendering layer subscribes to. One Client per active session view:
// create on mount, Shutdown on unmount, a session-id change means a fresh
// Client.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"codesync/internal/chat"
	"codesync/internal/collab"
	"codesync/internal/domain"
	"codesync/internal/event"
	"codesync/internal/gateway"
	"codesync/internal/grading"
	"codesync/internal/notes"
	"codesync/internal/realtime"
	"codesync/internal/timer"
)

type Config struct {
	SessionID string
	UserID    string
	UserName  string
	Role      domain.Role
	Token     string

	Gateway struct {
		BaseURL string
		Timeout time.Duration
	}

	Redis struct {
		Addrs []string
		Pass  string
	}

	// Tuning knobs; zero values pick the component defaults.
	ReconnectDelay  time.Duration
	SaveDebounce    time.Duration
	EvaluateTimeout time.Duration
}

type Client struct {
	c Config

	eb *event.Bus

	infra struct {
		realtime *realtime.Client
		gateway  *gateway.Client
	}

	component struct {
		document *collab.Sync
		timer    *timer.Coordinator
		chat     *chat.Channel
		notes    *notes.Channel
		grading  *grading.Coordinator
	}
}

func Init(c Config) (*Client, error) {
	if c.SessionID == "" {
		return nil, fmt.Errorf("client: session id is required")
	}

	cl := &Client{c: c, eb: event.NewBus()}

	if err := cl.initInfra(); err != nil {
		return nil, fmt.Errorf("client: init infra: %w", err)
	}

	cl.initComponents()
	return cl, nil
}

func (cl *Client) initInfra() error {
	cl.infra.gateway = gateway.NewClient(gateway.Config{
		BaseURL: cl.c.Gateway.BaseURL,
		Token:   cl.c.Token,
		Timeout: cl.c.Gateway.Timeout,
	})

	rt, err := realtime.NewClient(realtime.Config{
		Addrs:          cl.c.Redis.Addrs,
		Pass:           cl.c.Redis.Pass,
		ReconnectDelay: cl.c.ReconnectDelay,
		OnStateChange: func(connected bool) {
			cl.eb.Publish(context.Background(), domain.EventConnectionChanged{Connected: connected})
		},
	})
	if err != nil {
		return fmt.Errorf("realtime: %w", err)
	}
	cl.infra.realtime = rt

	return nil
}

func (cl *Client) initComponents() {
	cl.component.document = collab.NewSync(collab.Config{
		SessionID:    cl.c.SessionID,
		Broker:       cl.infra.realtime,
		Saver:        cl.infra.gateway,
		EventBus:     cl.eb,
		SaveDebounce: cl.c.SaveDebounce,
		OnSaveError: func(err error) {
			slog.Error("client: document save failed", "session", cl.c.SessionID, "error", err)
		},
	})

	cl.component.timer = timer.NewCoordinator(timer.Config{
		SessionID: cl.c.SessionID,
		Role:      cl.c.Role,
		Broker:    cl.infra.realtime,
		Controls:  cl.infra.gateway,
		EventBus:  cl.eb,
	})

	cl.component.chat = chat.NewChannel(chat.Config{
		SessionID: cl.c.SessionID,
		UserID:    cl.c.UserID,
		Broker:    cl.infra.realtime,
		Gateway:   cl.infra.gateway,
		EventBus:  cl.eb,
	})

	cl.component.notes = notes.NewChannel(notes.Config{
		SessionID: cl.c.SessionID,
		UserID:    cl.c.UserID,
		Role:      cl.c.Role,
		Broker:    cl.infra.realtime,
		Gateway:   cl.infra.gateway,
		EventBus:  cl.eb,
	})

	cl.component.grading = grading.NewCoordinator(grading.Config{
		SessionID:       cl.c.SessionID,
		Broker:          cl.infra.realtime,
		Gateway:         cl.infra.gateway,
		EventBus:        cl.eb,
		EvaluateTimeout: cl.c.EvaluateTimeout,
	})
}

// Start connects to the broker and rehydrates every channel from the
// gateway. Subscriptions registered during Init are applied as soon as the
// connection is up.
func (cl *Client) Start(ctx context.Context) error {
	if err := cl.infra.realtime.Connect(ctx); err != nil {
		return fmt.Errorf("client: connect: %w", err)
	}

	ss, err := cl.infra.gateway.GetSession(ctx, cl.c.SessionID)
	if err != nil {
		return fmt.Errorf("client: load session: %w", err)
	}
	cl.component.document.Seed(ss.Code, ss.Language)
	if ss.Timer != nil {
		cl.component.timer.Seed(*ss.Timer)
	}

	var eg errgroup.Group
	eg.Go(func() error { return cl.component.chat.Load(ctx) })
	eg.Go(func() error { return cl.component.notes.Load(ctx) })
	eg.Go(func() error { return cl.component.grading.Load(ctx) })
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("client: rehydrate: %w", err)
	}

	slog.InfoContext(ctx, "client: session joined",
		"session", cl.c.SessionID,
		"user", cl.c.UserID,
		"name", cl.c.UserName,
		"role", cl.c.Role,
	)
	return nil
}

// Shutdown tears the session view down: every channel detaches, the broker
// connection closes, and in-flight bus handlers drain.
func (cl *Client) Shutdown() {
	cl.component.document.Close()
	cl.component.timer.Close()
	cl.component.chat.Close()
	cl.component.notes.Close()
	cl.component.grading.Close()

	cl.infra.realtime.Disconnect()
	cl.eb.Stop()

	slog.Info("client: session left", "session", cl.c.SessionID)
}

// Bus is the hand-off point to the rendering layer.
func (cl *Client) Bus() *event.Bus { return cl.eb }

func (cl *Client) Document() *collab.Sync        { return cl.component.document }
func (cl *Client) Timer() *timer.Coordinator     { return cl.component.timer }
func (cl *Client) Chat() *chat.Channel           { return cl.component.chat }
func (cl *Client) Notes() *notes.Channel         { return cl.component.notes }
func (cl *Client) Grading() *grading.Coordinator { return cl.component.grading }

// Connected reports broker connectivity for a persistent UI indicator.
func (cl *Client) Connected() bool { return cl.infra.realtime.Connected() }
