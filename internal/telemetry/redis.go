package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// MonitorRedis instruments a redis client with tracing, metrics and dial
// logging. No per-command logging: the broker connection carries a message
// per keystroke burst and would drown the log.
func MonitorRedis(r redis.UniversalClient) error {
	if err := redisotel.InstrumentTracing(r); err != nil {
		return fmt.Errorf("instrument tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(r); err != nil {
		return fmt.Errorf("instrument metrics: %w", err)
	}
	r.AddHook(dialLog{})
	return nil
}

type dialLog struct{}

func (dialLog) DialHook(hook redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := hook(ctx, network, addr)
		if err != nil {
			slog.ErrorContext(ctx, fmt.Sprintf("redis: dial %s %s failed", network, addr), "error", err)
			return nil, err
		}
		slog.InfoContext(ctx, fmt.Sprintf("redis: dialed %s %s", network, addr))
		return conn, nil
	}
}

func (dialLog) ProcessHook(hook redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		return hook(ctx, cmd)
	}
}

func (dialLog) ProcessPipelineHook(hook redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		return hook(ctx, cmds)
	}
}
