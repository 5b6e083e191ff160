// Command codesync is a terminal participant in a collaborative interview
// session: it joins a session as interviewer or candidate, mirrors the
// shared document, chat, notes, timer and evaluation results, and accepts
// line commands for every operation the session supports.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v3"

	"codesync/internal/client"
	"codesync/internal/domain"
	"codesync/internal/gateway"
)

func main() {
	// A local .env is a convenience, not a requirement.
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "codesync",
		Usage: "real-time collaborative coding interview client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "gateway",
				Usage:   "gateway base URL",
				Value:   "http://localhost:8080",
				Sources: cli.EnvVars("CODESYNC_GATEWAY"),
			},
			&cli.StringSliceFlag{
				Name:    "redis",
				Usage:   "broker address(es)",
				Value:   []string{"localhost:6379"},
				Sources: cli.EnvVars("CODESYNC_REDIS"),
			},
			&cli.StringFlag{
				Name:    "redis-pass",
				Usage:   "broker password",
				Sources: cli.EnvVars("CODESYNC_REDIS_PASS"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			initLogging(cmd.Bool("verbose"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			createCommand(),
			joinCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})))
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "create a new interview session and print its id",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "display name", Value: "Interviewer"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			token, err := authenticate(ctx, cmd, uuid.NewString(), cmd.String("name"), domain.RoleInterviewer)
			if err != nil {
				return err
			}

			gw := gateway.NewClient(gateway.Config{
				BaseURL: cmd.String("gateway"),
				Token:   token,
			})

			ss, err := gw.CreateSession(ctx)
			if err != nil {
				return err
			}

			fmt.Println(ss.ID)
			return nil
		},
	}
}

func joinCommand() *cli.Command {
	return &cli.Command{
		Name:  "join",
		Usage: "join a session and start the interactive loop",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session", Usage: "session id", Required: true},
			&cli.StringFlag{Name: "role", Usage: "INTERVIEWER or CANDIDATE", Value: string(domain.RoleCandidate)},
			&cli.StringFlag{Name: "name", Usage: "display name", Value: "Anonymous"},
			&cli.StringFlag{Name: "user", Usage: "stable user id, random when omitted"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			role := domain.Role(cmd.String("role"))
			if role != domain.RoleInterviewer && role != domain.RoleCandidate {
				return fmt.Errorf("unknown role: %s", role)
			}

			userID := cmd.String("user")
			if userID == "" {
				userID = uuid.NewString()
			}
			name := cmd.String("name")

			token, err := authenticate(ctx, cmd, userID, name, role)
			if err != nil {
				return err
			}

			c := client.Config{
				SessionID: cmd.String("session"),
				UserID:    userID,
				UserName:  name,
				Role:      role,
				Token:     token,
			}
			c.Gateway.BaseURL = cmd.String("gateway")
			c.Redis.Addrs = cmd.StringSlice("redis")
			c.Redis.Pass = cmd.String("redis-pass")

			cl, err := client.Init(c)
			if err != nil {
				return err
			}
			defer cl.Shutdown()

			if err := cl.Start(ctx); err != nil {
				return err
			}

			return runSession(ctx, cl, role)
		},
	}
}

// authenticate exchanges the participant identity for a bearer token.
func authenticate(ctx context.Context, cmd *cli.Command, userID, name string, role domain.Role) (string, error) {
	anon := gateway.NewClient(gateway.Config{BaseURL: cmd.String("gateway")})

	token, err := anon.IssueToken(ctx, gateway.IssueTokenRequest{
		UserID: userID,
		Name:   name,
		Role:   role,
	})
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	return token, nil
}
