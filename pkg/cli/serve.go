package cli

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/m-mizutani/knowbot/pkg/acl"
	"github.com/m-mizutani/knowbot/pkg/adapter/botframework"
	"github.com/m-mizutani/knowbot/pkg/metrics"
	"github.com/m-mizutani/knowbot/pkg/server"
	"github.com/m-mizutani/knowbot/pkg/usecase/chat"
	"github.com/m-mizutani/knowbot/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func serveCommand() *cli.Command {
	var (
		cfg            config
		appID          string
		appPassword    string
		host           string
		port           int
		turnTimeout    time.Duration
		streamInterval time.Duration
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "app-id",
			Usage:       "Azure Bot app id (empty disables token verification)",
			Sources:     cli.EnvVars("MICROSOFT_APP_ID"),
			Destination: &appID,
		},
		&cli.StringFlag{
			Name:        "app-password",
			Usage:       "Azure Bot app password",
			Sources:     cli.EnvVars("MICROSOFT_APP_PASSWORD"),
			Destination: &appPassword,
		},
		&cli.StringFlag{
			Name:        "host",
			Usage:       "Listen host",
			Value:       "0.0.0.0",
			Sources:     cli.EnvVars("HOST"),
			Destination: &host,
		},
		&cli.IntFlag{
			Name:        "port",
			Usage:       "Listen port",
			Value:       3978,
			Sources:     cli.EnvVars("PORT"),
			Destination: &port,
		},
		&cli.DurationFlag{
			Name:        "turn-timeout",
			Usage:       "Upper bound for answering one message",
			Value:       server.DefaultTurnTimeout,
			Sources:     cli.EnvVars("TURN_TIMEOUT"),
			Destination: &turnTimeout,
		},
		&cli.DurationFlag{
			Name:        "stream-interval",
			Usage:       "Minimum interval between streamed updates",
			Value:       time.Second,
			Sources:     cli.EnvVars("STREAM_INTERVAL"),
			Destination: &streamInterval,
		},
	}
	flags = append(flags, aclFlags(&cfg)...)
	flags = append(flags, reloadFlags(&cfg)...)
	flags = append(flags, directoryFlags(&cfg)...)
	flags = append(flags, backendFlags(&cfg)...)
	flags = append(flags, sessionFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the bot messaging endpoint",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger := logging.From(ctx)

			m := metrics.New(nil)
			opts, watcher, cleanup, err := cfg.serveDependencies(ctx, m)
			if err != nil {
				return err
			}
			defer cleanup()

			auth, err := botframework.NewAuthenticator(ctx, appID)
			if err != nil {
				return err
			}

			orch := chat.New(opts...)
			srv := server.New(orch,
				botframework.NewConnector(appID, appPassword, cfg.tenantID),
				server.WithAuthenticator(auth),
				server.WithMetricsHandler(m.Handler()),
				server.WithTurnTimeout(turnTimeout),
				server.WithStreamInterval(streamInterval),
			)
			if appID == "" {
				logger.Warn("app-id is not set, inbound tokens are not verified")
			}

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return srv.Run(ctx, net.JoinHostPort(host, strconv.Itoa(port)))
			})
			if watcher != nil {
				eg.Go(func() error {
					return watcher.Run(ctx)
				})
			}
			return eg.Wait()
		},
	}
}

// serveDependencies builds the orchestrator options. Without a directory
// the policy is not loaded and the bot runs in echo mode.
func (cfg *config) serveDependencies(ctx context.Context, m *metrics.Metrics) ([]chat.Option, *acl.Watcher, func(), error) {
	logger := logging.From(ctx)
	if !cfg.aclEnabled() {
		logger.Warn("graph credentials are not set, running in echo mode without access control")
		return cfg.chatOptions(nil, nil, m), nil, func() {}, nil
	}

	store, cleanup, err := cfg.newPolicyStore(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	dir, err := cfg.newDirectory(m.ObserveIdentityCache)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	return cfg.chatOptions(dir, store, m), cfg.newWatcher(store, m.ObserveReload), cleanup, nil
}
