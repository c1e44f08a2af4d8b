package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/tdmalink/internal/app"
	"github.com/danmuck/tdmalink/internal/auth"
	"github.com/danmuck/tdmalink/internal/codec"
	"github.com/danmuck/tdmalink/internal/config"
	"github.com/danmuck/tdmalink/internal/driver"
	"github.com/danmuck/tdmalink/internal/driver/factory"
	"github.com/danmuck/tdmalink/internal/driver/loopback"
	"github.com/danmuck/tdmalink/internal/logging"
	"github.com/danmuck/tdmalink/internal/messages"
	"github.com/danmuck/tdmalink/internal/node"
	"github.com/danmuck/tdmalink/internal/observability"
	"github.com/danmuck/tdmalink/internal/server"
	"github.com/rs/zerolog"
	"github.com/tebeka/atexit"
)

type participant struct {
	role app.Role
	node *node.Node
}

func run(parent context.Context, cfg config.Config, runFor time.Duration) error {
	if err := checkLogFile(cfg.Log.File); err != nil {
		return err
	}
	base, closer := logging.ConfigureRuntime(cfg.Log)
	if closer != nil {
		atexit.Register(func() { _ = closer.Close() })
		defer closer.Close()
	}
	logger, runID := observability.InitLogger(base, "tdmalink")
	observability.RegisterMetrics()
	logger.Info().
		Str("run_id", runID).
		Str("role", cfg.Role.String()).
		Str("driver", cfg.Kind.String()).
		Str("endpoint", cfg.Driver.Endpoint).
		Msg("tdmalink starting")

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if runFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runFor)
		defer cancel()
	}

	parts, err := startParticipants(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("tdmalink exception at startup")
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srvDone := make(chan error, 1)
	if cfg.StatusAddr != "" {
		sources := make(map[string]server.StatusSource, len(parts))
		for _, p := range parts {
			sources[p.role.String()] = p.node
		}
		var opts []server.Option
		if cfg.StatusToken != "" {
			opts = append(opts, server.WithAuth(auth.StaticToken{Token: cfg.StatusToken}))
		}
		srv := server.New("tdmalink", cfg.StatusAddr, sources, logger, opts...)
		go func() { srvDone <- srv.Serve(ctx) }()
	} else {
		srvDone <- nil
	}

	errCh := make(chan error, len(parts))
	for _, p := range parts {
		go func(p participant) {
			if err := p.node.Run(ctx); err != nil {
				errCh <- fmt.Errorf("%s: %w", p.role, err)
				return
			}
			errCh <- nil
		}(p)
	}

	var runErr error
	for range parts {
		if err := <-errCh; err != nil && runErr == nil {
			runErr = err
			cancel()
		}
	}
	cancel()
	if err := <-srvDone; err != nil {
		logger.Warn().Err(err).Msg("tdmalink status server")
	}

	if runErr != nil {
		logger.Error().Err(runErr).Msg("tdmalink exception while running")
		return runErr
	}
	logger.Info().Msg("tdmalink stopped")
	return nil
}

// startParticipants builds and starts the local node, plus the peer when the
// loopback driver runs both roles in-process.
func startParticipants(cfg config.Config, logger zerolog.Logger) ([]participant, error) {
	cfgs := []config.Config{cfg}
	var medium *loopback.Medium
	if cfg.Kind == driver.KindLoopback {
		medium = loopback.NewMedium()
		cfgs = append(cfgs, peerConfig(cfg))
	}

	parts := make([]participant, 0, len(cfgs))
	for _, c := range cfgs {
		n, err := buildNode(c, medium, logger)
		if err == nil {
			err = n.Startup(c.MAC, c.Driver)
		}
		if err != nil {
			for _, p := range parts {
				_ = p.node.Stop()
			}
			return nil, err
		}
		parts = append(parts, participant{role: c.Role, node: n})
	}
	return parts, nil
}

func buildNode(cfg config.Config, medium *loopback.Medium, base zerolog.Logger) (*node.Node, error) {
	logger := base.With().Str("role", cfg.Role.String()).Int("modem_id", cfg.Driver.ModemID).Logger()

	drv, err := factory.New(cfg.Kind, factory.Deps{Logger: logger, Medium: medium})
	if err != nil {
		return nil, err
	}
	c := codec.New(codec.WithLogger(logger))
	if err := messages.Register(c); err != nil {
		return nil, err
	}
	application, err := app.New(cfg.Role, rand.New(rand.NewSource(time.Now().UnixNano()+int64(cfg.Role))), base)
	if err != nil {
		return nil, err
	}
	return node.New(cfg.Node, drv, c, application, node.WithLogger(logger)), nil
}

func peerConfig(cfg config.Config) config.Config {
	peer := cfg
	peer.Role = app.RoleVehicle
	if cfg.Role == app.RoleVehicle {
		peer.Role = app.RoleTopside
	}
	peer.MAC.ModemID = peer.Role.ID()
	peer.Driver.ModemID = peer.Role.ID()
	return peer
}

func checkLogFile(path string) error {
	if path == "" {
		return errors.New("log file is required")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("bad value for log file %s: %w", path, err)
	}
	return f.Close()
}
