package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lox/homepoker/cmd/homepoker/shared"
	"github.com/lox/homepoker/internal/auth"
	"github.com/lox/homepoker/internal/config"
	"github.com/lox/homepoker/internal/events"
	"github.com/lox/homepoker/internal/handhistory"
	"github.com/lox/homepoker/internal/metrics"
	"github.com/lox/homepoker/internal/randutil"
	"github.com/lox/homepoker/internal/router"
	"github.com/lox/homepoker/internal/server"
	"github.com/lox/homepoker/internal/storage"
	"github.com/lox/homepoker/internal/table"
)

// historyBuffer is how many completed hands may wait for storage.
const historyBuffer = 1024

// ServerCmd runs the engine with the tables named in the config file
type ServerCmd struct {
	Config   string `kong:"short='c',default='homepoker.hcl',type='path',help='Path to the HCL config file (defaults apply when missing)'"`
	Addr     string `kong:"help='Listen address, overriding server.address and server.port'"`
	Debug    bool   `kong:"help='Enable debug logging'"`
	JSONLogs bool   `kong:"name='json-logs',help='Log JSON instead of console output'"`
	Seed     *int64 `kong:"help='Deterministic deck seed for demos and replays (optional)'"`
}

func (c *ServerCmd) Run() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", c.Config, err)
	}
	addr := cfg.Address()
	if c.Addr != "" {
		addr = c.Addr
	}

	level, err := shared.Level(cfg.Server.LogLevel, c.Debug)
	if err != nil {
		return err
	}
	logger := shared.SetupLogger(level)
	if c.JSONLogs {
		logger = shared.SetupStructuredLogger(level)
	}

	ctx := shared.SetupSignalHandler(logger)
	return c.serve(ctx, cfg, addr, logger)
}

func (c *ServerCmd) serve(ctx context.Context, cfg *config.Config, addr string, logger zerolog.Logger) error {
	repo, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var publisher events.Publisher = events.Nop{}
	if cfg.Events.NatsURL != "" {
		nats, err := events.Connect(cfg.Events.NatsURL, cfg.Events.Subject, logger)
		if err != nil {
			return err
		}
		publisher = nats
	}
	defer publisher.Close()

	var archive *handhistory.Archive
	if cfg.History.Enabled {
		archive, err = handhistory.NewArchive(logger, handhistory.ArchiveConfig{
			Dir:              cfg.History.Dir,
			FlushInterval:    cfg.FlushInterval(),
			FlushHands:       cfg.History.FlushHands,
			IncludeHoleCards: cfg.History.IncludeHoleCards,
			Variant:          cfg.History.Variant,
			OnFlushError:     func(error) { m.ArchiveFailed() },
		})
		if err != nil {
			return err
		}
	}
	pipeline := router.NewPipeline(repo, archive, logger, m, historyBuffer)

	r := router.New(logger,
		router.WithTimeBank(cfg.TimeBank()),
		router.WithHandDelay(cfg.HandDelay()),
		router.WithChatLimit(cfg.Server.ChatLimit),
		router.WithHistory(pipeline),
		router.WithMetrics(m),
		router.WithPublisher(publisher),
	)
	defer r.Close()

	for i, t := range cfg.Tables {
		// Each table shuffles on its own goroutine and needs its own source.
		var opts []table.Option
		if c.Seed != nil {
			opts = append(opts, table.WithRand(randutil.New(*c.Seed+int64(i))))
		} else {
			opts = append(opts, table.WithRand(randutil.NewSecure()))
		}
		if _, err := r.CreateTable(t.Name, t.TableConfig(), opts...); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
	}
	if c.Seed != nil {
		logger.Warn().Int64("seed", *c.Seed).Msg("Using deterministic decks")
	}

	serverOpts := []server.Option{
		server.WithGatherer(reg),
		server.WithVariant(cfg.History.Variant),
	}
	if cfg.Server.AuthURL != "" {
		authn, err := auth.NewHTTPAuthenticator(cfg.Server.AuthURL, auth.WithSecret(cfg.Server.AuthSecret))
		if err != nil {
			return err
		}
		serverOpts = append(serverOpts, server.WithAuthenticator(authn))
	} else {
		logger.Warn().Msg("No auth_url configured, trusting client player ids")
	}
	srv, err := server.New(r, repo, logger, serverOpts...)
	if err != nil {
		return err
	}

	// History outlives the server so hands finished during shutdown are
	// still saved, and the archive outlives the pipeline that feeds it.
	historyCtx, stopHistory := context.WithCancel(context.Background())
	defer stopHistory()
	var history errgroup.Group
	history.Go(func() error { return pipeline.Run(historyCtx) })

	archiveCtx, stopArchive := context.WithCancel(context.Background())
	defer stopArchive()
	var archiving errgroup.Group
	if archive != nil {
		archiving.Go(func() error { return archive.Run(archiveCtx) })
	}

	logger.Info().
		Str("address", addr).
		Int("tables", len(cfg.Tables)).
		Str("storage", cfg.Storage.Driver).
		Bool("archive", archive != nil).
		Bool("events", cfg.Events.NatsURL != "").
		Dur("time_bank", cfg.TimeBank()).
		Msg("Starting homepoker server")

	serveErr := srv.ListenAndServe(ctx, addr)

	_ = r.Close()
	stopHistory()
	if err := history.Wait(); err != nil {
		logger.Error().Err(err).Msg("History pipeline failed")
	}
	stopArchive()
	if err := archiving.Wait(); err != nil {
		logger.Error().Err(err).Msg("Archive failed")
	}
	logger.Info().Msg("Server stopped")
	return serveErr
}
