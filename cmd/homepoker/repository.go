package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lox/homepoker/cmd/homepoker/shared"
	"github.com/lox/homepoker/internal/config"
	"github.com/lox/homepoker/internal/handhistory"
	"github.com/lox/homepoker/internal/statistics"
	"github.com/lox/homepoker/internal/storage"
)

// RepositoryFlags are shared by the commands that read stored hands.
type RepositoryFlags struct {
	Config string `kong:"short='c',default='homepoker.hcl',type='path',help='Path to the HCL config file naming the storage backend'"`
	Debug  bool   `kong:"help='Enable debug logging'"`
}

// open connects the configured repository. The memory driver starts empty,
// so these commands are only useful against postgres or redis.
func (f RepositoryFlags) open(ctx context.Context) (*config.Config, storage.HandRepository, error) {
	cfg, err := config.Load(f.Config)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", f.Config, err)
	}

	level := zerolog.WarnLevel
	if f.Debug {
		level = zerolog.DebugLevel
	}
	logger := shared.SetupLogger(level)
	if cfg.Storage.Driver == config.StorageMemory {
		logger.Warn().Str("config", f.Config).Msg("Storage driver is memory, no stored hands will be found")
	}

	repo, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, repo, nil
}

// FilterFlags narrow the hands a statistic is computed over.
type FilterFlags struct {
	Position string   `kong:"help='Only hands played from this position (BTN, SB, BB, UTG, MP, HJ, CO)'"`
	HandType []string `kong:"name='hand-type',help='Only hands of these types (heads_up, all_in, regular)'"`
}

func (f FilterFlags) filters(sessionID string) statistics.Filters {
	out := statistics.Filters{SessionID: sessionID, Position: f.Position}
	for _, t := range f.HandType {
		out.HandTypes = append(out.HandTypes, handhistory.HandType(t))
	}
	return out
}
