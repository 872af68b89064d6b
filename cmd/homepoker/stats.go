package main

import (
	"context"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/lox/homepoker/internal/statistics"
	"github.com/lox/homepoker/internal/storage"
)

// StatsCmd prints one player's statistics across stored hands
type StatsCmd struct {
	RepositoryFlags
	FilterFlags

	Player  string `arg:"" help:"Player id"`
	Session string `kong:"short='s',help='Only hands from this session'"`
	JSON    bool   `kong:"help='Print JSON instead of tables'"`
}

func (c *StatsCmd) Run() error {
	ctx := context.Background()
	_, repo, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()
	return c.run(ctx, repo, os.Stdout)
}

func (c *StatsCmd) run(ctx context.Context, repo storage.HandRepository, w io.Writer) error {
	hands, err := repo.GetHandsForPlayer(ctx, c.Player, 0, 0)
	if err != nil {
		return err
	}
	st := statistics.CalculatePlayerStatistics(hands, c.Player, c.filters(c.Session))
	if c.JSON {
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	return renderPlayerStats(w, st)
}
