package main

import (
	"context"
	"io"
	"os"

	"github.com/lox/homepoker/internal/statistics"
	"github.com/lox/homepoker/internal/storage"
)

// LeaderboardCmd ranks a session's players by one metric
type LeaderboardCmd struct {
	RepositoryFlags
	FilterFlags

	Session string `arg:"" help:"Session id"`
	Metric  string `kong:"short='m',default='net_chips',help='net_chips, hands_played, bb_per_100, vpip, pfr, aggression_factor, win_rate or showdown_win_rate'"`
	Limit   int    `kong:"short='n',default='10',help='Players to show (0 = all)'"`
}

func (c *LeaderboardCmd) Run() error {
	ctx := context.Background()
	_, repo, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()
	return c.run(ctx, repo, os.Stdout)
}

func (c *LeaderboardCmd) run(ctx context.Context, repo storage.HandRepository, w io.Writer) error {
	metric, err := statistics.ParseMetric(c.Metric)
	if err != nil {
		return err
	}
	hands, err := repo.GetHandsForSession(ctx, c.Session)
	if err != nil {
		return err
	}
	board := statistics.GenerateLeaderboard(hands, metric, c.filters(c.Session), c.Limit)
	return renderLeaderboard(w, c.Session, metric, board)
}
