package router

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/homepoker/internal/handhistory"
	"github.com/lox/homepoker/internal/metrics"
	"github.com/lox/homepoker/internal/storage"
)

func entry(id string, n int) *handhistory.Entry {
	return &handhistory.Entry{
		HandID:      id,
		SessionID:   "s1",
		HandNumber:  n,
		CompletedAt: time.Date(2025, time.March, 1, 20, n, 0, 0, time.UTC),
		Players: []handhistory.Player{
			{PlayerID: "alice", Seat: 1},
			{PlayerID: "bob", Seat: 2},
		},
	}
}

func TestPipelineSavesQueuedHands(t *testing.T) {
	repo := storage.NewMemoryRepository()
	p := NewPipeline(repo, nil, zerolog.Nop(), metrics.New(prometheus.NewRegistry()), 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.Record(entry("h1", 1))
	p.Record(entry("h2", 2))
	require.Eventually(t, func() bool {
		hands, err := repo.GetHandsForSession(context.Background(), "s1")
		return err == nil && len(hands) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestPipelineDrainsOnShutdown(t *testing.T) {
	repo := storage.NewMemoryRepository()
	p := NewPipeline(repo, nil, zerolog.Nop(), nil, 8)
	p.Record(entry("h1", 1))
	p.Record(entry("h2", 2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))

	hands, err := repo.GetHandsForPlayer(context.Background(), "alice", 0, 0)
	require.NoError(t, err)
	assert.Len(t, hands, 2)
}

func TestPipelineDropsWhenFull(t *testing.T) {
	repo := storage.NewMemoryRepository()
	p := NewPipeline(repo, nil, zerolog.Nop(), nil, 1)
	p.Record(entry("h1", 1))
	assert.NotPanics(t, func() { p.Record(entry("h2", 2)) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))

	_, err := repo.GetHand(context.Background(), "h2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPipelineFeedsArchive(t *testing.T) {
	archive, err := handhistory.NewArchive(zerolog.Nop(), handhistory.ArchiveConfig{Dir: t.TempDir(), FlushHands: 10})
	require.NoError(t, err)
	p := NewPipeline(nil, archive, zerolog.Nop(), nil, 4)
	p.Record(entry("h1", 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))
	assert.Equal(t, 1, archive.Buffered("s1"))
}
