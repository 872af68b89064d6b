package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/homepoker/internal/config"
	"github.com/lox/homepoker/internal/handhistory"
	"github.com/lox/homepoker/poker"
)

var base = time.Date(2025, time.March, 1, 20, 0, 0, 0, time.UTC)

func entry(session string, n int, players ...string) *handhistory.Entry {
	e := &handhistory.Entry{
		HandID:      fmt.Sprintf("%s-%d", session, n),
		SessionID:   session,
		HandNumber:  n,
		StartedAt:   base.Add(time.Duration(n) * time.Minute),
		CompletedAt: base.Add(time.Duration(n)*time.Minute + 20*time.Second),
		SmallBlind:  1,
		BigBlind:    2,
		Board:       poker.MustParseCards("Ah 9c 4d"),
		Pots:        []handhistory.Pot{{Amount: 4}},
		HandType:    handhistory.HandTypeRegular,
	}
	for i, id := range players {
		e.Players = append(e.Players, handhistory.Player{
			PlayerID:  id,
			Seat:      i + 1,
			HoleCards: poker.MustParseCards("As Kd"),
			NetAmount: 2 - 2*i,
		})
	}
	return e
}

func handIDs(hands []*handhistory.Entry) []string {
	ids := make([]string, len(hands))
	for i, e := range hands {
		ids[i] = e.HandID
	}
	return ids
}

// testRepository exercises the HandRepository contract. session names are
// randomized so shared databases can be reused between runs.
func testRepository(t *testing.T, repo HandRepository) {
	ctx := context.Background()
	s1, s2 := "s1-"+uuid.NewString(), "s2-"+uuid.NewString()
	alice, bob := "alice-"+uuid.NewString(), "bob-"+uuid.NewString()

	require.NoError(t, repo.SaveHand(ctx, entry(s1, 2, alice, bob)))
	require.NoError(t, repo.SaveHand(ctx, entry(s1, 1, alice, bob)))
	require.NoError(t, repo.SaveHand(ctx, entry(s2, 3, alice)))
	require.NoError(t, repo.SaveHand(ctx, entry(s1, 3, bob)))

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetHand(ctx, s1+"-1")
		require.NoError(t, err)
		assert.Equal(t, s1, got.SessionID)
		require.Len(t, got.Players, 2)
		assert.Equal(t, alice, got.Players[0].PlayerID)
		assert.Equal(t, poker.MustParseCards("As Kd"), got.Players[0].HoleCards)
		assert.Equal(t, poker.MustParseCards("Ah 9c 4d"), got.Board)
		assert.True(t, got.CompletedAt.Equal(base.Add(80*time.Second)))

		got.Players[0].PlayerID = "mutated"
		again, err := repo.GetHand(ctx, s1+"-1")
		require.NoError(t, err)
		assert.Equal(t, alice, again.Players[0].PlayerID)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := repo.GetHand(ctx, "no-such-hand")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("player newest first", func(t *testing.T) {
		hands, err := repo.GetHandsForPlayer(ctx, alice, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{s2 + "-3", s1 + "-2", s1 + "-1"}, handIDs(hands))

		hands, err = repo.GetHandsForPlayer(ctx, alice, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{s1 + "-2"}, handIDs(hands))

		hands, err = repo.GetHandsForPlayer(ctx, alice, 10, 5)
		require.NoError(t, err)
		assert.Empty(t, hands)
	})

	t.Run("session in hand order", func(t *testing.T) {
		hands, err := repo.GetHandsForSession(ctx, s1)
		require.NoError(t, err)
		assert.Equal(t, []string{s1 + "-1", s1 + "-2", s1 + "-3"}, handIDs(hands))

		hands, err = repo.GetHandsForSession(ctx, "no-such-session")
		require.NoError(t, err)
		assert.Empty(t, hands)
	})

	t.Run("save replaces", func(t *testing.T) {
		e := entry(s1, 1, alice, bob)
		e.Pots[0].Amount = 40
		require.NoError(t, repo.SaveHand(ctx, e))
		got, err := repo.GetHand(ctx, s1+"-1")
		require.NoError(t, err)
		assert.Equal(t, 40, got.TotalPot())

		hands, err := repo.GetHandsForSession(ctx, s1)
		require.NoError(t, err)
		assert.Len(t, hands, 3)
	})

	t.Run("rejects incomplete hands", func(t *testing.T) {
		assert.Error(t, repo.SaveHand(ctx, nil))
		assert.Error(t, repo.SaveHand(ctx, &handhistory.Entry{SessionID: s1}))
		assert.Error(t, repo.SaveHand(ctx, &handhistory.Entry{HandID: "x"}))
	})
}

func TestMemoryRepository(t *testing.T) {
	testRepository(t, NewMemoryRepository())
}

func TestMemoryRepositoryCopiesOnSave(t *testing.T) {
	repo := NewMemoryRepository()
	e := entry("s", 1, "alice")
	require.NoError(t, repo.SaveHand(context.Background(), e))
	e.Players[0].NetAmount = 999

	got, err := repo.GetHand(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Players[0].NetAmount)
}

func TestOpen(t *testing.T) {
	repo, err := Open(context.Background(), config.Storage{Driver: config.StorageMemory}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryRepository{}, repo)
	assert.NoError(t, repo.Close())

	_, err = Open(context.Background(), config.Storage{Driver: "mongo"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv("HOMEPOKER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HOMEPOKER_TEST_POSTGRES_DSN not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	repo, err := NewPostgresRepository(context.Background(), db, 2, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	testRepository(t, repo)
}

func TestRedisRepository(t *testing.T) {
	addr := os.Getenv("HOMEPOKER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HOMEPOKER_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())
	repo := NewRedisRepository(client, "homepoker-test-"+uuid.NewString(), zerolog.Nop())
	t.Cleanup(func() { repo.Close() })
	testRepository(t, repo)
}
