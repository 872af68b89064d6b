// Package storage persists completed hand histories behind HandRepository.
package storage

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/lox/homepoker/internal/config"
	"github.com/lox/homepoker/internal/handhistory"
)

// ErrNotFound is returned when a hand does not exist.
var ErrNotFound = errors.New("hand not found")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HandRepository stores frozen hand histories. Saving an existing hand id
// replaces it.
type HandRepository interface {
	SaveHand(ctx context.Context, e *handhistory.Entry) error
	GetHand(ctx context.Context, handID string) (*handhistory.Entry, error)
	// GetHandsForPlayer returns the player's hands newest first. A limit of
	// zero or less returns everything after offset.
	GetHandsForPlayer(ctx context.Context, playerID string, limit, offset int) ([]*handhistory.Entry, error)
	// GetHandsForSession returns a session's hands in hand-number order.
	GetHandsForSession(ctx context.Context, sessionID string) ([]*handhistory.Entry, error)
	Close() error
}

// Open connects the repository selected by the storage block.
func Open(ctx context.Context, cfg config.Storage, logger zerolog.Logger) (HandRepository, error) {
	logger = logger.With().Str("component", "storage").Str("driver", cfg.Driver).Logger()
	switch cfg.Driver {
	case config.StorageMemory, "":
		logger.Info().Msg("Using in-memory hand repository")
		return NewMemoryRepository(), nil
	case config.StoragePostgres:
		return OpenPostgres(ctx, cfg.PostgresDSN, cfg.CacheSize, logger)
	case config.StorageRedis:
		return OpenRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

func validate(e *handhistory.Entry) error {
	switch {
	case e == nil:
		return errors.New("nil hand")
	case e.HandID == "":
		return errors.New("hand has no id")
	case e.SessionID == "":
		return fmt.Errorf("hand %s has no session", e.HandID)
	}
	return nil
}

// newestFirst orders hands by completion time, latest first.
func newestFirst(a, b *handhistory.Entry) int {
	return cmp.Or(
		b.CompletedAt.Compare(a.CompletedAt),
		cmp.Compare(b.SessionID, a.SessionID),
		cmp.Compare(b.HandNumber, a.HandNumber),
	)
}

func byHandNumber(a, b *handhistory.Entry) int {
	return cmp.Compare(a.HandNumber, b.HandNumber)
}

// page applies limit and offset to an ordered slice.
func page(hands []*handhistory.Entry, limit, offset int) []*handhistory.Entry {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(hands) {
		return []*handhistory.Entry{}
	}
	hands = hands[offset:]
	if limit > 0 && len(hands) > limit {
		hands = hands[:limit]
	}
	return slices.Clip(hands)
}

func encode(e *handhistory.Entry) ([]byte, error) {
	return json.Marshal(e)
}

func decode(data []byte) (*handhistory.Entry, error) {
	var e handhistory.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func millis(t time.Time) float64 {
	return float64(t.UnixMilli())
}
