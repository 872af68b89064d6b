package storage

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/lox/homepoker/internal/handhistory"
)

// RedisOptions locates the Redis server.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key; defaults to "homepoker".
	Prefix string
}

// RedisRepository stores hand documents under plain keys and indexes them
// with one sorted set per player (scored by completion time) and one per
// session (scored by hand number).
type RedisRepository struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, opts RedisOptions, logger zerolog.Logger) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "Unable to reach redis at %s", opts.Addr)
	}
	repo := NewRedisRepository(client, opts.Prefix, logger)
	repo.logger.Info().Str("addr", opts.Addr).Msg("Connected to redis")
	return repo, nil
}

// NewRedisRepository wraps an existing client.
func NewRedisRepository(client *redis.Client, prefix string, logger zerolog.Logger) *RedisRepository {
	if prefix == "" {
		prefix = "homepoker"
	}
	return &RedisRepository{
		client: client,
		prefix: prefix,
		logger: logger.With().Str("component", "redis").Logger(),
	}
}

func (r *RedisRepository) handKey(id string) string {
	return fmt.Sprintf("%s:hand:%s", r.prefix, id)
}

func (r *RedisRepository) playerKey(id string) string {
	return fmt.Sprintf("%s:player:%s:hands", r.prefix, id)
}

func (r *RedisRepository) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s:hands", r.prefix, id)
}

func (r *RedisRepository) SaveHand(ctx context.Context, e *handhistory.Entry) error {
	if err := validate(e); err != nil {
		return err
	}
	doc, err := encode(e)
	if err != nil {
		return errors.Wrapf(err, "Unable to encode hand %s", e.HandID)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.handKey(e.HandID), doc, 0)
		pipe.ZAdd(ctx, r.sessionKey(e.SessionID), &redis.Z{Score: float64(e.HandNumber), Member: e.HandID})
		for _, p := range e.Players {
			pipe.ZAdd(ctx, r.playerKey(p.PlayerID), &redis.Z{Score: millis(e.CompletedAt), Member: e.HandID})
		}
		return nil
	})
	return errors.Wrapf(err, "Unable to save hand %s", e.HandID)
}

func (r *RedisRepository) GetHand(ctx context.Context, handID string) (*handhistory.Entry, error) {
	doc, err := r.client.Get(ctx, r.handKey(handID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, errors.Wrapf(err, "Unable to load hand %s", handID)
	}
	e, err := decode(doc)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to decode hand %s", handID)
	}
	return e, nil
}

func (r *RedisRepository) GetHandsForPlayer(ctx context.Context, playerID string, limit, offset int) ([]*handhistory.Entry, error) {
	start := int64(max(offset, 0))
	stop := int64(-1)
	if limit > 0 {
		stop = start + int64(limit) - 1
	}
	ids, err := r.client.ZRevRange(ctx, r.playerKey(playerID), start, stop).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to list hands for player %s", playerID)
	}
	return r.load(ctx, ids)
}

func (r *RedisRepository) GetHandsForSession(ctx context.Context, sessionID string) ([]*handhistory.Entry, error) {
	ids, err := r.client.ZRange(ctx, r.sessionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to list hands for session %s", sessionID)
	}
	return r.load(ctx, ids)
}

// load fetches documents in index order. Index entries whose document has
// gone are skipped.
func (r *RedisRepository) load(ctx context.Context, ids []string) ([]*handhistory.Entry, error) {
	out := make([]*handhistory.Entry, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.handKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "Unable to load hands")
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			r.logger.Warn().Str("hand_id", ids[i]).Msg("Index refers to a missing hand")
			continue
		}
		e, err := decode([]byte(s))
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to decode hand %s", ids[i])
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}
