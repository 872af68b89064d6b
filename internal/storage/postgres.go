package storage

import (
	"context"
	"database/sql"

	lru "github.com/hashicorp/golang-lru"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/lox/homepoker/internal/handhistory"
)

const schema = `
CREATE TABLE IF NOT EXISTS hands (
	hand_id      TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	hand_number  INTEGER NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	document     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS hands_session_idx ON hands (session_id, hand_number);

CREATE TABLE IF NOT EXISTS hand_players (
	hand_id      TEXT NOT NULL REFERENCES hands (hand_id) ON DELETE CASCADE,
	player_id    TEXT NOT NULL,
	seat         INTEGER NOT NULL,
	net_amount   INTEGER NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (hand_id, player_id)
);
CREATE INDEX IF NOT EXISTS hand_players_player_idx ON hand_players (player_id, completed_at DESC);
`

// PostgresRepository stores each hand as a JSONB document with a
// per-player index table. GetHand reads through an LRU cache.
type PostgresRepository struct {
	db     *sqlx.DB
	cache  *lru.Cache
	logger zerolog.Logger
}

// OpenPostgres connects, creates the schema if needed and sizes the read
// cache.
func OpenPostgres(ctx context.Context, dsn string, cacheSize int, logger zerolog.Logger) (*PostgresRepository, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to connect to postgres")
	}
	repo, err := NewPostgresRepository(ctx, db, cacheSize, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewPostgresRepository wraps an open connection.
func NewPostgresRepository(ctx context.Context, db *sqlx.DB, cacheSize int, logger zerolog.Logger) (*PostgresRepository, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to initialize cache")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, errors.Wrap(err, "Unable to create schema")
	}
	r := &PostgresRepository{
		db:     db,
		cache:  cache,
		logger: logger.With().Str("component", "postgres").Logger(),
	}
	r.logger.Info().Int("cache_size", cacheSize).Msg("Hand repository ready")
	return r, nil
}

func (r *PostgresRepository) SaveHand(ctx context.Context, e *handhistory.Entry) error {
	if err := validate(e); err != nil {
		return err
	}
	doc, err := encode(e)
	if err != nil {
		return errors.Wrapf(err, "Unable to encode hand %s", e.HandID)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "Unable to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO hands (hand_id, session_id, hand_number, completed_at, document)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (hand_id) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			hand_number = EXCLUDED.hand_number,
			completed_at = EXCLUDED.completed_at,
			document = EXCLUDED.document`,
		e.HandID, e.SessionID, e.HandNumber, e.CompletedAt, doc)
	if err != nil {
		return errors.Wrapf(err, "Unable to save hand %s", e.HandID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM hand_players WHERE hand_id = $1`, e.HandID); err != nil {
		return errors.Wrapf(err, "Unable to reset players for hand %s", e.HandID)
	}
	for _, p := range e.Players {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO hand_players (hand_id, player_id, seat, net_amount, completed_at)
			VALUES ($1, $2, $3, $4, $5)`,
			e.HandID, p.PlayerID, p.Seat, p.NetAmount, e.CompletedAt)
		if err != nil {
			return errors.Wrapf(err, "Unable to index player %s for hand %s", p.PlayerID, e.HandID)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "Unable to commit hand %s", e.HandID)
	}
	r.cache.Add(e.HandID, e.Clone())
	return nil
}

func (r *PostgresRepository) GetHand(ctx context.Context, handID string) (*handhistory.Entry, error) {
	if v, ok := r.cache.Get(handID); ok {
		return v.(*handhistory.Entry).Clone(), nil
	}
	e, err := r.fetch(ctx, handID)
	if err != nil {
		return nil, err
	}
	r.cache.Add(handID, e)
	return e.Clone(), nil
}

func (r *PostgresRepository) fetch(ctx context.Context, handID string) (*handhistory.Entry, error) {
	var doc []byte
	err := r.db.GetContext(ctx, &doc, `SELECT document FROM hands WHERE hand_id = $1`, handID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlx Get returned an error")
	}
	e, err := decode(doc)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to decode hand %s", handID)
	}
	return e, nil
}

func (r *PostgresRepository) GetHandsForPlayer(ctx context.Context, playerID string, limit, offset int) ([]*handhistory.Entry, error) {
	var bound any
	if limit > 0 {
		bound = limit
	}
	var docs [][]byte
	err := r.db.SelectContext(ctx, &docs, `
		SELECT h.document FROM hands h
		JOIN hand_players p ON p.hand_id = h.hand_id
		WHERE p.player_id = $1
		ORDER BY h.completed_at DESC, h.session_id DESC, h.hand_number DESC
		LIMIT $2 OFFSET $3`,
		playerID, bound, max(offset, 0))
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to list hands for player %s", playerID)
	}
	return decodeAll(docs)
}

func (r *PostgresRepository) GetHandsForSession(ctx context.Context, sessionID string) ([]*handhistory.Entry, error) {
	var docs [][]byte
	err := r.db.SelectContext(ctx, &docs, `
		SELECT document FROM hands WHERE session_id = $1 ORDER BY hand_number`, sessionID)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to list hands for session %s", sessionID)
	}
	return decodeAll(docs)
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func decodeAll(docs [][]byte) ([]*handhistory.Entry, error) {
	out := make([]*handhistory.Entry, 0, len(docs))
	for _, doc := range docs {
		e, err := decode(doc)
		if err != nil {
			return nil, errors.Wrap(err, "Unable to decode hand")
		}
		out = append(out, e)
	}
	return out, nil
}
