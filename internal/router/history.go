package router

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/homepoker/internal/handhistory"
	"github.com/lox/homepoker/internal/metrics"
	"github.com/lox/homepoker/internal/storage"
)

const drainTimeout = 5 * time.Second

// Pipeline persists completed hands off the table goroutines. Hands go to
// the repository and then to the PHH archive when one is configured.
type Pipeline struct {
	repo    storage.HandRepository
	archive *handhistory.Archive
	metrics *metrics.Metrics
	logger  zerolog.Logger
	queue   chan *handhistory.Entry
}

// NewPipeline creates a pipeline holding up to buffer unsaved hands.
// Either repo or archive may be nil.
func NewPipeline(repo storage.HandRepository, archive *handhistory.Archive, logger zerolog.Logger, m *metrics.Metrics, buffer int) *Pipeline {
	return &Pipeline{
		repo:    repo,
		archive: archive,
		metrics: m,
		logger:  logger.With().Str("component", "history").Logger(),
		queue:   make(chan *handhistory.Entry, max(buffer, 1)),
	}
}

// Record queues a hand. When the queue is full the hand is dropped and
// logged; tables never wait on storage.
func (p *Pipeline) Record(e *handhistory.Entry) {
	select {
	case p.queue <- e:
	default:
		p.metrics.HistorySaved(errQueueFull)
		p.logger.Error().
			Str("hand_id", e.HandID).
			Str("session_id", e.SessionID).
			Int("hand", e.HandNumber).
			Msg("History queue full, dropping hand")
	}
}

// Run saves queued hands until ctx ends, then saves whatever is still
// queued.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case e := <-p.queue:
			p.save(ctx, e)
		case <-ctx.Done():
			p.drain(ctx)
			return nil
		}
	}
}

func (p *Pipeline) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	for {
		select {
		case e := <-p.queue:
			p.save(ctx, e)
		default:
			return
		}
	}
}

func (p *Pipeline) save(ctx context.Context, e *handhistory.Entry) {
	if p.repo != nil {
		err := p.repo.SaveHand(ctx, e)
		p.metrics.HistorySaved(err)
		if err != nil {
			p.logger.Error().Err(err).Str("hand_id", e.HandID).Str("session_id", e.SessionID).Msg("Failed to save hand")
		} else {
			p.logger.Debug().Str("hand_id", e.HandID).Int("hand", e.HandNumber).Msg("Saved hand")
		}
	}
	if p.archive != nil {
		p.archive.Record(e)
	}
}
