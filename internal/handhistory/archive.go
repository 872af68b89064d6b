package handhistory

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/homepoker/internal/phh"
)

const sessionFilename = "session.phhs"

// ArchiveConfig configures the PHH archive.
type ArchiveConfig struct {
	Dir              string
	FlushInterval    time.Duration
	FlushHands       int
	MaxFailures      int
	IncludeHoleCards bool
	Variant          string
	Clock            quartz.Clock
	// OnFlushError is told about every failed flush made by Run.
	OnFlushError     func(error)
}

// Archive buffers completed hands per session and appends them to
// <Dir>/table-<session>/session.phhs. A session whose file keeps failing
// is disabled and its buffered hands dropped; gameplay is unaffected.
type Archive struct {
	cfg    ArchiveConfig
	logger zerolog.Logger

	mu       sync.Mutex
	flushMu  sync.Mutex
	sessions map[string]*sessionLog
	flushReq chan struct{}
}

type sessionLog struct {
	path     string
	buffer   []*phh.HandHistory
	section  int
	failures int
	disabled bool
}

// NewArchive creates the archive directory and applies defaults.
func NewArchive(logger zerolog.Logger, cfg ArchiveConfig) (*Archive, error) {
	if cfg.Dir == "" {
		cfg.Dir = "hands"
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.FlushHands <= 0 {
		cfg.FlushHands = 100
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Variant == "" {
		cfg.Variant = defaultVariant
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("handhistory: create dir: %w", err)
	}
	return &Archive{
		cfg:      cfg,
		logger:   logger.With().Str("component", "archive").Logger(),
		sessions: make(map[string]*sessionLog),
		flushReq: make(chan struct{}, 1),
	}, nil
}

// Record buffers a completed hand. Reaching FlushHands buffered hands asks
// the running loop for an early flush.
func (a *Archive) Record(e *Entry) {
	hand := ToPHH(e, a.cfg.Variant, a.cfg.IncludeHoleCards)

	a.mu.Lock()
	s, err := a.session(e.SessionID)
	if err != nil {
		a.mu.Unlock()
		a.logger.Error().Err(err).Str("session_id", e.SessionID).Msg("Cannot open hand history session")
		return
	}
	if s.disabled {
		a.mu.Unlock()
		return
	}
	s.buffer = append(s.buffer, hand)
	full := len(s.buffer) >= a.cfg.FlushHands
	a.mu.Unlock()

	if full {
		select {
		case a.flushReq <- struct{}{}:
		default:
		}
	}
}

// session returns the log for id, resuming its section numbering from an
// existing file. Callers hold a.mu.
func (a *Archive) session(id string) (*sessionLog, error) {
	if s, ok := a.sessions[id]; ok {
		return s, nil
	}
	dir := filepath.Join(a.cfg.Dir, "table-"+id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, sessionFilename)
	last, err := readLastSection(path)
	if err != nil {
		return nil, err
	}
	s := &sessionLog{path: path, section: last}
	a.sessions[id] = s
	return s, nil
}

// Run flushes on every tick and on early flush requests until ctx ends,
// then flushes once more.
func (a *Archive) Run(ctx context.Context) error {
	ticker := a.cfg.Clock.NewTicker(a.cfg.FlushInterval, "archive")
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.flush()
		case <-a.flushReq:
			a.flush()
		case <-ctx.Done():
			a.flush()
			return nil
		}
	}
}

func (a *Archive) flush() {
	if err := a.Flush(); err != nil && a.cfg.OnFlushError != nil {
		a.cfg.OnFlushError(err)
	}
}

// Flush writes every buffered hand. Failures are counted per session.
func (a *Archive) Flush() error {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	a.mu.Lock()
	ids := make([]string, 0, len(a.sessions))
	for id := range a.sessions {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := a.flushSession(id); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (a *Archive) flushSession(id string) error {
	a.mu.Lock()
	s := a.sessions[id]
	if s.disabled || len(s.buffer) == 0 {
		a.mu.Unlock()
		return nil
	}
	hands := append([]*phh.HandHistory(nil), s.buffer...)
	base := s.section
	path := s.path
	a.mu.Unlock()

	written, err := appendHands(path, base, hands)

	a.mu.Lock()
	defer a.mu.Unlock()
	s.buffer = s.buffer[written:]
	s.section = base + written
	if err == nil {
		s.failures = 0
		return nil
	}
	s.failures++
	a.logger.Error().Err(err).Str("session_id", id).Int("failures", s.failures).Msg("Hand history flush failed")
	if s.failures >= a.cfg.MaxFailures {
		a.logger.Error().Str("session_id", id).Int("dropped_hands", len(s.buffer)).
			Msg("Hand history recording disabled after repeated failures")
		s.buffer = nil
		s.disabled = true
	}
	return err
}

// Disabled reports whether recording stopped for the session.
func (a *Archive) Disabled(sessionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[sessionID]
	return ok && s.disabled
}

// Buffered counts hands waiting to be written for the session.
func (a *Archive) Buffered(sessionID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.sessions[sessionID]; ok {
		return len(s.buffer)
	}
	return 0
}

func appendHands(path string, base int, hands []*phh.HandHistory) (int, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	for i, hand := range hands {
		if err := phh.WriteSection(file, base+i+1, hand); err != nil {
			return i, err
		}
	}
	return len(hands), nil
}

// WriteSession encodes entries as a complete .phhs document numbered from 1.
func WriteSession(w io.Writer, entries []*Entry, variant string, includeHoleCards bool) error {
	for i, e := range entries {
		if err := phh.WriteSection(w, i+1, ToPHH(e, variant, includeHoleCards)); err != nil {
			return err
		}
	}
	return nil
}

// EncodeSession is WriteSession into memory.
func EncodeSession(entries []*Entry, variant string, includeHoleCards bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteSession(&buf, entries, variant, includeHoleCards); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func readLastSection(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	last := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) >= 3 && line[0] == '[' && line[len(line)-1] == ']' {
			if n, err := strconv.Atoi(line[1 : len(line)-1]); err == nil && n > last {
				last = n
			}
		}
	}
	return last, scanner.Err()
}
