package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/lox/homepoker/internal/handhistory"
)

// MemoryRepository keeps hands in process. It backs tests and
// single-process deployments that do not need durability.
type MemoryRepository struct {
	mu    sync.RWMutex
	hands map[string]*handhistory.Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{hands: make(map[string]*handhistory.Entry)}
}

func (m *MemoryRepository) SaveHand(_ context.Context, e *handhistory.Entry) error {
	if err := validate(e); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands[e.HandID] = e.Clone()
	return nil
}

func (m *MemoryRepository) GetHand(_ context.Context, handID string) (*handhistory.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.hands[handID]
	if !ok {
		return nil, ErrNotFound
	}
	return e.Clone(), nil
}

func (m *MemoryRepository) GetHandsForPlayer(_ context.Context, playerID string, limit, offset int) ([]*handhistory.Entry, error) {
	hands := m.collect(func(e *handhistory.Entry) bool {
		_, ok := e.Player(playerID)
		return ok
	})
	slices.SortFunc(hands, newestFirst)
	return page(hands, limit, offset), nil
}

func (m *MemoryRepository) GetHandsForSession(_ context.Context, sessionID string) ([]*handhistory.Entry, error) {
	hands := m.collect(func(e *handhistory.Entry) bool { return e.SessionID == sessionID })
	slices.SortFunc(hands, byHandNumber)
	return hands, nil
}

func (m *MemoryRepository) collect(match func(*handhistory.Entry) bool) []*handhistory.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*handhistory.Entry{}
	for _, e := range m.hands {
		if match(e) {
			out = append(out, e.Clone())
		}
	}
	return out
}

func (m *MemoryRepository) Close() error { return nil }
