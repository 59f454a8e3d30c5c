package game

import (
	"context"
	"sync"
)

// StatePersister durable storage for channel states of one workspace.
// SaveState must be durable when it returns nil.
type StatePersister interface {
	LoadStates(ctx context.Context) (map[string]ChannelState, error)
	SaveState(ctx context.Context, channel string, state ChannelState) error
}

// LedgerPersister durable storage for the score ledger of one workspace.
// LoadLedger returns entries in append order.
type LedgerPersister interface {
	LoadLedger(ctx context.Context) ([]ScoreEvent, error)
	AppendScore(ctx context.Context, event ScoreEvent) error
}

// MemoryPersister in-memory state and ledger storage, used by tests and by
// workspaces that opt out of durability.
type MemoryPersister struct {
	mu     sync.RWMutex
	states map[string]ChannelState
	ledger []ScoreEvent
}

// NewMemoryPersister creates an empty in-memory persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{states: make(map[string]ChannelState)}
}

// LoadStates returns copies of every saved state.
func (p *MemoryPersister) LoadStates(ctx context.Context) (map[string]ChannelState, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]ChannelState, len(p.states))
	for ch, st := range p.states {
		out[ch] = st.Clone()
	}
	return out, nil
}

// SaveState stores a copy of state.
func (p *MemoryPersister) SaveState(ctx context.Context, channel string, state ChannelState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[channel] = state.Clone()
	return nil
}

// LoadLedger returns a copy of the ledger.
func (p *MemoryPersister) LoadLedger(ctx context.Context) ([]ScoreEvent, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]ScoreEvent{}, p.ledger...), nil
}

// AppendScore appends one entry.
func (p *MemoryPersister) AppendScore(ctx context.Context, event ScoreEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ledger = append(p.ledger, event)
	return nil
}
