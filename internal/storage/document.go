package storage

import (
	"context"
	"encoding/json"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/emojirades/internal/game"
)

// Document keys inside a workspace.
const (
	StateKey  = "state.json"
	ScoresKey = "scores.json"
)

// stateDoc {"C123": {"step": ..., "winner": ..., "old_winner": ..., "emojirade": [...]}}
type stateDoc map[string]game.ChannelState

// scoresDoc {"C123": {"history": [{"user_id": ..., "operation": "++", "timestamp": 1700000000, "seq": 1}]}}
//
// seq numbers entries across the whole workspace. Documents written before
// it existed carry none; those entries load first, grouped by channel.
type scoresDoc map[string]channelHistory

type channelHistory struct {
	History []historyEntry `json:"history"`
}

type historyEntry struct {
	UserID    string         `json:"user_id"`
	Operation game.Operation `json:"operation"`
	Timestamp int64          `json:"timestamp"`
	Seq       int64          `json:"seq,omitempty"`
}

func (d scoresDoc) lastSeq() int64 {
	var last int64
	for _, h := range d {
		for _, e := range h.History {
			last = max(last, e.Seq)
		}
	}
	return last
}

// DocumentPersister keeps a workspace's channel states and score ledger as
// two JSON documents, rewritten whole on every change. It implements
// game.StatePersister and game.LedgerPersister.
//
// The last successfully written documents are cached; a failed write leaves
// the cache untouched so the next write starts from durable content.
type DocumentPersister struct {
	backend   Backend
	workspace string

	mu     sync.Mutex
	states stateDoc
	scores scoresDoc
}

// NewDocumentPersister creates a persister for workspace.
func NewDocumentPersister(backend Backend, workspace string) *DocumentPersister {
	return &DocumentPersister{backend: backend, workspace: workspace}
}

func (p *DocumentPersister) key(name string) string {
	return path.Join(p.workspace, name)
}

// LoadStates implements game.StatePersister. A missing document is empty.
func (p *DocumentPersister) LoadStates(ctx context.Context) (map[string]game.ChannelState, error) {
	doc := stateDoc{}
	if err := p.read(ctx, StateKey, &doc); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.states = doc
	p.mu.Unlock()

	out := make(map[string]game.ChannelState, len(doc))
	for ch, st := range doc {
		out[ch] = st.Clone()
	}
	return out, nil
}

// SaveState implements game.StatePersister.
func (p *DocumentPersister) SaveState(ctx context.Context, channel string, state game.ChannelState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.states == nil {
		if err := p.read(ctx, StateKey, &p.states); err != nil {
			return err
		}
		if p.states == nil {
			p.states = stateDoc{}
		}
	}

	next := make(stateDoc, len(p.states)+1)
	for ch, st := range p.states {
		next[ch] = st
	}
	st := state.Clone()
	if st.Emojirade == nil {
		st.Emojirade = []string{}
	}
	next[channel] = st

	if err := p.write(ctx, StateKey, next); err != nil {
		return err
	}
	p.states = next
	return nil
}

// LoadLedger implements game.LedgerPersister. Entries come back in append
// order across channels.
func (p *DocumentPersister) LoadLedger(ctx context.Context) ([]game.ScoreEvent, error) {
	doc := scoresDoc{}
	if err := p.read(ctx, ScoresKey, &doc); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.scores = doc
	p.mu.Unlock()

	channels := make([]string, 0, len(doc))
	for ch := range doc {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	type sequenced struct {
		seq int64
		ev  game.ScoreEvent
	}
	var entries []sequenced
	for _, ch := range channels {
		for _, h := range doc[ch].History {
			entries = append(entries, sequenced{seq: h.Seq, ev: game.ScoreEvent{
				Channel:   ch,
				User:      h.UserID,
				Operation: h.Operation,
				Timestamp: time.Unix(h.Timestamp, 0).UTC(),
			}})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]game.ScoreEvent, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ev)
	}
	return out, nil
}

// AppendScore implements game.LedgerPersister.
func (p *DocumentPersister) AppendScore(ctx context.Context, ev game.ScoreEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.scores == nil {
		if err := p.read(ctx, ScoresKey, &p.scores); err != nil {
			return err
		}
		if p.scores == nil {
			p.scores = scoresDoc{}
		}
	}

	next := make(scoresDoc, len(p.scores)+1)
	for ch, h := range p.scores {
		next[ch] = h
	}
	prev := p.scores[ev.Channel].History
	history := make([]historyEntry, len(prev), len(prev)+1)
	copy(history, prev)
	next[ev.Channel] = channelHistory{History: append(history, historyEntry{
		UserID:    ev.User,
		Operation: ev.Operation,
		Timestamp: ev.Timestamp.Unix(),
		Seq:       p.scores.lastSeq() + 1,
	})}

	if err := p.write(ctx, ScoresKey, next); err != nil {
		return err
	}
	p.scores = next
	return nil
}

// read decodes the document into v, leaving v untouched when it is missing.
func (p *DocumentPersister) read(ctx context.Context, name string, v any) error {
	data, err := p.backend.Read(ctx, p.key(name))
	if IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (p *DocumentPersister) write(ctx context.Context, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return p.backend.Write(ctx, p.key(name), data)
}
