package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/dyike/agenttrader/consts"
	"github.com/kataras/golog"
)

// Situation pairs a market situation with the advice recorded for it.
type Situation struct {
	Situation      string `json:"situation"`
	Recommendation string `json:"recommendation"`
}

// Match is a retrieved recommendation and its cosine similarity to the query.
type Match struct {
	Recommendation string  `json:"recommendation"`
	Score          float64 `json:"score"`
}

type entry struct {
	Situation
	embedding []float32
}

// SituationMemory is one role's long-term memory. A single instance is shared
// by every run, so reads and appends are guarded.
type SituationMemory struct {
	name     string
	embedder Embedder
	store    *sqlStore

	mu      sync.RWMutex
	entries []entry
}

func (m *SituationMemory) Name() string { return m.name }

// Add embeds and appends situations. Embedding happens outside the lock.
func (m *SituationMemory) Add(ctx context.Context, items []Situation) error {
	if len(items) == 0 {
		return nil
	}
	entries := make([]entry, 0, len(items))
	for _, it := range items {
		vec, err := m.embedder.Embed(ctx, it.Situation)
		if err != nil {
			return fmt.Errorf("%s: %w", m.name, err)
		}
		entries = append(entries, entry{Situation: it, embedding: vec})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store != nil {
		if err := m.store.insert(ctx, m.name, entries); err != nil {
			return fmt.Errorf("%s: %w", m.name, err)
		}
	}
	m.entries = append(m.entries, entries...)
	return nil
}

// Get returns up to n recommendations most similar to situation, best first.
// An empty memory returns no matches without calling the embedder.
func (m *SituationMemory) Get(ctx context.Context, situation string, n int) ([]Match, error) {
	m.mu.RLock()
	size := len(m.entries)
	m.mu.RUnlock()
	if size == 0 || n <= 0 {
		return nil, nil
	}

	query, err := m.embedder.Embed(ctx, situation)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.name, err)
	}

	m.mu.RLock()
	matches := make([]Match, 0, len(m.entries))
	for _, e := range m.entries {
		matches = append(matches, Match{Recommendation: e.Recommendation, Score: cosine(query, e.embedding)})
	}
	m.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > n {
		matches = matches[:n]
	}
	return matches, nil
}

func (m *SituationMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Bank holds the per-role memories.
type Bank struct {
	memories map[string]*SituationMemory
}

// Roles lists the memory collections, one per remembering agent.
var Roles = []string{
	consts.Memory_Bull,
	consts.Memory_Bear,
	consts.Memory_Trader,
	consts.Memory_InvestJudge,
	consts.Memory_RiskManager,
}

// NewBank builds the role memories. With a nil db they live only in process;
// otherwise existing entries are loaded and new ones persisted.
func NewBank(ctx context.Context, db *sql.DB, embedder Embedder) (*Bank, error) {
	var store *sqlStore
	if db != nil {
		var err error
		if store, err = newSQLStore(ctx, db); err != nil {
			return nil, err
		}
	}

	b := &Bank{memories: make(map[string]*SituationMemory, len(Roles))}
	for _, role := range Roles {
		m := &SituationMemory{name: role, embedder: embedder, store: store}
		if store != nil {
			entries, err := store.load(ctx, role)
			if err != nil {
				return nil, fmt.Errorf("load %s: %w", role, err)
			}
			m.entries = entries
		}
		golog.Debugf("memory %s loaded with %d situations", role, len(m.entries))
		b.memories[role] = m
	}
	return b, nil
}

// Memory returns the named role memory, or nil for an unknown role.
func (b *Bank) Memory(role string) *SituationMemory {
	if b == nil {
		return nil
	}
	return b.memories[role]
}
