// Package observability tracks how often tables are planned and what the
// plans decided.
package observability

import (
	"sort"
	"sync"
	"time"

	"github.com/partwise/partwise/internal/partition"
)

// PlanStats tracks per-table planning outcomes over a sliding window.
type PlanStats struct {
	mu     sync.RWMutex
	tables map[string]*TableStats
	window time.Duration
	now    func() time.Time
}

// TableStats holds the outcomes recorded for one table.
type TableStats struct {
	Table     string
	Plans     int64
	LastSeen  time.Time
	LastDelta partition.Delta
	Deltas    map[partition.Delta]int64 // delta -> count
}

// NewPlanStats creates a tracker. Entries not seen for window are dropped by
// Prune.
func NewPlanStats(window time.Duration) *PlanStats {
	return &PlanStats{
		tables: make(map[string]*TableStats),
		window: window,
		now:    time.Now,
	}
}

// Record records the delta planned for table.
// This method is O(1) and thread-safe.
func (p *PlanStats) Record(table string, delta partition.Delta) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats, exists := p.tables[table]
	if !exists {
		stats = &TableStats{
			Table:  table,
			Deltas: make(map[partition.Delta]int64),
		}
		p.tables[table] = stats
	}

	stats.Plans++
	stats.LastSeen = p.now()
	stats.LastDelta = delta
	stats.Deltas[delta]++
}

// Get returns a copy of the stats of table.
func (p *PlanStats) Get(table string) (TableStats, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.tables[table]
	if !ok {
		return TableStats{}, false
	}
	return s.clone(), true
}

// Rebuilding returns the tables whose most recent plan was a rebuild, sorted
// by name.
func (p *PlanStats) Rebuilding() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []string
	for name, s := range p.tables {
		if s.LastDelta == partition.DeltaRebuild {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Top returns the n most frequently planned tables, most frequent first.
func (p *PlanStats) Top(n int) []TableStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if n <= 0 || len(p.tables) == 0 {
		return []TableStats{}
	}

	stats := make([]TableStats, 0, len(p.tables))
	for _, s := range p.tables {
		stats = append(stats, s.clone())
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Plans != stats[j].Plans {
			return stats[i].Plans > stats[j].Plans
		}
		return stats[i].Table < stats[j].Table
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes tables not planned within the window.
func (p *PlanStats) Prune() {
	p.mu.Lock()
	defer p.mu.Unlock()

	threshold := p.now().Add(-p.window)
	for name, s := range p.tables {
		if s.LastSeen.Before(threshold) {
			delete(p.tables, name)
		}
	}
}

func (s *TableStats) clone() TableStats {
	cp := *s
	cp.Deltas = make(map[partition.Delta]int64, len(s.Deltas))
	for d, c := range s.Deltas {
		cp.Deltas[d] = c
	}
	return cp
}
