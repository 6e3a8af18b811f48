// Package observability tracks per-table pruning effectiveness so an
// operator can see which tables and hash dimensions are actually paying for
// themselves.
package observability

import (
	"sort"
	"sync"
	"time"
)

// PruningStats tracks moving statistics on pruning outcomes per table.
type PruningStats struct {
	mu     sync.RWMutex
	tables map[string]*TableStats
	window time.Duration
}

// TableStats holds pruning statistics for one table.
type TableStats struct {
	Table string

	// Samples is the number of Init calls recorded for this table.
	Samples int64

	// RangesRemainingTotal is the running sum of NumRangesRemaining
	// observed across every recorded Init. Divide by Samples for the mean.
	RangesRemainingTotal int64

	// TabletsVisitedTotal and TabletsConsideredTotal accumulate, across
	// every sample, how many tablets the pruner's intervals could touch
	// versus how many the table has in total; their ratio is the moving
	// pruning ratio (fraction of tablets pruned away).
	TabletsVisitedTotal    int64
	TabletsConsideredTotal int64

	LastSeen time.Time

	// DimensionConstrained counts, per hash-dimension label, how many
	// times that dimension ended up with a strict subset of its buckets
	// selected (i.e. actually contributed to pruning) rather than the
	// all-true, unconstrained bitset.
	DimensionConstrained map[string]int64
}

// PruningRatio returns the fraction of tablets pruned away, in [0, 1].
// Returns 0 if no tablet counts have been recorded.
func (s TableStats) PruningRatio() float64 {
	if s.TabletsConsideredTotal == 0 {
		return 0
	}
	pruned := s.TabletsConsideredTotal - s.TabletsVisitedTotal
	return float64(pruned) / float64(s.TabletsConsideredTotal)
}

// MeanRangesRemaining returns the average NumRangesRemaining across samples.
func (s TableStats) MeanRangesRemaining() float64 {
	if s.Samples == 0 {
		return 0
	}
	return float64(s.RangesRemainingTotal) / float64(s.Samples)
}

// NewPruningStats creates a new pruning-statistics tracker. window is the
// staleness threshold Prune uses to evict tables that haven't been scanned
// recently.
func NewPruningStats(window time.Duration) *PruningStats {
	return &PruningStats{
		tables: make(map[string]*TableStats),
		window: window,
	}
}

// RecordInit records the outcome of one Pruner.Init call for table:
// rangesRemaining is the post-Init NumRangesRemaining, tabletsConsidered is
// the table's total tablet count, tabletsVisited is how many of those
// tablets the computed intervals can possibly touch, and
// constrainedDimensions lists the hash-dimension labels (e.g. "hash(a)")
// whose bitset ended up a strict subset of all buckets. This method is
// O(len(constrainedDimensions)) and thread-safe.
func (s *PruningStats) RecordInit(table string, rangesRemaining, tabletsConsidered, tabletsVisited int, constrainedDimensions []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, exists := s.tables[table]
	if !exists {
		stats = &TableStats{
			Table:                table,
			DimensionConstrained: make(map[string]int64),
		}
		s.tables[table] = stats
	}

	stats.Samples++
	stats.RangesRemainingTotal += int64(rangesRemaining)
	stats.TabletsConsideredTotal += int64(tabletsConsidered)
	stats.TabletsVisitedTotal += int64(tabletsVisited)
	stats.LastSeen = time.Now()
	for _, dim := range constrainedDimensions {
		stats.DimensionConstrained[dim]++
	}
}

// GetTableStats returns a copy of the recorded statistics for table.
func (s *PruningStats) GetTableStats(table string) (TableStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, ok := s.tables[table]
	if !ok {
		return TableStats{}, false
	}
	return copyTableStats(stats), true
}

// GetTopTables returns the n tables with the most recorded samples,
// descending. Ties are broken by table name for determinism.
func (s *PruningStats) GetTopTables(n int) []TableStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || len(s.tables) == 0 {
		return []TableStats{}
	}

	out := make([]TableStats, 0, len(s.tables))
	for _, stats := range s.tables {
		out = append(out, copyTableStats(stats))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Samples != out[j].Samples {
			return out[i].Samples > out[j].Samples
		}
		return out[i].Table < out[j].Table
	})

	if n > len(out) {
		n = len(out)
	}
	return out[:n]
}

// Prune removes tables whose LastSeen is older than the configured window.
// A zero window disables pruning. Call periodically (e.g. every 5 minutes).
func (s *PruningStats) Prune() {
	if s.window <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := time.Now().Add(-s.window)
	for table, stats := range s.tables {
		if stats.LastSeen.Before(threshold) {
			delete(s.tables, table)
		}
	}
}

func copyTableStats(s *TableStats) TableStats {
	cp := TableStats{
		Table:                  s.Table,
		Samples:                s.Samples,
		RangesRemainingTotal:   s.RangesRemainingTotal,
		TabletsVisitedTotal:    s.TabletsVisitedTotal,
		TabletsConsideredTotal: s.TabletsConsideredTotal,
		LastSeen:               s.LastSeen,
		DimensionConstrained:   make(map[string]int64, len(s.DimensionConstrained)),
	}
	for dim, count := range s.DimensionConstrained {
		cp.DimensionConstrained[dim] = count
	}
	return cp
}
