// Package scanspec defines the scan request shape the pruner consumes:
// per-column predicates, primary-key bounds, and partition-key bounds.
// Construction and optimization of a ScanSpec (predicate simplification,
// redundancy removal) happens upstream of this package; the pruner only
// reads it.
package scanspec

import (
	"github.com/tabletpruner/partitionpruner/internal/predicate"
	"github.com/tabletpruner/partitionpruner/pkg/types"
)

// ScanSpec is the already-optimized description of what a scan wants.
type ScanSpec struct {
	// Predicates maps column id to the predicate restricting that column.
	// A column with no entry is unconstrained.
	Predicates map[int32]predicate.ColumnPredicate

	// LowerBoundPK and UpperBoundPK are the scan's primary-key bounds, as
	// raw typed row prefixes (not necessarily full rows). LowerBoundPK is
	// inclusive; UpperBoundPK is exclusive. Nil means unbounded.
	LowerBoundPK *types.Row
	UpperBoundPK *types.Row

	// LowerBoundPartitionKey and UpperBoundPartitionKey bound the scan
	// directly in partition-key space, typically supplied when resuming a
	// scan against a specific tablet range. Lower is inclusive, upper is
	// exclusive. Nil/empty means unbounded.
	LowerBoundPartitionKey []byte
	UpperBoundPartitionKey []byte

	// CanShortCircuit is true when upstream predicate analysis has already
	// determined the scan cannot match any row (e.g. contradictory
	// equality predicates); Init must produce an empty PrunerState.
	CanShortCircuit bool
}

// New returns an empty, unconstrained ScanSpec.
func New() *ScanSpec {
	return &ScanSpec{Predicates: make(map[int32]predicate.ColumnPredicate)}
}

// PredicateFor returns the predicate on columnID, if any.
func (s *ScanSpec) PredicateFor(columnID int32) (predicate.ColumnPredicate, bool) {
	p, ok := s.Predicates[columnID]
	return p, ok
}

// AddPredicate installs a predicate on its column, overwriting any existing
// predicate for that column.
func (s *ScanSpec) AddPredicate(p predicate.ColumnPredicate) {
	if s.Predicates == nil {
		s.Predicates = make(map[int32]predicate.ColumnPredicate)
	}
	s.Predicates[p.ColumnID] = p
}

// HasPrimaryKeyBounds reports whether either primary-key bound is set.
func (s *ScanSpec) HasPrimaryKeyBounds() bool {
	return s.LowerBoundPK != nil || s.UpperBoundPK != nil
}
