package pruner

import (
	"bytes"
	"sort"
	"strings"

	"github.com/tabletpruner/partitionpruner/internal/partitionschema"
	"github.com/tabletpruner/partitionpruner/internal/scanspec"
	"github.com/tabletpruner/partitionpruner/pkg/types"
)

// Partition is the minimal partition identity ShouldPrune needs to answer
// whether a candidate tablet's extent can possibly match the scan: its
// partition-key range and, for tables with a range component, its range-key
// range.
type Partition struct {
	PartitionKeyStart []byte
	PartitionKeyEnd   []byte
	RangeKeyStart     []byte
	RangeKeyEnd       []byte
}

// Pruner implements §4.5: the live iteration state over a scan's remaining
// candidate partition-key intervals, grouped by the range-bounds entry that
// produced them. Entries are kept in the order dispatchRangeSchema built
// them (ascending by range). Within an entry, Intervals is stored
// descending by Start; Peek and Advance exploit that to operate in O(1) and
// amortized-O(1) respectively off the tail of each interval slice.
type Pruner struct {
	entries []entry
}

// Init builds the pruner's state for one scan. An empty Pruner (HasMore
// false) after Init means the scan cannot match any row.
func (p *Pruner) Init(schema *types.Schema, partSchema *partitionschema.PartitionSchema, spec *scanspec.ScanSpec) error {
	if spec.CanShortCircuit {
		p.entries = nil
		return nil
	}

	entries, err := dispatchRangeSchema(schema, spec, partSchema)
	if err != nil {
		return err
	}
	p.entries = entries

	if len(spec.LowerBoundPartitionKey) > 0 {
		p.Advance(spec.LowerBoundPartitionKey)
	}

	return nil
}

// HasMore reports whether any interval remains.
func (p *Pruner) HasMore() bool {
	return p.NumRangesRemaining() > 0
}

// Peek returns the start of the next partition key the cursor would
// produce, or nil if none remain. It scans entries from the last toward
// the first looking for the first non-empty one, matching the upstream
// behavior this pruner ports: the outer entries vector's tail, not its
// head, anchors iteration order.
func (p *Pruner) Peek() []byte {
	for i := len(p.entries) - 1; i >= 0; i-- {
		intervals := p.entries[i].Intervals
		if len(intervals) == 0 {
			continue
		}
		return intervals[len(intervals)-1].Start
	}
	return nil
}

// Advance drops every remaining interval (or interval prefix) that lies
// entirely below upper. An empty upper drains the cursor completely.
func (p *Pruner) Advance(upper []byte) {
	if len(upper) == 0 {
		p.entries = nil
		return
	}

	for idx := range p.entries {
		e := &p.entries[idx]
		for i := len(e.Intervals) - 1; i >= 0; i-- {
			iv := e.Intervals[i]
			if bytes.Compare(upper, iv.Start) <= 0 {
				break
			}
			if len(iv.End) > 0 && bytes.Compare(iv.End, upper) <= 0 {
				e.Intervals = e.Intervals[:i]
				continue
			}
			e.Intervals[i].Start = upper
		}
	}
}

// NumRangesRemaining returns the total count of remaining intervals across
// all entries.
func (p *Pruner) NumRangesRemaining() int {
	n := 0
	for _, e := range p.entries {
		n += len(e.Intervals)
	}
	return n
}

// PartitionKeyInterval is the [Start, End) read-only view of one remaining
// interval, exposed to callers (such as the plan API) that need to list
// the pruner's output without driving the cursor themselves.
type PartitionKeyInterval struct {
	Start []byte
	End   []byte
}

// Intervals returns every remaining interval across every entry, in
// ascending scan order. It does not mutate the cursor.
func (p *Pruner) Intervals() []PartitionKeyInterval {
	out := make([]PartitionKeyInterval, 0, p.NumRangesRemaining())
	for _, e := range p.entries {
		for i := len(e.Intervals) - 1; i >= 0; i-- {
			out = append(out, PartitionKeyInterval{Start: e.Intervals[i].Start, End: e.Intervals[i].End})
		}
	}
	return out
}

// ShouldPrune reports whether partition cannot possibly contain a row the
// scan wants: its extent falls entirely inside a gap between the cursor's
// remaining intervals, or entirely past all of them, in every entry whose
// range bounds the partition's range key could belong to.
func (p *Pruner) ShouldPrune(partition Partition) bool {
	for _, e := range p.entries {
		if entrySkipsPartition(e, partition) {
			continue
		}

		idx, found := findOverlapCandidate(e.Intervals, partition.PartitionKeyStart)
		if !found {
			continue
		}
		candidate := e.Intervals[idx]
		if len(partition.PartitionKeyEnd) == 0 || bytes.Compare(partition.PartitionKeyEnd, candidate.Start) > 0 {
			return false
		}
	}
	return true
}

// entrySkipsPartition reports whether partition's range key is clearly
// outside e's range bounds, so e's intervals cannot say anything about it.
// Mismatch on only one side is inconclusive (the other side may still
// overlap), so both sides must disagree before the entry is skipped.
func entrySkipsPartition(e entry, partition Partition) bool {
	lowerMismatch := len(e.RangeBounds.Lower) > 0 && !bytes.Equal(partition.RangeKeyStart, e.RangeBounds.Lower)
	upperMismatch := len(e.RangeBounds.Upper) > 0 && !bytes.Equal(partition.RangeKeyEnd, e.RangeBounds.Upper)
	return lowerMismatch && upperMismatch
}

// findOverlapCandidate binary-searches intervals (stored descending by
// Start) for the first interval, in ascending order, whose End is empty or
// exceeds partitionStart. It mirrors a lower_bound over the reverse of a
// descending vector, which traverses ascending.
func findOverlapCandidate(intervals []partitionKeyRange, partitionStart []byte) (idx int, found bool) {
	n := len(intervals)
	j := sort.Search(n, func(j int) bool {
		goIdx := n - 1 - j
		end := intervals[goIdx].End
		return len(end) == 0 || bytes.Compare(end, partitionStart) > 0
	})
	if j == n {
		return -1, false
	}
	return n - 1 - j, true
}

// ToString renders the cursor's remaining state for debugging, one interval
// per line as "start - end": entries in construction order and, within an
// entry, intervals in ascending order.
func (p *Pruner) ToString(schema *types.Schema, partSchema *partitionschema.PartitionSchema) string {
	rangeColumns := make([]types.ColumnSchema, 0, len(partSchema.RangeColumnIDs))
	for _, id := range partSchema.RangeColumnIDs {
		if col, _, ok := schema.ColumnByID(id); ok {
			rangeColumns = append(rangeColumns, col)
		}
	}

	var b strings.Builder
	for _, e := range p.entries {
		for i := len(e.Intervals) - 1; i >= 0; i-- {
			iv := e.Intervals[i]
			b.WriteString(partitionschema.PartitionKeyDebugString(iv.Start, e.HashSchema, rangeColumns, "<start>"))
			b.WriteString(" - ")
			b.WriteString(partitionschema.PartitionKeyDebugString(iv.End, e.HashSchema, rangeColumns, "<end>"))
			b.WriteString("\n")
		}
	}
	return b.String()
}
