package pruner

import (
	"testing"

	"github.com/tabletpruner/partitionpruner/internal/partitionschema"
	"github.com/tabletpruner/partitionpruner/internal/scanspec"
)

func key4(n uint32) []byte {
	return []byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
}

func TestPruner_PeekReturnsSmallestRemainingStart(t *testing.T) {
	p := &Pruner{entries: []entry{{
		Intervals: []partitionKeyRange{
			{Start: key4(3), End: key4(4)},
			{Start: key4(1), End: key4(2)},
		},
	}}}

	if got := p.Peek(); string(got) != string(key4(1)) {
		t.Errorf("Peek() = %v, want %v", got, key4(1))
	}
}

func TestPruner_Advance_PopsFullyConsumedTailInterval(t *testing.T) {
	p := &Pruner{entries: []entry{{
		Intervals: []partitionKeyRange{
			{Start: key4(3), End: key4(4)},
			{Start: key4(1), End: key4(2)},
		},
	}}}

	p.Advance(key4(2))

	if got := p.NumRangesRemaining(); got != 1 {
		t.Fatalf("NumRangesRemaining() = %d, want 1", got)
	}
	if got := p.Peek(); string(got) != string(key4(3)) {
		t.Errorf("Peek() after Advance = %v, want %v", got, key4(3))
	}
}

func TestPruner_Advance_TrimsPartiallyConsumedInterval(t *testing.T) {
	p := &Pruner{entries: []entry{{
		Intervals: []partitionKeyRange{
			{Start: key4(1), End: key4(10)},
		},
	}}}

	p.Advance(key4(5))

	if got := p.NumRangesRemaining(); got != 1 {
		t.Fatalf("NumRangesRemaining() = %d, want 1", got)
	}
	iv := p.entries[0].Intervals[0]
	if string(iv.Start) != string(key4(5)) || string(iv.End) != string(key4(10)) {
		t.Errorf("trimmed interval = [%v, %v), want [%v, %v)", iv.Start, iv.End, key4(5), key4(10))
	}
}

func TestPruner_Advance_LeavesHigherIntervalsUntouched(t *testing.T) {
	p := &Pruner{entries: []entry{{
		Intervals: []partitionKeyRange{
			{Start: key4(30), End: key4(40)},
			{Start: key4(10), End: key4(20)},
		},
	}}}

	p.Advance(key4(15))

	if got := p.NumRangesRemaining(); got != 2 {
		t.Fatalf("NumRangesRemaining() = %d, want 2", got)
	}
	if string(p.entries[0].Intervals[0].Start) != string(key4(30)) {
		t.Errorf("higher interval was modified: %v", p.entries[0].Intervals[0])
	}
	if string(p.entries[0].Intervals[1].Start) != string(key4(15)) {
		t.Errorf("trimmed interval start = %v, want %v", p.entries[0].Intervals[1].Start, key4(15))
	}
}

func TestPruner_Advance_EmptyUpperDrainsEverything(t *testing.T) {
	p := &Pruner{entries: []entry{{
		Intervals: []partitionKeyRange{{Start: key4(1), End: key4(2)}},
	}}}

	p.Advance(nil)

	if p.HasMore() {
		t.Error("expected HasMore false after draining with an empty upper bound")
	}
}

func TestPruner_ShouldPrune_GapBetweenIntervalsIsPruned(t *testing.T) {
	p := &Pruner{entries: []entry{{
		Intervals: []partitionKeyRange{
			{Start: key4(30), End: key4(40)},
			{Start: key4(10), End: key4(20)},
		},
	}}}

	// Partition [20, 30) falls entirely in the gap between the two intervals.
	prune := p.ShouldPrune(Partition{PartitionKeyStart: key4(20), PartitionKeyEnd: key4(30)})
	if !prune {
		t.Error("expected partition in the gap between intervals to be pruned")
	}
}

func TestPruner_ShouldPrune_OverlappingPartitionSurvives(t *testing.T) {
	p := &Pruner{entries: []entry{{
		Intervals: []partitionKeyRange{
			{Start: key4(30), End: key4(40)},
			{Start: key4(10), End: key4(20)},
		},
	}}}

	// Partition [15, 25) overlaps [10, 20).
	prune := p.ShouldPrune(Partition{PartitionKeyStart: key4(15), PartitionKeyEnd: key4(25)})
	if prune {
		t.Error("expected overlapping partition to survive pruning")
	}
}

func TestPruner_ShouldPrune_PastAllIntervalsIsPruned(t *testing.T) {
	p := &Pruner{entries: []entry{{
		Intervals: []partitionKeyRange{
			{Start: key4(10), End: key4(20)},
		},
	}}}

	prune := p.ShouldPrune(Partition{PartitionKeyStart: key4(20), PartitionKeyEnd: key4(25)})
	if !prune {
		t.Error("expected partition entirely past the last interval to be pruned")
	}
}

func TestPruner_ShouldPrune_RangeBoundsMismatchOnBothSidesSkipsEntry(t *testing.T) {
	p := &Pruner{entries: []entry{
		{
			RangeBounds: partitionschema.RangeBounds{Lower: key4(100), Upper: key4(200)},
			Intervals:   []partitionKeyRange{{Start: key4(1), End: key4(2)}},
		},
	}}

	// Partition's range key matches neither bound of the only entry, so the
	// entry is skipped; with no entry left to vouch for it, the partition is
	// pruned by default.
	prune := p.ShouldPrune(Partition{
		PartitionKeyStart: key4(50),
		PartitionKeyEnd:   key4(60),
		RangeKeyStart:     key4(999),
		RangeKeyEnd:       key4(999),
	})
	if !prune {
		t.Error("expected a partition matching no entry's range bounds to be pruned")
	}
}

func TestPruner_ShouldPrune_RangeBoundsMatchOnOneSideStillChecksEntry(t *testing.T) {
	p := &Pruner{entries: []entry{
		{
			RangeBounds: partitionschema.RangeBounds{Lower: key4(100), Upper: key4(200)},
			Intervals:   []partitionKeyRange{{Start: key4(10), End: key4(20)}},
		},
	}}

	// Lower matches the entry's range bounds, so the entry is checked even
	// though the scan's candidate range key pair disagrees on Upper. The
	// partition overlaps the entry's only interval, so it survives only if
	// the entry is consulted; a skipped entry would leave it pruned.
	prune := p.ShouldPrune(Partition{
		PartitionKeyStart: key4(15),
		PartitionKeyEnd:   key4(25),
		RangeKeyStart:     key4(100),
		RangeKeyEnd:       key4(999),
	})
	if prune {
		t.Error("expected the entry to be consulted and keep a partition overlapping its only interval")
	}
}

func TestPruner_Init_ShortCircuitProducesEmptyPruner(t *testing.T) {
	p := &Pruner{entries: []entry{{Intervals: []partitionKeyRange{{Start: key4(1), End: key4(2)}}}}}
	spec := &scanspec.ScanSpec{CanShortCircuit: true}
	if err := p.Init(intSchema(), &partitionschema.PartitionSchema{}, spec); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if p.HasMore() {
		t.Error("expected Init with CanShortCircuit to leave no remaining ranges")
	}
}

func TestPruner_NumRangesRemaining_SumsAcrossEntries(t *testing.T) {
	p := &Pruner{entries: []entry{
		{Intervals: []partitionKeyRange{{Start: key4(1), End: key4(2)}, {Start: key4(3), End: key4(4)}}},
		{Intervals: []partitionKeyRange{{Start: key4(5), End: key4(6)}}},
	}}

	if got := p.NumRangesRemaining(); got != 3 {
		t.Errorf("NumRangesRemaining() = %d, want 3", got)
	}
}

func TestPruner_Intervals_FlattensEntriesInAscendingOrder(t *testing.T) {
	p := &Pruner{entries: []entry{
		// Stored descending by Start, as dispatchRangeSchema leaves them.
		{Intervals: []partitionKeyRange{{Start: key4(3), End: key4(4)}, {Start: key4(1), End: key4(2)}}},
		{Intervals: []partitionKeyRange{{Start: key4(5), End: key4(6)}}},
	}}

	got := p.Intervals()
	want := [][2][]byte{{key4(1), key4(2)}, {key4(3), key4(4)}, {key4(5), key4(6)}}
	if len(got) != len(want) {
		t.Fatalf("Intervals() returned %d intervals, want %d", len(got), len(want))
	}
	for i, iv := range got {
		if string(iv.Start) != string(want[i][0]) || string(iv.End) != string(want[i][1]) {
			t.Errorf("Intervals()[%d] = [%x, %x), want [%x, %x)", i, iv.Start, iv.End, want[i][0], want[i][1])
		}
	}
}
