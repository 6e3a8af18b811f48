package pruner

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/tabletpruner/partitionpruner/internal/partitionschema"
	"github.com/tabletpruner/partitionpruner/internal/predicate"
	"github.com/tabletpruner/partitionpruner/internal/scanspec"
)

// TestProperty_IntervalsAreNonOverlappingAndAscending validates that
// constructPartitionKeyRanges always produces a list of intervals that are
// pairwise disjoint and sorted ascending by Start, regardless of which
// bucket a column's equality predicate happens to pin.
func TestProperty_IntervalsAreNonOverlappingAndAscending(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)
	schema := intSchema()

	properties.Property("intervals from a single equality-pinned hash dimension never overlap and are ascending", prop.ForAll(
		func(value int32, numBuckets int) bool {
			spec := scanspec.New()
			spec.AddPredicate(predicate.NewEquality(1, value))
			dim := partitionschema.HashDimension{ColumnIDs: []int32{1}, NumBuckets: numBuckets, Seed: 0}

			intervals, err := constructPartitionKeyRanges(schema, spec, partitionschema.HashSchema{dim}, partitionschema.RangeBounds{})
			if err != nil {
				return false
			}
			for i := 1; i < len(intervals); i++ {
				if bytes.Compare(intervals[i-1].Start, intervals[i].Start) >= 0 {
					return false
				}
				if len(intervals[i-1].End) > 0 && bytes.Compare(intervals[i-1].End, intervals[i].Start) > 0 {
					return false
				}
			}
			return true
		},
		gen.Int32Range(-1000, 1000),
		gen.IntRange(1, 64),
	))

	properties.TestingRun(t)
}

// TestProperty_AdvanceNeverMovesPeekBackward validates that repeated
// Advance calls produce a strictly increasing sequence of Peek results,
// the property a caller driving a scan through successive tablet lookups
// relies on to make progress.
func TestProperty_AdvanceNeverMovesPeekBackward(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)
	schema := intSchema()

	properties.Property("draining a pruner produces strictly increasing Peek values", prop.ForAll(
		func(values []int32, numBuckets int) bool {
			if len(values) == 0 {
				return true
			}
			asInterface := make([]interface{}, len(values))
			for i, v := range values {
				asInterface[i] = v
			}

			spec := scanspec.New()
			spec.AddPredicate(predicate.NewInList(1, asInterface))
			partSchema := &partitionschema.PartitionSchema{HashSchema: partitionschema.HashSchema{
				{ColumnIDs: []int32{1}, NumBuckets: numBuckets, Seed: 0},
			}}

			var p Pruner
			if err := p.Init(schema, partSchema, spec); err != nil {
				return false
			}

			var prev []byte
			iterations := 0
			for p.HasMore() {
				iterations++
				if iterations > len(values)+5 {
					return false
				}
				start := p.Peek()
				if prev != nil && bytes.Compare(start, prev) <= 0 {
					return false
				}
				prev = append([]byte{}, start...)

				entries := p.entries
				var end []byte
				for i := len(entries) - 1; i >= 0; i-- {
					n := len(entries[i].Intervals)
					if n == 0 {
						continue
					}
					end = entries[i].Intervals[n-1].End
					break
				}
				p.Advance(end)
			}
			return true
		},
		gen.SliceOfN(5, gen.Int32Range(-100, 100)),
		gen.IntRange(1, 32),
	))

	properties.TestingRun(t)
}
