package pruner

import (
	"bytes"

	"github.com/tabletpruner/partitionpruner/internal/keyenc"
	"github.com/tabletpruner/partitionpruner/internal/partitionschema"
	"github.com/tabletpruner/partitionpruner/internal/scanspec"
	"github.com/tabletpruner/partitionpruner/pkg/types"
)

// partitionKeyRange is a half-open interval [Start, End) of partition-key
// bytes. An empty Start means unbounded below; an empty End means
// unbounded above.
type partitionKeyRange struct {
	Start []byte
	End   []byte
}

// constructPartitionKeyRanges implements §4.3: combine a hash schema's
// per-dimension bucket bitsets with one range-bound pairing into a flat,
// clipped list of partition-key intervals, ascending by Start. The caller
// is responsible for reversing the result into the descending storage
// order the cursor relies on.
func constructPartitionKeyRanges(schema *types.Schema, spec *scanspec.ScanSpec, hashSchema partitionschema.HashSchema, bounds partitionschema.RangeBounds) ([]partitionKeyRange, error) {
	bitsets := make([][]bool, len(hashSchema))
	for i, dim := range hashSchema {
		bitset, err := computeHashBucketBitset(dim, schema, spec)
		if err != nil {
			return nil, err
		}
		bitsets[i] = bitset
	}

	c := constrainedPrefixLength(bitsets, bounds)

	intervals := []partitionKeyRange{{}}
	for i := 0; i < c; i++ {
		bitset := bitsets[i]
		incrementFinal := i == c-1 && len(bounds.Upper) == 0

		next := make([]partitionKeyRange, 0, len(intervals)*countTrue(bitset))
		for _, iv := range intervals {
			for b := 0; b < len(bitset); b++ {
				if !bitset[b] {
					continue
				}
				startBucket := uint32(b)
				endBucket := startBucket
				if incrementFinal {
					endBucket = startBucket + 1
				}
				next = append(next, partitionKeyRange{
					Start: concatBytes(iv.Start, keyenc.EncodeBucketOrdinal(startBucket)),
					End:   concatBytes(iv.End, keyenc.EncodeBucketOrdinal(endBucket)),
				})
			}
		}
		intervals = next
	}

	for i := range intervals {
		intervals[i].Start = concatBytes(intervals[i].Start, bounds.Lower)
		intervals[i].End = concatBytes(intervals[i].End, bounds.Upper)
	}

	return clipToUpperBound(intervals, spec.UpperBoundPartitionKey), nil
}

// constrainedPrefixLength implements §4.3 step 2.
func constrainedPrefixLength(bitsets [][]bool, bounds partitionschema.RangeBounds) int {
	if !bounds.Empty() {
		return len(bitsets)
	}
	for i := len(bitsets) - 1; i >= 0; i-- {
		if !bitsetIsAllTrue(bitsets[i]) {
			return i + 1
		}
	}
	return 0
}

// clipToUpperBound implements §4.3 step 5. intervals are ascending by
// Start; the walk proceeds from the tail (highest Start) toward the front.
func clipToUpperBound(intervals []partitionKeyRange, upper []byte) []partitionKeyRange {
	if len(upper) == 0 {
		return intervals
	}

	for i := len(intervals) - 1; i >= 0; i-- {
		iv := intervals[i]
		if len(iv.End) > 0 && bytes.Compare(upper, iv.End) >= 0 {
			break
		}
		if bytes.Compare(upper, iv.Start) <= 0 {
			intervals = intervals[:i]
			continue
		}
		intervals[i].End = upper
	}
	return intervals
}

func countTrue(bitset []bool) int {
	n := 0
	for _, b := range bitset {
		if b {
			n++
		}
	}
	if n == 0 {
		n = 1
	}
	return n
}

// concatBytes returns a freshly allocated concatenation of a and b so that
// callers sharing a common prefix across multiple output intervals never
// alias the same backing array.
func concatBytes(a, b []byte) []byte {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
