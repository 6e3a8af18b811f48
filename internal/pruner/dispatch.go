package pruner

import (
	"bytes"

	"github.com/tabletpruner/partitionpruner/internal/partitionschema"
	"github.com/tabletpruner/partitionpruner/internal/scanspec"
	"github.com/tabletpruner/partitionpruner/pkg/types"
)

// entry is one {range_bounds, intervals} pair of the pruner's state. Per
// §9, the double indirection is load-bearing: ShouldPrune needs RangeBounds
// to know which entry a candidate partition belongs to, and flattening
// into one interval list would lose that membership test.
type entry struct {
	RangeBounds partitionschema.RangeBounds
	HashSchema  partitionschema.HashSchema
	Intervals   []partitionKeyRange
}

// dispatchRangeSchema implements §4.4: build one entry per surviving range
// partition (or a single entry for a uniform table-wide hash schema).
func dispatchRangeSchema(schema *types.Schema, spec *scanspec.ScanSpec, partSchema *partitionschema.PartitionSchema) ([]entry, error) {
	scanLower, scanUpper, err := extractRangeKeyBounds(schema, spec, partSchema.RangeColumnIDs)
	if err != nil {
		return nil, err
	}

	if partSchema.IsUniform() {
		intervals, err := constructPartitionKeyRanges(schema, spec, partSchema.HashSchema, partitionschema.RangeBounds{Lower: scanLower, Upper: scanUpper})
		if err != nil {
			return nil, err
		}
		reverseIntervals(intervals)
		return []entry{{RangeBounds: partitionschema.RangeBounds{}, HashSchema: partSchema.HashSchema, Intervals: intervals}}, nil
	}

	entries := make([]entry, 0, len(partSchema.Ranges))
	for _, r := range partSchema.Ranges {
		if !rangeOverlapsScan(r, scanLower, scanUpper) {
			continue
		}

		bounds := partitionschema.RangeBounds{Lower: r.Lower, Upper: r.Upper}
		if len(scanLower) > 0 || len(scanUpper) > 0 {
			bounds = partitionschema.RangeBounds{Lower: scanLower, Upper: scanUpper}
		}

		intervals, err := constructPartitionKeyRanges(schema, spec, r.HashSchema, bounds)
		if err != nil {
			return nil, err
		}
		reverseIntervals(intervals)

		entries = append(entries, entry{
			RangeBounds: partitionschema.RangeBounds{Lower: r.Lower, Upper: r.Upper},
			HashSchema:  r.HashSchema,
			Intervals:   intervals,
		})
	}

	return entries, nil
}

// reverseIntervals flips an ascending-by-Start list into the descending
// storage order PrunerState requires, in place.
func reverseIntervals(intervals []partitionKeyRange) {
	for i, j := 0, len(intervals)-1; i < j; i, j = i+1, j-1 {
		intervals[i], intervals[j] = intervals[j], intervals[i]
	}
}

// rangeOverlapsScan implements the overlap table in §4.4.
func rangeOverlapsScan(r partitionschema.RangeWithHashSchema, scanLower, scanUpper []byte) bool {
	lEmpty := len(scanLower) == 0
	uEmpty := len(scanUpper) == 0

	switch {
	case lEmpty && uEmpty:
		return true
	case lEmpty && !uEmpty:
		return bytes.Compare(scanUpper, r.Lower) > 0
	case !lEmpty && uEmpty:
		return len(r.Upper) == 0 || bytes.Compare(scanLower, r.Upper) < 0
	default:
		return (len(r.Upper) == 0 || bytes.Compare(scanLower, r.Upper) < 0) && bytes.Compare(scanUpper, r.Lower) > 0
	}
}
