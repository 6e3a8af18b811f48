package pruner

import (
	"github.com/tabletpruner/partitionpruner/internal/keyenc"
	"github.com/tabletpruner/partitionpruner/internal/predicate"
	"github.com/tabletpruner/partitionpruner/internal/scanspec"
	"github.com/tabletpruner/partitionpruner/pkg/types"
)

// extractRangeKeyBounds computes the (range_key_start, range_key_end) bytes
// for the scan, per §4.1. Either return value may be nil, meaning unbounded
// on that side.
func extractRangeKeyBounds(schema *types.Schema, spec *scanspec.ScanSpec, rangeColumnIDs []int32) (lower, upper []byte, err error) {
	if isKeyPrefix(schema, rangeColumnIDs) {
		return extractFromPrimaryKeyBounds(schema, spec, len(rangeColumnIDs))
	}
	return extractFromPredicates(schema, spec, rangeColumnIDs)
}

// isKeyPrefix reports whether rangeColumnIDs equals, in order, the first
// len(rangeColumnIDs) primary-key columns.
func isKeyPrefix(schema *types.Schema, rangeColumnIDs []int32) bool {
	keyCols := schema.KeyColumns()
	if len(rangeColumnIDs) > len(keyCols) {
		return false
	}
	for i, id := range rangeColumnIDs {
		if keyCols[i].ID != id {
			return false
		}
	}
	return true
}

// extractFromPrimaryKeyBounds implements §4.1 Case A.
func extractFromPrimaryKeyBounds(schema *types.Schema, spec *scanspec.ScanSpec, k int) (lower, upper []byte, err error) {
	if spec.LowerBoundPK == nil && spec.UpperBoundPK == nil {
		return nil, nil, nil
	}

	keyCols := schema.KeyColumns()

	if spec.LowerBoundPK != nil {
		lower, err = keyenc.EncodeRowPrefix(keyCols, *spec.LowerBoundPK, k)
		if err != nil {
			return nil, nil, err
		}
	}

	if spec.UpperBoundPK != nil {
		prefix, err := keyenc.EncodeRowPrefix(keyCols, *spec.UpperBoundPK, k)
		if err != nil {
			return nil, nil, err
		}

		if suffixIsAllMinimum(keyCols, *spec.UpperBoundPK, k) {
			// The primary-key suffix beyond the range columns is already at
			// its minimum, so the truncated prefix is itself an exclusive
			// bound: there is no row with this range-key prefix and a
			// smaller suffix.
			upper = prefix
		} else {
			incremented, overflow := keyenc.IncrementKey(prefix)
			if overflow {
				upper = nil
			} else {
				upper = incremented
			}
		}
	}

	return lower, upper, nil
}

// suffixIsAllMinimum reports whether every primary-key column after
// position k holds its type's minimum value in row. Callers always pass a
// row sized to the full primary key (buildRow allocates len(keyCols)
// values), so row.Values covers every index this loop visits.
func suffixIsAllMinimum(keyCols []types.ColumnSchema, row types.Row, k int) bool {
	for i := k; i < len(keyCols); i++ {
		if !keyCols[i].Type.IsMinimumValue(row.Values[i]) {
			return false
		}
	}
	return true
}

// extractFromPredicates implements §4.1 Case B.
func extractFromPredicates(schema *types.Schema, spec *scanspec.ScanSpec, rangeColumnIDs []int32) (lower, upper []byte, err error) {
	rangeCols := make([]types.ColumnSchema, 0, len(rangeColumnIDs))
	for _, id := range rangeColumnIDs {
		col, _, ok := schema.ColumnByID(id)
		if !ok {
			return nil, nil, unknownColumnError(id)
		}
		rangeCols = append(rangeCols, col)
	}

	lowerValues, lowerN := foldLowerBound(rangeCols, spec)
	if lowerN > 0 {
		lower, err = keyenc.EncodeValues(colTypesOf(rangeCols[:lowerN]), lowerValues)
		if err != nil {
			return nil, nil, err
		}
	}

	upperValues, upperN, exclusiveAlready := foldUpperBound(rangeCols, spec)
	if upperN > 0 {
		prefix, encErr := keyenc.EncodeValues(colTypesOf(rangeCols[:upperN]), upperValues)
		if encErr != nil {
			return nil, nil, encErr
		}
		if exclusiveAlready {
			upper = prefix
		} else {
			incremented, overflow := keyenc.IncrementKey(prefix)
			if overflow {
				upper = nil
			} else {
				upper = incremented
			}
		}
	}

	return lower, upper, nil
}

// foldLowerBound walks rangeCols in order, accumulating a lower-bound value
// per column for as long as each column's predicate pins a definite lower
// value. An equality predicate narrows and continues to the next column; a
// range or IN-list predicate contributes one final value and stops, since
// there is no way to know a tighter bound on later columns once the current
// column is only bounded (not pinned).
func foldLowerBound(rangeCols []types.ColumnSchema, spec *scanspec.ScanSpec) (values []interface{}, n int) {
	for _, col := range rangeCols {
		p, ok := spec.PredicateFor(col.ID)
		if !ok {
			break
		}
		switch p.Kind {
		case predicate.Equality:
			values = append(values, p.Value)
			n++
			continue
		case predicate.Range:
			if p.Lower == nil {
				return values, n
			}
			values = append(values, p.Lower)
			n++
			return values, n
		case predicate.InList:
			minVal := minValue(p.Values)
			if minVal == nil {
				return values, n
			}
			values = append(values, minVal)
			n++
			return values, n
		default:
			return values, n
		}
	}
	return values, n
}

// foldUpperBound mirrors foldLowerBound for the upper side. exclusiveAlready
// is true when the terminal contributing value is already an exclusive
// bound (a Range predicate's Upper); equality and IN-list contribute
// inclusive, discrete values that the caller must increment.
func foldUpperBound(rangeCols []types.ColumnSchema, spec *scanspec.ScanSpec) (values []interface{}, n int, exclusiveAlready bool) {
	for _, col := range rangeCols {
		p, ok := spec.PredicateFor(col.ID)
		if !ok {
			break
		}
		switch p.Kind {
		case predicate.Equality:
			values = append(values, p.Value)
			n++
			continue
		case predicate.Range:
			if p.Upper == nil {
				return values, n, false
			}
			values = append(values, p.Upper)
			n++
			return values, n, true
		case predicate.InList:
			maxVal := maxValue(p.Values)
			if maxVal == nil {
				return values, n, false
			}
			values = append(values, maxVal)
			n++
			return values, n, false
		default:
			return values, n, false
		}
	}
	return values, n, false
}

func colTypesOf(cols []types.ColumnSchema) []types.ColumnType {
	out := make([]types.ColumnType, len(cols))
	for i, c := range cols {
		out[i] = c.Type
	}
	return out
}
