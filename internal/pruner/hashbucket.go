package pruner

import (
	"github.com/tabletpruner/partitionpruner/internal/keyenc"
	"github.com/tabletpruner/partitionpruner/internal/partitionschema"
	"github.com/tabletpruner/partitionpruner/internal/scanspec"
	"github.com/tabletpruner/partitionpruner/pkg/types"
)

// computeHashBucketBitset implements §4.2 for one hash dimension: a bitset
// of length dim.NumBuckets, true at every bucket ordinal reachable from the
// scan's predicates.
func computeHashBucketBitset(dim partitionschema.HashDimension, schema *types.Schema, spec *scanspec.ScanSpec) ([]bool, error) {
	colTypes := make([]types.ColumnType, len(dim.ColumnIDs))
	valuesPerColumn := make([][]interface{}, len(dim.ColumnIDs))

	for i, colID := range dim.ColumnIDs {
		col, _, ok := schema.ColumnByID(colID)
		if !ok {
			return nil, unknownColumnError(colID)
		}
		colTypes[i] = col.Type

		p, ok := spec.PredicateFor(colID)
		if !ok {
			return allTrue(dim.NumBuckets), nil
		}
		values, ok := p.EqualityValues()
		if !ok {
			return allTrue(dim.NumBuckets), nil
		}
		valuesPerColumn[i] = values
	}

	bitset := make([]bool, dim.NumBuckets)
	for _, tuple := range cartesianProduct(valuesPerColumn) {
		encoded, err := keyenc.EncodeValues(colTypes, tuple)
		if err != nil {
			return nil, err
		}
		bucket := partitionschema.HashValueForEncodedColumns(encoded, dim)
		bitset[bucket] = true
	}

	return bitset, nil
}

func allTrue(n int) []bool {
	bitset := make([]bool, n)
	for i := range bitset {
		bitset[i] = true
	}
	return bitset
}

// cartesianProduct enumerates every combination of one value per input
// column, in column-major order matching the dimension's column order.
func cartesianProduct(valuesPerColumn [][]interface{}) [][]interface{} {
	if len(valuesPerColumn) == 0 {
		return nil
	}

	total := 1
	for _, values := range valuesPerColumn {
		if len(values) == 0 {
			return nil
		}
		total *= len(values)
	}

	result := make([][]interface{}, 0, total)
	indices := make([]int, len(valuesPerColumn))
	for {
		tuple := make([]interface{}, len(valuesPerColumn))
		for i, idx := range indices {
			tuple[i] = valuesPerColumn[i][idx]
		}
		result = append(result, tuple)

		pos := len(indices) - 1
		for pos >= 0 {
			indices[pos]++
			if indices[pos] < len(valuesPerColumn[pos]) {
				break
			}
			indices[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}

	return result
}

// bitsetIsAllTrue reports whether every element of bitset is true.
func bitsetIsAllTrue(bitset []bool) bool {
	for _, b := range bitset {
		if !b {
			return false
		}
	}
	return true
}
