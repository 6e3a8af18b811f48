package pruner

import (
	"bytes"

	"github.com/tabletpruner/partitionpruner/internal/errors"
)

// unknownColumnError reports a column id the schema doesn't recognize.
// Per §7, this is a programmer error: the caller must have validated
// column ids before invoking the pruner. It is a Pruning-category error,
// not Internal — the pruner itself is working correctly; its caller
// violated the contract that every column id in a ScanSpec resolves
// against the schema it was built from.
func unknownColumnError(columnID int32) error {
	return errors.NewPruningError(
		errors.CodeUnknownColumn,
		"pruner: unknown column id",
	).WithDetails(map[string]interface{}{"column_id": columnID})
}

// compareValues orders two column values of the same underlying type.
// Returns -1, 0, or 1. Used only to pick min/max candidates out of an
// IN-list predicate; it does not need to handle mixed types.
func compareValues(a, b interface{}) int {
	switch av := a.(type) {
	case int8:
		bv := b.(int8)
		return compareInt64(int64(av), int64(bv))
	case int16:
		bv := b.(int16)
		return compareInt64(int64(av), int64(bv))
	case int32:
		bv := b.(int32)
		return compareInt64(int64(av), int64(bv))
	case int64:
		bv := b.(int64)
		return compareInt64(av, bv)
	case bool:
		bv := b.(bool)
		if av == bv {
			return 0
		}
		if !av && bv {
			return -1
		}
		return 1
	case string:
		bv := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case []byte:
		bv := b.([]byte)
		return bytes.Compare(av, bv)
	default:
		return 0
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// minValue returns the smallest value in values, or nil if values is empty.
func minValue(values []interface{}) interface{} {
	if len(values) == 0 {
		return nil
	}
	min := values[0]
	for _, v := range values[1:] {
		if compareValues(v, min) < 0 {
			min = v
		}
	}
	return min
}

// maxValue returns the largest value in values, or nil if values is empty.
func maxValue(values []interface{}) interface{} {
	if len(values) == 0 {
		return nil
	}
	max := values[0]
	for _, v := range values[1:] {
		if compareValues(v, max) > 0 {
			max = v
		}
	}
	return max
}
