// Package keyenc encodes column values into the composite-key byte format
// shared by primary keys, range keys, and hash-bucket ordinals. Ordering of
// the encoded bytes must equal the type's natural ordering, and the
// encoding of a given value must be identical regardless of which caller
// produces it — the pruner and the writer that laid out the tablets must
// agree byte-for-byte.
package keyenc

import (
	"encoding/binary"

	"github.com/tabletpruner/partitionpruner/internal/errors"
	"github.com/tabletpruner/partitionpruner/pkg/types"
)

// terminator separates non-terminal variable-length segments in a composite
// key. 0x00 bytes occurring in the value itself are escaped to 0x00 0x01 so
// the terminator 0x00 0x00 remains unambiguous.
var (
	escapedZero       = []byte{0x00, 0x01}
	segmentTerminator = []byte{0x00, 0x00}
)

// Encode appends the encoded form of value (of column type t) to out and
// returns the extended slice. isLastSegment controls how variable-length
// types are terminated: the final segment of a composite key is left
// unterminated so that prefix comparisons between keys of different length
// still order correctly.
func Encode(t types.ColumnType, value interface{}, isLastSegment bool, out []byte) ([]byte, error) {
	switch t {
	case types.Int8:
		v, ok := value.(int8)
		if !ok {
			return nil, errors.NewPruningError(errors.CodeInvalidColumnValue, "keyenc: expected int8 value")
		}
		return append(out, byte(v)^0x80), nil
	case types.Int16:
		v, ok := value.(int16)
		if !ok {
			return nil, errors.NewPruningError(errors.CodeInvalidColumnValue, "keyenc: expected int16 value")
		}
		var buf [2]byte
		binary.BigEndian.PutUint16(buf[:], uint16(v)^0x8000)
		return append(out, buf[:]...), nil
	case types.Int32:
		v, ok := value.(int32)
		if !ok {
			return nil, errors.NewPruningError(errors.CodeInvalidColumnValue, "keyenc: expected int32 value")
		}
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(v)^0x80000000)
		return append(out, buf[:]...), nil
	case types.Int64:
		v, ok := value.(int64)
		if !ok {
			return nil, errors.NewPruningError(errors.CodeInvalidColumnValue, "keyenc: expected int64 value")
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(v)^0x8000000000000000)
		return append(out, buf[:]...), nil
	case types.Bool:
		v, ok := value.(bool)
		if !ok {
			return nil, errors.NewPruningError(errors.CodeInvalidColumnValue, "keyenc: expected bool value")
		}
		if v {
			return append(out, 0x01), nil
		}
		return append(out, 0x00), nil
	case types.String:
		v, ok := value.(string)
		if !ok {
			return nil, errors.NewPruningError(errors.CodeInvalidColumnValue, "keyenc: expected string value")
		}
		return encodeVariable(out, []byte(v), isLastSegment), nil
	case types.Binary:
		v, ok := value.([]byte)
		if !ok {
			return nil, errors.NewPruningError(errors.CodeInvalidColumnValue, "keyenc: expected []byte value")
		}
		return encodeVariable(out, v, isLastSegment), nil
	default:
		return nil, errors.NewInternalError("keyenc: unknown column type", nil)
	}
}

// encodeVariable escapes 0x00 bytes in v and, if this is not the final
// segment of the composite key, appends the two-byte terminator.
func encodeVariable(out, v []byte, isLastSegment bool) []byte {
	for _, b := range v {
		if b == 0x00 {
			out = append(out, escapedZero...)
		} else {
			out = append(out, b)
		}
	}
	if !isLastSegment {
		out = append(out, segmentTerminator...)
	}
	return out
}

// EncodeRowPrefix encodes the first n columns of row according to cols,
// producing one composite key. The nth column is encoded as the terminal
// segment; all others as non-terminal, escaped segments.
func EncodeRowPrefix(cols []types.ColumnSchema, row types.Row, n int) ([]byte, error) {
	if n > len(cols) || n > len(row.Values) {
		return nil, errors.NewInternalError("keyenc: row prefix longer than available columns", nil)
	}
	var out []byte
	var err error
	for i := 0; i < n; i++ {
		out, err = Encode(cols[i].Type, row.Values[i], i == n-1, out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// EncodeValues encodes a tuple of (type, value) pairs as a single composite
// key, the way a hash dimension's column tuple is encoded before hashing.
func EncodeValues(colTypes []types.ColumnType, values []interface{}) ([]byte, error) {
	if len(colTypes) != len(values) {
		return nil, errors.NewInternalError("keyenc: type/value count mismatch", nil)
	}
	var out []byte
	var err error
	for i := range colTypes {
		out, err = Encode(colTypes[i], values[i], i == len(colTypes)-1, out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// EncodeBucketOrdinal encodes a hash bucket ordinal as the 4-byte
// big-endian form used in every partition key's hash prefix.
func EncodeBucketOrdinal(bucket uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], bucket)
	return buf[:]
}

// DecodeBucketOrdinal decodes a 4-byte big-endian bucket ordinal.
func DecodeBucketOrdinal(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, errors.NewInternalError("keyenc: bucket ordinal must be 4 bytes", nil)
	}
	return binary.BigEndian.Uint32(b), nil
}

// IncrementKey returns the lexicographic successor of key, treating key as
// a big-endian unsigned integer. overflow is true if key is already at its
// maximum value (all 0xFF bytes), in which case the returned slice is nil
// and the caller must treat the bound as unbounded (+∞).
func IncrementKey(key []byte) (incremented []byte, overflow bool) {
	out := make([]byte, len(key))
	copy(out, key)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] < 0xFF {
			out[i]++
			return out, false
		}
		out[i] = 0x00
	}
	return nil, true
}
