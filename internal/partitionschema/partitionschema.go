// Package partitionschema describes how a table's rows are distributed
// across tablets: hash bucketing over one or more column groups, combined
// with range bucketing over an ordered column prefix. It also supplies the
// seeded hash function the pruner uses to compute bucket ordinals and the
// debug formatter the cursor uses to render partition keys for humans.
package partitionschema

import (
	"fmt"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/tabletpruner/partitionpruner/internal/keyenc"
	"github.com/tabletpruner/partitionpruner/pkg/types"
)

// HashDimension defines one independent hash-bucketing rule over a tuple of
// columns.
type HashDimension struct {
	ColumnIDs  []int32
	NumBuckets int
	Seed       uint32
}

// HashSchema is an ordered list of hash dimensions, possibly empty.
type HashSchema []HashDimension

// RangeBounds demarcates a range partition's extent on the range-column
// axis. Either side may be nil, meaning unbounded.
type RangeBounds struct {
	Lower []byte
	Upper []byte
}

// Empty reports whether neither bound is set.
func (b RangeBounds) Empty() bool {
	return len(b.Lower) == 0 && len(b.Upper) == 0
}

// RangeWithHashSchema overrides the hash schema effective for rows whose
// range key falls in [Lower, Upper).
type RangeWithHashSchema struct {
	Lower      []byte
	Upper      []byte
	HashSchema HashSchema
}

// PartitionSchema is either a single table-wide hash schema plus range
// column list, or a list of per-range hash schema overrides. Exactly one of
// the two modes is active for a given table: Ranges is nil in the uniform
// case, HashSchema is ignored (conceptually empty) in the per-range case.
type PartitionSchema struct {
	RangeColumnIDs []int32
	HashSchema     HashSchema
	Ranges         []RangeWithHashSchema
}

// IsUniform reports whether the schema uses one table-wide hash schema
// rather than per-range overrides.
func (ps *PartitionSchema) IsUniform() bool {
	return len(ps.Ranges) == 0
}

// HashValueForEncodedColumns hashes the already-encoded column tuple with
// the dimension's seed and returns the bucket ordinal. The encoding must be
// byte-identical to what the writer used to place the row, or pruning will
// silently misroute scans.
func HashValueForEncodedColumns(encoded []byte, dim HashDimension) uint32 {
	h := murmur3.New32WithSeed(dim.Seed)
	h.Write(encoded)
	return h.Sum32() % uint32(dim.NumBuckets)
}

// HashValueForValues encodes colTypes/values as a composite key and hashes
// it under dim, returning the resulting bucket ordinal.
func HashValueForValues(dim HashDimension, colTypes []types.ColumnType, values []interface{}) (uint32, error) {
	encoded, err := keyenc.EncodeValues(colTypes, values)
	if err != nil {
		return 0, err
	}
	return HashValueForEncodedColumns(encoded, dim), nil
}

// PartitionKeyDebugString renders an encoded partition key as a
// human-readable string: one bucket ordinal per hash dimension followed by
// one "name=<N bytes>" part per range column, where N is the length of the
// whole range-key suffix, e.g. "(0, 2, c=<4 bytes>)". Range-key values are
// not decoded. An empty key renders as the given placeholder (used by the
// cursor for open interval ends).
func PartitionKeyDebugString(key []byte, hashSchema HashSchema, rangeColumns []types.ColumnSchema, placeholder string) string {
	if len(key) == 0 {
		return placeholder
	}

	var parts []string
	offset := 0
	for range hashSchema {
		if offset+4 > len(key) {
			break
		}
		bucket, err := keyenc.DecodeBucketOrdinal(key[offset : offset+4])
		if err != nil {
			break
		}
		parts = append(parts, fmt.Sprintf("%d", bucket))
		offset += 4
	}

	if offset < len(key) {
		parts = append(parts, decodeRangeKeyDebug(key[offset:], rangeColumns)...)
	}

	return "(" + strings.Join(parts, ", ") + ")"
}

// decodeRangeKeyDebug describes the range-key suffix for display purposes
// only: it labels each range column with the byte length of the whole
// suffix (or emits a bare "<N bytes>" when there are no range columns) and
// does not decode any value.
func decodeRangeKeyDebug(rangeKey []byte, rangeColumns []types.ColumnSchema) []string {
	var parts []string
	for i, col := range rangeColumns {
		parts = append(parts, fmt.Sprintf("%s=<%d bytes>", col.Name, len(rangeKey)))
		if i == len(rangeColumns)-1 {
			break
		}
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("<%d bytes>", len(rangeKey)))
	}
	return parts
}
