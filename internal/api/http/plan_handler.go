package http

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/tabletpruner/partitionpruner/internal/catalog"
	"github.com/tabletpruner/partitionpruner/internal/errors"
	"github.com/tabletpruner/partitionpruner/internal/observability"
	"github.com/tabletpruner/partitionpruner/internal/partitionschema"
	"github.com/tabletpruner/partitionpruner/internal/predicate"
	"github.com/tabletpruner/partitionpruner/internal/pruner"
	"github.com/tabletpruner/partitionpruner/internal/scanspec"
	"github.com/tabletpruner/partitionpruner/pkg/types"
)

// PlanHandler serves POST /v1/plan: given a table name and a scan's
// predicates and key bounds, it runs the pruner and returns the resulting
// partition-key intervals.
type PlanHandler struct {
	Catalog *catalog.Store
	Stats   *observability.PruningStats
}

// planPredicate is the wire shape of one column predicate in a plan
// request.
type planPredicate struct {
	Column string        `json:"column"`
	Kind   string        `json:"kind"`
	Value  interface{}   `json:"value,omitempty"`
	Values []interface{} `json:"values,omitempty"`
	Lower  interface{}   `json:"lower,omitempty"`
	Upper  interface{}   `json:"upper,omitempty"`
}

// planRequest is the wire shape of a POST /v1/plan body.
type planRequest struct {
	Table                  string          `json:"table"`
	Predicates             []planPredicate `json:"predicates,omitempty"`
	LowerBoundPK           []interface{}   `json:"lower_bound_pk,omitempty"`
	UpperBoundPK           []interface{}   `json:"upper_bound_pk,omitempty"`
	LowerBoundPartitionKey string          `json:"lower_bound_partition_key,omitempty"`
	UpperBoundPartitionKey string          `json:"upper_bound_partition_key,omitempty"`
	CanShortCircuit        bool            `json:"can_short_circuit,omitempty"`
}

// planInterval is the wire shape of one resulting partition-key interval,
// hex-encoded so arbitrary binary range-key bytes survive JSON.
type planInterval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// planResponse is the wire shape of a POST /v1/plan response.
type planResponse struct {
	Table              string         `json:"table"`
	Intervals          []planInterval `json:"intervals"`
	NumRangesRemaining int            `json:"num_ranges_remaining"`
	Debug              string         `json:"debug"`
}

// ServeHTTP implements http.Handler.
func (h *PlanHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), requestID)
		return
	}
	if req.Table == "" {
		writeError(w, http.StatusBadRequest, "table is required", requestID)
		return
	}

	resp, err := h.plan(r.Context(), req)
	if err != nil {
		log.Printf("plan: table=%s request_id=%s error=%v", req.Table, requestID, err)
		writeErrorDetail(w, errors.StatusCode(err), err.Error(), requestID, errors.GetDetails(err))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *PlanHandler) plan(ctx context.Context, req planRequest) (*planResponse, error) {
	def, err := h.Catalog.GetTable(ctx, req.Table)
	if err != nil {
		return nil, err
	}

	spec, err := buildScanSpec(&def.Schema, req)
	if err != nil {
		return nil, err
	}

	var p pruner.Pruner
	if err := p.Init(&def.Schema, &def.PartitionSchema, spec); err != nil {
		return nil, err
	}

	intervals := p.Intervals()
	wire := make([]planInterval, len(intervals))
	for i, iv := range intervals {
		wire[i] = planInterval{Start: hex.EncodeToString(iv.Start), End: hex.EncodeToString(iv.End)}
	}

	if h.Stats != nil {
		considered, visited := approximateTabletCounts(&def.PartitionSchema, len(intervals))
		h.Stats.RecordInit(req.Table, p.NumRangesRemaining(), considered, visited, nil)
	}

	return &planResponse{
		Table:              req.Table,
		Intervals:          wire,
		NumRangesRemaining: p.NumRangesRemaining(),
		Debug:              p.ToString(&def.Schema, &def.PartitionSchema),
	}, nil
}

// approximateTabletCounts estimates the table's total tablet count (the
// cartesian product of every hash dimension's bucket count, summed across
// range partitions) against how many intervals the plan produced, for
// PruningStats' moving pruning-ratio signal. It is a debug approximation,
// not a claim of exact tablet topology.
func approximateTabletCounts(ps *partitionschema.PartitionSchema, numIntervals int) (considered, visited int) {
	bucketsFor := func(hs partitionschema.HashSchema) int {
		total := 1
		for _, dim := range hs {
			total *= dim.NumBuckets
		}
		return total
	}

	if ps.IsUniform() {
		considered = bucketsFor(ps.HashSchema)
	} else {
		for _, r := range ps.Ranges {
			considered += bucketsFor(r.HashSchema)
		}
	}
	if considered == 0 {
		considered = 1
	}
	visited = numIntervals
	if visited > considered {
		visited = considered
	}
	return considered, visited
}

// buildScanSpec translates the wire request into a scanspec.ScanSpec typed
// against schema.
func buildScanSpec(schema *types.Schema, req planRequest) (*scanspec.ScanSpec, error) {
	spec := scanspec.New()
	spec.CanShortCircuit = req.CanShortCircuit

	for _, p := range req.Predicates {
		col, _, ok := findColumnByName(schema, p.Column)
		if !ok {
			return nil, errors.NewValidationError(errors.CodeInvalidPredicate, fmt.Sprintf("unknown column %q", p.Column))
		}

		cp, err := buildColumnPredicate(col, p)
		if err != nil {
			return nil, err
		}
		spec.AddPredicate(cp)
	}

	if req.LowerBoundPK != nil {
		row, err := buildRow(schema.KeyColumns(), req.LowerBoundPK)
		if err != nil {
			return nil, err
		}
		spec.LowerBoundPK = &row
	}
	if req.UpperBoundPK != nil {
		row, err := buildRow(schema.KeyColumns(), req.UpperBoundPK)
		if err != nil {
			return nil, err
		}
		spec.UpperBoundPK = &row
	}

	if req.LowerBoundPartitionKey != "" {
		b, err := hex.DecodeString(req.LowerBoundPartitionKey)
		if err != nil {
			return nil, errors.NewValidationError(errors.CodeInvalidPredicate, "lower_bound_partition_key must be hex")
		}
		spec.LowerBoundPartitionKey = b
	}
	if req.UpperBoundPartitionKey != "" {
		b, err := hex.DecodeString(req.UpperBoundPartitionKey)
		if err != nil {
			return nil, errors.NewValidationError(errors.CodeInvalidPredicate, "upper_bound_partition_key must be hex")
		}
		spec.UpperBoundPartitionKey = b
	}

	return spec, nil
}

func findColumnByName(schema *types.Schema, name string) (types.ColumnSchema, int, bool) {
	for i, c := range schema.Columns {
		if c.Name == name {
			return c, i, true
		}
	}
	return types.ColumnSchema{}, -1, false
}

func buildColumnPredicate(col types.ColumnSchema, p planPredicate) (predicate.ColumnPredicate, error) {
	switch p.Kind {
	case "EQUALITY":
		v, err := coerceValue(col.Type, p.Value)
		if err != nil {
			return predicate.ColumnPredicate{}, err
		}
		return predicate.NewEquality(col.ID, v), nil
	case "IN_LIST":
		values := make([]interface{}, len(p.Values))
		for i, raw := range p.Values {
			v, err := coerceValue(col.Type, raw)
			if err != nil {
				return predicate.ColumnPredicate{}, err
			}
			values[i] = v
		}
		return predicate.NewInList(col.ID, values), nil
	case "RANGE":
		lower, err := coerceOptionalValue(col.Type, p.Lower)
		if err != nil {
			return predicate.ColumnPredicate{}, err
		}
		upper, err := coerceOptionalValue(col.Type, p.Upper)
		if err != nil {
			return predicate.ColumnPredicate{}, err
		}
		return predicate.NewRange(col.ID, lower, upper), nil
	case "IS_NOT_NULL":
		return predicate.NewIsNotNull(col.ID), nil
	case "IS_NULL":
		return predicate.NewIsNull(col.ID), nil
	default:
		return predicate.ColumnPredicate{}, errors.NewValidationError(errors.CodeInvalidPredicate, fmt.Sprintf("unknown predicate kind %q", p.Kind))
	}
}

func buildRow(cols []types.ColumnSchema, raw []interface{}) (types.Row, error) {
	if len(raw) > len(cols) {
		return types.Row{}, errors.NewValidationError(errors.CodeInvalidPredicate, "row has more values than key columns")
	}
	row := types.NewRow(len(cols))
	for i, v := range raw {
		coerced, err := coerceValue(cols[i].Type, v)
		if err != nil {
			return types.Row{}, err
		}
		row.Values[i] = coerced
	}
	return row, nil
}

func coerceOptionalValue(t types.ColumnType, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	return coerceValue(t, raw)
}

// coerceValue converts a decoded JSON value (float64, string, bool, or
// []interface{} of small ints for Binary) into the Go type keyenc.Encode
// expects for t.
func coerceValue(t types.ColumnType, raw interface{}) (interface{}, error) {
	switch t {
	case types.Int8:
		n, ok := asNumber(raw)
		if !ok {
			return nil, invalidValueErr(t, raw)
		}
		return int8(n), nil
	case types.Int16:
		n, ok := asNumber(raw)
		if !ok {
			return nil, invalidValueErr(t, raw)
		}
		return int16(n), nil
	case types.Int32:
		n, ok := asNumber(raw)
		if !ok {
			return nil, invalidValueErr(t, raw)
		}
		return int32(n), nil
	case types.Int64:
		n, ok := asNumber(raw)
		if !ok {
			return nil, invalidValueErr(t, raw)
		}
		return int64(n), nil
	case types.Bool:
		b, ok := raw.(bool)
		if !ok {
			return nil, invalidValueErr(t, raw)
		}
		return b, nil
	case types.String:
		s, ok := raw.(string)
		if !ok {
			return nil, invalidValueErr(t, raw)
		}
		return s, nil
	case types.Binary:
		s, ok := raw.(string)
		if !ok {
			return nil, invalidValueErr(t, raw)
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, errors.NewValidationError(errors.CodeInvalidColumnValue, "binary value must be hex-encoded")
		}
		return b, nil
	default:
		return nil, errors.NewInternalError("plan: unknown column type", nil)
	}
}

func asNumber(raw interface{}) (float64, bool) {
	n, ok := raw.(float64)
	return n, ok
}

func invalidValueErr(t types.ColumnType, raw interface{}) error {
	return errors.NewValidationError(errors.CodeInvalidColumnValue, fmt.Sprintf("invalid value %v for column type %s", raw, t))
}

