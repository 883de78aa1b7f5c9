// Package coprocessor implements the read-side query path: a pull-based
// executor tree fed by a scan-oriented storage adapter, and the DAG request
// handler that drives an executor to completion while shaping streaming
// responses. Request and response messages are plain structs with field
// accessors; their wire codec lives outside this repository.
package coprocessor

import (
	"encoding/binary"
	"encoding/json"
	"math"
)

// Column flag bits, matching the upstream schema flags the requests carry.
const (
	FlagNotNull  uint64 = 1 << 0
	FlagUnsigned uint64 = 1 << 5
)

// ColumnInfo describes one output column of a request.
type ColumnInfo struct {
	ColumnID   int64  `json:"column_id"`
	PKHandle   bool   `json:"pk_handle"`
	Flag       uint64 `json:"flag"`
	DefaultVal []byte `json:"default_val,omitempty"`
}

// HasNotNullFlag reports whether the column is declared NOT NULL.
func (c *ColumnInfo) HasNotNullFlag() bool { return c.Flag&FlagNotNull != 0 }

// HasUnsignedFlag reports whether the column holds unsigned integers.
func (c *ColumnInfo) HasUnsignedFlag() bool { return c.Flag&FlagUnsigned != 0 }

// KeyRange is [Start, End) over raw user keys.
type KeyRange struct {
	Start []byte `json:"start"`
	End   []byte `json:"end"`
}

// ExecType tags an executor descriptor.
type ExecType int

const (
	ExecTypeTableScan ExecType = iota
	ExecTypeSelection
	ExecTypeAggregation
	ExecTypeLimit
)

// ExecutorDescriptor is one node of the requested executor list. Exactly
// one of the payload fields matching Tp is set.
type ExecutorDescriptor struct {
	Tp          ExecType     `json:"tp"`
	TableScan   *TableScan   `json:"table_scan,omitempty"`
	Selection   *Selection   `json:"selection,omitempty"`
	Aggregation *Aggregation `json:"aggregation,omitempty"`
	Limit       *Limit       `json:"limit,omitempty"`
}

// TableScan reads rows from the key-value ranges of the request.
type TableScan struct {
	Columns []*ColumnInfo `json:"columns"`
	Desc    bool          `json:"desc"`
}

// Selection filters rows by a conjunction of conditions.
type Selection struct {
	Conditions []*Expr `json:"conditions"`
}

// Aggregation aggregates the child's rows. Only the argument-free COUNT
// without grouping is supported by this executor set.
type Aggregation struct {
	AggFuncs []*Expr `json:"agg_funcs"`
}

// Limit truncates the child's row stream.
type Limit struct {
	Limit uint64 `json:"limit"`
}

// ExprType tags an expression node.
type ExprType int

const (
	ExprNull ExprType = iota
	ExprInt64
	ExprUint64
	ExprFloat64
	ExprBytes
	ExprColumnRef
	ExprScalarFunc
)

// ScalarFuncSig selects the function of a scalar-function node.
type ScalarFuncSig int

const (
	SigUnspecified ScalarFuncSig = iota
	SigEQInt
	SigLTInt
	SigGTInt
	SigEQReal
	SigLogicalAnd
	SigLogicalOr
	SigIntIsNull
	SigUnaryNot
	SigCount
)

// Expr is one node of a request expression tree. Constants carry their
// payload in Val; column references carry the referenced column id;
// scalar functions carry a signature and children.
type Expr struct {
	Tp       ExprType      `json:"tp"`
	Sig      ScalarFuncSig `json:"sig,omitempty"`
	Val      []byte        `json:"val,omitempty"`
	Children []*Expr       `json:"children,omitempty"`
}

// IntVal decodes the payload of an ExprInt64 node.
func (e *Expr) IntVal() int64 {
	return int64(binary.BigEndian.Uint64(e.Val))
}

// UintVal decodes the payload of an ExprUint64 or ExprColumnRef node.
func (e *Expr) UintVal() uint64 {
	return binary.BigEndian.Uint64(e.Val)
}

// FloatVal decodes the payload of an ExprFloat64 node.
func (e *Expr) FloatVal() float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(e.Val))
}

// NewIntExpr builds an int constant node.
func NewIntExpr(v int64) *Expr {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return &Expr{Tp: ExprInt64, Val: b[:]}
}

// NewUintExpr builds an unsigned constant node.
func NewUintExpr(v uint64) *Expr {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return &Expr{Tp: ExprUint64, Val: b[:]}
}

// NewFloatExpr builds a float constant node.
func NewFloatExpr(v float64) *Expr {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	return &Expr{Tp: ExprFloat64, Val: b[:]}
}

// NewColumnRefExpr builds a reference to a column by id.
func NewColumnRefExpr(colID int64) *Expr {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(colID))
	return &Expr{Tp: ExprColumnRef, Val: b[:]}
}

// NewScalarFuncExpr builds a function node.
func NewScalarFuncExpr(sig ScalarFuncSig, children ...*Expr) *Expr {
	return &Expr{Tp: ExprScalarFunc, Sig: sig, Children: children}
}

// DAGRequest is the coprocessor request payload.
type DAGRequest struct {
	StartTS        uint64                `json:"start_ts"`
	Executors      []*ExecutorDescriptor `json:"executors"`
	OutputOffsets  []uint32              `json:"output_offsets"`
	TimeZoneOffset int64                 `json:"time_zone_offset"`
	Flags          uint64                `json:"flags"`
}

// Chunk is one batch of encoded rows in a response.
type Chunk struct {
	RowsData []byte `json:"rows_data"`
}

// SelectError is the in-band error of a response body.
type SelectError struct {
	Msg string `json:"msg"`
}

// SelectResponse is the response body serialized into Response.Data.
type SelectResponse struct {
	Chunks []Chunk      `json:"chunks"`
	Error  *SelectError `json:"error,omitempty"`
}

// Marshal serializes the body.
func (r *SelectResponse) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalSelectResponse parses a response body.
func UnmarshalSelectResponse(b []byte) (*SelectResponse, error) {
	var r SelectResponse
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Response is one response frame. Range, when present, is the
// inclusive-start exclusive-end span of user keys actually scanned.
type Response struct {
	Data       []byte    `json:"data"`
	Range      *KeyRange `json:"range,omitempty"`
	OtherError string    `json:"other_error,omitempty"`
}
