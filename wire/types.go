// Copyright © 2016 Abcum Ltd
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wire

import "github.com/sirupsen/logrus"

// DataType is the wire data type of a described column or bind, named the
// way the TNS DESCRIBE-INFO message names them. The core never interprets
// the bytes behind a value; it only ever needs to know enough about the
// type to decide whether a LOB describe needs rewriting (see RewriteLOBs).
type DataType string

const (
	TypeVarchar2    DataType = "VARCHAR2"
	TypeNumber      DataType = "NUMBER"
	TypeDate        DataType = "DATE"
	TypeTimestamp   DataType = "TIMESTAMP"
	TypeRaw         DataType = "RAW"
	TypeRowID       DataType = "ROWID"
	TypeCLOB        DataType = "CLOB"
	TypeNCLOB       DataType = "NCLOB"
	TypeBLOB        DataType = "BLOB"
	TypeLong        DataType = "LONG"
	TypeLongRaw     DataType = "LONG RAW"
	TypeLongNVarchr DataType = "LONG NVARCHAR"
	TypeVector      DataType = "VECTOR"
	TypeJSON        DataType = "JSON"
	TypeBoolean     DataType = "BOOLEAN"
)

// IsLOB reports whether a column's declared type is one of the three LOB
// kinds that may need coercing to their LONG-family equivalents when the
// caller opted out of full LOB materialization.
func (t DataType) IsLOB() bool {
	return t == TypeCLOB || t == TypeNCLOB || t == TypeBLOB
}

// longEquivalent returns the LONG-family type a LOB column is rewritten to.
func (t DataType) longEquivalent() DataType {
	switch t {
	case TypeCLOB:
		return TypeLong
	case TypeNCLOB:
		return TypeLongNVarchr
	case TypeBLOB:
		return TypeLongRaw
	default:
		return t
	}
}

// Column is one entry of a DescribeInfo: a column's name, data type,
// size, precision, scale and nullability.
type Column struct {
	Name      string
	Type      DataType
	Size      int
	Precision int
	Scale     int
	Nullable  bool
}

// DescribeInfo is the per-statement column metadata the server returns
// before streaming rows.
type DescribeInfo struct {
	Columns []Column
}

// HasLOBColumn reports whether any column is CLOB/NCLOB/BLOB.
func (d *DescribeInfo) HasLOBColumn() bool {
	for _, c := range d.Columns {
		if c.Type.IsLOB() {
			return true
		}
	}
	return false
}

// RewriteLOBs returns a copy of d with every LOB column coerced to its
// LONG-family equivalent, used when the caller set FetchLOBs=false and the
// server's DESCRIBE-INFO still came back with LOB columns.
func (d *DescribeInfo) RewriteLOBs() *DescribeInfo {
	out := &DescribeInfo{Columns: make([]Column, len(d.Columns))}
	for i, c := range d.Columns {
		if c.Type.IsLOB() {
			c.Type = c.Type.longEquivalent()
		}
		out.Columns[i] = c
	}
	return out
}

// BitVector is a bitmap over column positions: a set bit means the next
// row's value at that position repeats the previous row's value verbatim.
type BitVector struct {
	bits []bool
}

// NewBitVector builds a BitVector from column-compression flags, one per
// described column.
func NewBitVector(bits []bool) *BitVector {
	return &BitVector{bits: append([]bool(nil), bits...)}
}

// IsDuplicate reports whether column i repeats the previous row's value.
func (b *BitVector) IsDuplicate(i int) bool {
	if b == nil || i < 0 || i >= len(b.bits) {
		return false
	}
	return b.bits[i]
}

// Len returns the number of columns the bit vector covers.
func (b *BitVector) Len() int {
	if b == nil {
		return 0
	}
	return len(b.bits)
}

// RowHeader precedes a run of ROW-DATA messages. BitVector is nil until a
// BIT-VECTOR message attaches one.
type RowHeader struct {
	BitVector *BitVector
}

// Row is one decoded row: the raw, still-encoded bytes of each column. The
// core never parses column contents past finding their boundaries and
// resolving bit-vector duplicates — codec-level decoding is an external
// collaborator's job.
type Row struct {
	Columns [][]byte
}

// BindDirection is the parameter mode of a bind variable.
type BindDirection int

const (
	BindIn BindDirection = iota
	BindOut
	BindInOut
)

// BindMeta is the static metadata of a bind variable.
type BindMeta struct {
	Name      string
	Type      DataType
	MaxSize   int
	Direction BindDirection
}

// Bind is a mutable ref bind: a small owned object carrying a metadata
// block and a mutable value buffer, passed by pointer into the statement
// context so the dispatcher can set its Value after the statement
// completes (for OUT/IN-OUT parameters) or the EQSM can append successive
// PL/SQL row-data chunks into it.
type Bind struct {
	Meta  BindMeta
	Value []byte
}

// AppendRow appends one row's worth of decoded bytes for this OUT bind,
// growing Value. Used by the PL/SQL row-data path.
func (b *Bind) AppendRow(chunk []byte) {
	b.Value = append(b.Value, chunk...)
}

// StatementKind is the tagged variant over statement kinds a
// StatementContext carries: query, dml, ddl, or plsql.
type StatementKind int

const (
	StatementQuery StatementKind = iota
	StatementDML
	StatementDDL
	StatementPLSQL
)

func (k StatementKind) String() string {
	switch k {
	case StatementQuery:
		return "query"
	case StatementDML:
		return "dml"
	case StatementDDL:
		return "ddl"
	case StatementPLSQL:
		return "plsql"
	default:
		return "unknown"
	}
}

// Options are the per-statement option flags carried alongside a
// StatementContext: array size, prefetch rows, fetch-LOBs, require-define.
// This is plain data that travels through the core, not parsed
// configuration — it is simply the shape of one caller request.
type Options struct {
	ArraySize     int
	PrefetchRows  int
	FetchLOBs     bool
	RequireDefine bool
}

// BatchError is one entry of a batch-DML error list, reported alongside a
// Result for array DML operations that partially failed.
type BatchError struct {
	RowOffset int
	Err       *ServerError
}

// Result is what a statement completer receives on success: at RowHeader
// time for a streamed statement, or at end-of-data when no row header
// arrived. The core fills in Describe only; AffectedRows, LastRowID,
// RowCounts and BatchErrors are never set by it.
type Result struct {
	Describe     *DescribeInfo
	AffectedRows int64
	LastRowID    string
	RowCounts    []int64
	BatchErrors  []BatchError
}

// StatementContext is the input to the ExtendedQueryStateMachine: one
// statement's kind, options, cursor slot, binds, logger and result
// completer.
type StatementContext struct {
	Kind      StatementKind
	SQL       string
	Options   Options
	CursorID  uint32
	Binds     []*Bind
	Logger    *logrus.Entry
	Completer *Completer[*Result]

	// cancelled is set by EQSM.Cancel and consulted by setAndFireError's
	// pre-stream branch. It lives here rather than on the EQSM state
	// itself so it survives the state's own terminal transition.
	cancelled bool
}

// MarkCancelled idempotently records that the caller asked to cancel this
// statement: calling it twice has the same effect as calling it once.
func (s *StatementContext) MarkCancelled() {
	s.cancelled = true
}

// Cancelled reports whether MarkCancelled has been called.
func (s *StatementContext) Cancelled() bool {
	return s.cancelled
}

// CleanupAction is the transport-level action a CleanupContext resolves
// to once a connection-level error forces a teardown.
type CleanupAction int

const (
	CleanupClose CleanupAction = iota
	CleanupFireChannelInactive
)

// CleanupContext is what CSM builds whenever an error requires tearing the
// connection down: the drained task queue (to be failed), the triggering
// error, which transport action to take, and the completer (if any) a
// pending close() is waiting on.
type CleanupContext struct {
	Action         CleanupAction
	Tasks          []*StatementContext
	Err            error
	CloseCompleter *Completer[struct{}]
}
