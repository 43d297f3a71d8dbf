// Package query models one query instance on its way through
// distributed assembly: identity, options, variables, the transaction
// context shared between a query and its dependent clones, and the
// engine slot the coordinator build fills in.
package query

import (
	"github.com/google/uuid"

	"github.com/perchdb/perch/internal/engine"
)

// Part tells whether a query object is the caller's query or a
// dependent clone created for an additional coordinator snippet.
type Part int

const (
	PartWhole Part = iota
	PartDependent
)

// State is the coarse lifecycle position of a query.
type State int

const (
	StateAssembling State = iota
	StateExecuting
	StateFinished
)

// TxnContext is the transaction scope a query runs in. Dependent
// clones share their parent's context, which is what keeps all
// coordinator snippets of one query inside one transaction.
type TxnContext struct {
	id string
}

func newTxnContext() *TxnContext {
	return &TxnContext{id: uuid.NewString()}
}

// ID returns the context's transaction id.
func (c *TxnContext) ID() string {
	return c.id
}

// Query is one query instance. A Query is owned by a single build
// attempt and is not safe for concurrent use; the registry adds its
// own locking once a query is inserted.
type Query struct {
	id       string
	database string
	part     Part
	state    State
	options  Options
	vars     Variables
	txn      *TxnContext
	engine   *engine.Engine
}

// New creates a caller-owned query for the given database.
func New(database string, opts Options) *Query {
	return &Query{
		id:       uuid.NewString(),
		database: database,
		part:     PartWhole,
		options:  opts,
		txn:      newTxnContext(),
	}
}

// ID returns the query's id.
func (q *Query) ID() string {
	return q.id
}

// Database returns the database the query runs against.
func (q *Query) Database() string {
	return q.database
}

// Part returns whether this is the caller's query or a clone.
func (q *Query) Part() Part {
	return q.part
}

// Options returns the query's option set.
func (q *Query) Options() Options {
	return q.options
}

// Variables returns the query's variable table.
func (q *Query) Variables() Variables {
	return q.vars
}

// SetVariables replaces the query's variable table.
func (q *Query) SetVariables(vars Variables) {
	q.vars = vars
}

// TxnContext returns the transaction context, shared with clones.
func (q *Query) TxnContext() *TxnContext {
	return q.txn
}

// State returns the query's lifecycle position.
func (q *Query) State() State {
	return q.state
}

// SetState moves the query to a new lifecycle position.
func (q *Query) SetState(s State) {
	q.state = s
}

// Clone creates a dependent query that shares the receiver's
// transaction context but owns its own engine slot. Options and
// variables are copied. Cloning a finished query fails.
func (q *Query) Clone(part Part) (*Query, error) {
	if q.state == StateFinished {
		return nil, ErrQueryFinished.WithCausef("query:%s", q.id)
	}
	vars := make(Variables, len(q.vars))
	copy(vars, q.vars)
	return &Query{
		id:       uuid.NewString(),
		database: q.database,
		part:     part,
		options:  q.options,
		vars:     vars,
		txn:      q.txn,
	}, nil
}

// Engine returns the attached engine, or nil before the build.
func (q *Query) Engine() *engine.Engine {
	return q.engine
}

// SetEngine attaches the engine built for this query's snippet.
func (q *Query) SetEngine(e *engine.Engine) {
	q.engine = e
}

// DetachEngine removes and returns the attached engine. The failure
// path of a build uses this to hand a caller back a query without a
// half-built engine hanging off it.
func (q *Query) DetachEngine() *engine.Engine {
	e := q.engine
	q.engine = nil
	return e
}
