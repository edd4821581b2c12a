// Package dbtest provides an in-memory database.Handle for tests. It records
// every call in order and answers reads from scripted responses matched by
// statement substring.
package dbtest

import (
	"context"
	"fmt"
	"strings"

	"github.com/koustreak/geori/internal/database"
	"github.com/koustreak/geori/internal/errs"
)

// Op names a Handle method.
type Op string

const (
	OpExec     Op = "exec"
	OpFetch    Op = "fetch"
	OpQuery    Op = "query"
	OpCommit   Op = "commit"
	OpRollback Op = "rollback"
)

// Call is one recorded Handle invocation.
type Call struct {
	Op   Op
	Stmt string
}

// Response answers Fetch and Query calls whose statement contains Match.
type Response struct {
	Match   string
	Columns []string
	Rows    [][]any
	Err     error
}

// Handle is a scripted, recording database.Handle.
type Handle struct {
	Calls     []Call
	responses []Response
	execErrs  map[int]error
	execs     int
	rbErr     error
	inTx      bool
	closed    bool
}

var _ database.Handle = (*Handle)(nil)

func New() *Handle {
	return &Handle{execErrs: make(map[int]error)}
}

// On registers rows returned for statements containing match. Later
// registrations take precedence.
func (h *Handle) On(match string, columns []string, rows ...[]any) *Handle {
	h.responses = append(h.responses, Response{Match: match, Columns: columns, Rows: rows})
	return h
}

// OnError makes statements containing match fail with err.
func (h *Handle) OnError(match string, err error) *Handle {
	h.responses = append(h.responses, Response{Match: match, Err: err})
	return h
}

// FailExec makes the n-th Exec call (1-based) fail with err.
func (h *Handle) FailExec(n int, err error) *Handle {
	h.execErrs[n] = err
	return h
}

// FailRollback makes every Rollback call fail with err.
func (h *Handle) FailRollback(err error) *Handle {
	h.rbErr = err
	return h
}

// Execs returns the statements passed to Exec, in order.
func (h *Handle) Execs() []string {
	var out []string
	for _, c := range h.Calls {
		if c.Op == OpExec {
			out = append(out, c.Stmt)
		}
	}
	return out
}

// Ops returns the sequence of operations without statements.
func (h *Handle) Ops() []Op {
	out := make([]Op, len(h.Calls))
	for i, c := range h.Calls {
		out[i] = c.Op
	}
	return out
}

// Count returns how many calls of op were made.
func (h *Handle) Count(op Op) int {
	n := 0
	for _, c := range h.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (h *Handle) Closed() bool { return h.closed }

// InTx reports whether an Exec has run since the last Commit or Rollback.
func (h *Handle) InTx() bool { return h.inTx }

func (h *Handle) Ping(context.Context) error {
	if h.closed {
		return errs.New(errs.ErrKindConnectionFailed, "handle closed")
	}
	return nil
}

func (h *Handle) Exec(_ context.Context, stmt string) error {
	h.Calls = append(h.Calls, Call{Op: OpExec, Stmt: stmt})
	h.execs++
	h.inTx = true
	if err, ok := h.execErrs[h.execs]; ok {
		return errs.Wrap(errs.ErrKindQueryFailed, "exec failed", err).WithStatement(stmt)
	}
	return nil
}

func (h *Handle) Fetch(_ context.Context, stmt string) ([]map[string]any, error) {
	h.Calls = append(h.Calls, Call{Op: OpFetch, Stmt: stmt})
	resp, err := h.match(stmt)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(resp.Rows))
	for _, r := range resp.Rows {
		m := make(map[string]any, len(resp.Columns))
		for i, c := range resp.Columns {
			if i < len(r) {
				m[c] = r[i]
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func (h *Handle) Query(_ context.Context, stmt string) (database.Rows, error) {
	h.Calls = append(h.Calls, Call{Op: OpQuery, Stmt: stmt})
	resp, err := h.match(stmt)
	if err != nil {
		return nil, err
	}
	return NewRows(resp.Columns, resp.Rows...), nil
}

func (h *Handle) Commit(context.Context) error {
	h.Calls = append(h.Calls, Call{Op: OpCommit})
	h.inTx = false
	return nil
}

func (h *Handle) Rollback(context.Context) error {
	h.Calls = append(h.Calls, Call{Op: OpRollback})
	if h.rbErr != nil {
		return errs.Wrap(errs.ErrKindConnectionFailed, "rollback failed", h.rbErr)
	}
	h.inTx = false
	return nil
}

func (h *Handle) Close(context.Context) error {
	h.closed = true
	return nil
}

func (h *Handle) match(stmt string) (Response, error) {
	for i := len(h.responses) - 1; i >= 0; i-- {
		r := h.responses[i]
		if strings.Contains(stmt, r.Match) {
			if r.Err != nil {
				return Response{}, errs.Wrap(errs.ErrKindQueryFailed, "query failed", r.Err).WithStatement(stmt)
			}
			return r, nil
		}
	}
	return Response{}, errs.Wrap(errs.ErrKindQueryFailed, "query failed",
		fmt.Errorf("dbtest: no response registered for %q", stmt)).WithStatement(stmt)
}

// Rows is a slice-backed database.Rows.
type Rows struct {
	columns []string
	rows    [][]any
	pos     int
	closed  bool
	err     error
}

var _ database.Rows = (*Rows)(nil)

// NewRows returns a result set over rows.
func NewRows(columns []string, rows ...[]any) *Rows {
	return &Rows{columns: columns, rows: rows, pos: -1}
}

// WithErr makes Err return err once iteration ends.
func (r *Rows) WithErr(err error) *Rows {
	r.err = err
	return r
}

func (r *Rows) Next() bool {
	if r.closed || r.pos+1 >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	if r.pos < 0 || r.pos >= len(r.rows) {
		return errs.New(errs.ErrKindQueryFailed, "scan called without a current row")
	}
	row := r.rows[r.pos]
	if len(dest) != len(row) {
		return errs.Newf(errs.ErrKindQueryFailed, "expected %d destinations, got %d", len(row), len(dest))
	}
	for i, d := range dest {
		p, ok := d.(*any)
		if !ok {
			return errs.Newf(errs.ErrKindQueryFailed, "destination %d is %T, want *any", i, d)
		}
		*p = row[i]
	}
	return nil
}

func (r *Rows) Columns() ([]string, error) { return r.columns, nil }
func (r *Rows) Close()                     { r.closed = true }
func (r *Rows) Err() error                 { return r.err }

// Closed reports whether Close was called.
func (r *Rows) Closed() bool { return r.closed }
