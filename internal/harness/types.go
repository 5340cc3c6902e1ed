package harness

import (
	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/nullability"
	"github.com/roach88/tsq/internal/sqlbuild"
)

// RenderedSQL is the statement as compiled for one dialect.
type RenderedSQL struct {
	Dialect string `json:"dialect"`
	SQL     string `json:"sql,omitempty"`
	Params  []any  `json:"params,omitempty"`
	// Error is set when the dialect cannot express the statement.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses match.
	Pass bool `json:"pass"`

	// Rendered holds one entry per dialect, in dialect name order.
	Rendered []RenderedSQL `json:"rendered,omitempty"`

	// Columns describes the result columns with their resolved tags.
	Columns []sqlbuild.ResultColumn `json:"columns,omitempty"`

	// Groups reports the rule chosen for every group of the projection.
	Groups []nullability.GroupReport `json:"groups,omitempty"`

	// Rows and RowsAffected are set when the statement was executed.
	Executed     bool          `json:"executed,omitempty"`
	Rows         []ir.IRObject `json:"rows,omitempty"`
	RowsAffected int64         `json:"rows_affected,omitempty"`

	// BuildError is the statement construction error, if any.
	BuildError string `json:"build_error,omitempty"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// RenderedFor returns the rendering for dialect.
func (r *Result) RenderedFor(dialect string) (RenderedSQL, bool) {
	for _, rs := range r.Rendered {
		if rs.Dialect == dialect {
			return rs, true
		}
	}
	return RenderedSQL{}, false
}
