package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/tsq/internal/compiler"
	"github.com/roach88/tsq/internal/nullability"
	"github.com/roach88/tsq/internal/projection"
	"github.com/roach88/tsq/internal/query"
	"github.com/roach88/tsq/internal/runner"
	"github.com/roach88/tsq/internal/schema"
	"github.com/roach88/tsq/internal/sqlbuild"
)

// Harness is the test execution engine.
// Each scenario gets its own registry and, when executed, its own
// in-memory SQLite database.
type Harness struct {
	logger *slog.Logger
	ids    runner.IDGenerator
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the harness logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithIDGenerator sets the statement id generator passed to the runner.
func WithIDGenerator(g runner.IDGenerator) Option {
	return func(h *Harness) { h.ids = g }
}

// New creates a harness. Logs are discarded unless WithLogger is given.
func New(opts ...Option) *Harness {
	h := &Harness{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a test scenario with a default harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(context.Background(), scenario)
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
//  1. Compile the scenario's CUE schemas into a fresh registry
//  2. Build the statement (a construction error may be the expectation)
//  3. Render it for every dialect
//  4. Explain the nullability rule of every projected group
//  5. Execute it on in-memory SQLite when setup or rows are given
//  6. Evaluate expectations
//
// The returned error reports a broken scenario (unreadable schema, failed
// setup); unmet expectations are reported in Result.Errors.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	reg, err := LoadRegistry(scenario.Schemas, h.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}

	result := NewResult()

	stmt, err := newBuilder(reg).Statement(&scenario.Query)
	if err != nil {
		result.BuildError = err.Error()
		h.logger.Debug("statement construction failed", "scenario", scenario.Name, "error", err)
		for _, msg := range checkBuildError(err, scenario.Expect.Error) {
			result.AddError(msg)
		}
		return result, nil
	}
	if scenario.Expect.Error != "" {
		result.AddError(fmt.Sprintf("expected construction error %s, statement was built", scenario.Expect.Error))
	}

	h.render(reg, stmt, scenario.Name, scenario.Dialects, result)
	result.Groups = nullability.Explain(projectionOf(stmt), reg)

	if scenario.Setup != "" || scenario.Expect.Rows != nil || scenario.Expect.RowsAffected != nil {
		if err := h.execute(ctx, reg, stmt, scenario, result); err != nil {
			return nil, err
		}
	}

	for _, msg := range EvaluateExpectations(result, &scenario.Expect) {
		result.AddError(msg)
	}

	h.logger.Info("scenario completed",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"errors", len(result.Errors),
	)
	return result, nil
}

// Compile builds q against reg and renders it for dialects (all when empty)
// without executing it. A construction error is returned as is.
func (h *Harness) Compile(reg *schema.Registry, name string, q *QuerySpec, dialects []string) (*Result, error) {
	stmt, err := newBuilder(reg).Statement(q)
	if err != nil {
		return nil, err
	}
	result := NewResult()
	h.render(reg, stmt, name, dialects, result)
	result.Groups = nullability.Explain(projectionOf(stmt), reg)
	return result, nil
}

// Statement builds q against reg.
func Statement(reg *schema.Registry, q *QuerySpec) (query.Statement, error) {
	return newBuilder(reg).Statement(q)
}

func (h *Harness) render(reg *schema.Registry, stmt query.Statement, name string, dialects []string, result *Result) {
	if len(dialects) == 0 {
		dialects = sqlbuild.DialectNames()
	}
	dialects = slices.Clone(dialects)
	slices.Sort(dialects)

	for _, name := range dialects {
		d, err := sqlbuild.LookupDialect(name)
		if err != nil {
			result.AddError(err.Error())
			continue
		}
		rs := RenderedSQL{Dialect: d.Name()}
		out, err := sqlbuild.NewCompiler(d, reg).Compile(stmt)
		if err != nil {
			rs.Error = err.Error()
		} else {
			rs.SQL, rs.Params = out.SQL, out.Params
			if result.Columns == nil {
				result.Columns = out.Columns
			}
		}
		result.Rendered = append(result.Rendered, rs)
		h.logger.Debug("rendered statement", "scenario", name, "dialect", rs.Dialect, "sql", rs.SQL, "error", rs.Error)
	}
}

func (h *Harness) execute(ctx context.Context, reg *schema.Registry, stmt query.Statement, scenario *Scenario, result *Result) error {
	opts := []runner.Option{runner.WithLogger(h.logger)}
	if h.ids != nil {
		opts = append(opts, runner.WithIDGenerator(h.ids))
	}
	r, err := runner.Open(ctx, runner.Config{Driver: "sqlite", DSN: ":memory:"}, reg, opts...)
	if err != nil {
		return fmt.Errorf("failed to create in-memory database: %w", err)
	}
	defer r.Close()

	if scenario.Setup != "" {
		if err := r.ExecScript(ctx, scenario.Setup); err != nil {
			return fmt.Errorf("failed to execute setup: %w", err)
		}
	}

	res, err := r.Run(ctx, stmt)
	if err != nil {
		result.AddError(fmt.Sprintf("execution failed: %v", err))
		return nil
	}
	result.Executed = true
	result.Rows = res.Rows
	result.RowsAffected = res.RowsAffected
	return nil
}

// projectionOf returns the projection or RETURNING clause of stmt.
func projectionOf(stmt query.Statement) projection.Group {
	switch s := stmt.(type) {
	case *query.Select:
		return s.Projection
	case *query.Insert:
		return s.Returning
	case *query.Update:
		return s.Returning
	case *query.Delete:
		return s.Returning
	}
	return projection.Group{}
}

// LoadRegistry compiles CUE schema files into a frozen registry. The files
// are unified, so a relation may only be declared once across them.
func LoadRegistry(paths []string, logger *slog.Logger) (*schema.Registry, error) {
	value, err := compiler.LoadFiles(cuecontext.New(), paths)
	if err != nil {
		return nil, err
	}

	specs, errs := compiler.CompileSchema(value)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	if verrs := compiler.Validate(specs); len(verrs) > 0 {
		return nil, verrs[0]
	}

	reg := schema.NewRegistry(schema.WithLogger(logger))
	if err := reg.DeclareAll(specs); err != nil {
		return nil, err
	}
	reg.Freeze()
	return reg, nil
}
