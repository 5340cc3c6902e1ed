package runner

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/query"
	"github.com/roach88/tsq/internal/schema"
	"github.com/roach88/tsq/internal/sqlbuild"
)

// Config selects a database.
type Config struct {
	// Driver is "sqlite", "postgres" or "mysql" (aliases accepted by
	// sqlbuild.LookupDialect also work).
	Driver string
	DSN    string
}

// IDGenerator produces statement ids used to correlate log lines.
type IDGenerator interface {
	Generate() string
}

// uuidGenerator produces UUIDv7 ids, which sort by creation time.
type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Runner executes statements built over one registry.
//
// Thread-safety: a Runner is safe for concurrent use; each call compiles
// its own statement and database/sql pools connections.
type Runner struct {
	db       *sql.DB
	compiler *sqlbuild.Compiler
	ids      IDGenerator
	logger   *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithIDGenerator replaces the UUIDv7 statement ids, e.g. for tests.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Runner) { r.ids = g }
}

// Result is the outcome of one statement.
type Result struct {
	StatementID string
	// Rows holds one object per returned row, shaped like the statement's
	// projection or RETURNING clause.
	Rows []ir.IRObject
	// RowsAffected is set for statements that return no rows.
	RowsAffected int64
}

// Open connects to the configured database.
//
// SQLite databases are configured with:
//   - a single open connection (one writer; keeps ":memory:" databases alive)
//   - WAL mode for concurrent reads during writes
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(ctx context.Context, cfg Config, reg *schema.Registry, opts ...Option) (*Runner, error) {
	d, err := sqlbuild.LookupDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}

	driver, dsn := d.Name(), cfg.DSN
	switch d.Name() {
	case "sqlite":
		driver = "sqlite3"
	case "mysql":
		mc, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w", err)
		}
		dsn = mc.FormatDSN()
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if d.Name() == "sqlite" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}

	return New(db, d, reg, opts...), nil
}

// New wraps an open database.
func New(db *sql.DB, d sqlbuild.Dialect, reg *schema.Registry, opts ...Option) *Runner {
	r := &Runner{
		db:       db,
		compiler: sqlbuild.NewCompiler(d, reg),
		ids:      uuidGenerator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// DB returns the underlying sql.DB.
func (r *Runner) DB() *sql.DB {
	return r.db
}

// Dialect returns the dialect statements are compiled for.
func (r *Runner) Dialect() sqlbuild.Dialect {
	return r.compiler.Dialect()
}

// ExecScript runs raw SQL, typically DDL. Statements are not parameterized.
func (r *Runner) ExecScript(ctx context.Context, script string) error {
	if _, err := r.db.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("exec script: %w", err)
	}
	return nil
}

// Run compiles stmt and executes it.
//
// Statements with a projection or RETURNING clause yield Rows; the others
// yield RowsAffected. An insert returning the last inserted id yields a
// single row holding the key, read from RETURNING or from the driver.
func (r *Runner) Run(ctx context.Context, stmt query.Statement) (*Result, error) {
	id := r.ids.Generate()

	rendered, err := r.compiler.Compile(stmt)
	if err != nil {
		return nil, fmt.Errorf("statement %s: %w", id, err)
	}
	for _, w := range query.Validate(stmt).Warnings {
		r.logger.Debug("non-portable statement", "statement_id", id, "warning", w)
	}
	r.logger.Debug("executing statement",
		"statement_id", id,
		"dialect", r.compiler.Dialect().Name(),
		"sql", rendered.SQL,
		"params", len(rendered.Params))

	res := &Result{StatementID: id}
	switch {
	case rendered.LastInsertID:
		err = r.execLastInsertID(ctx, rendered, res)
	case len(rendered.Columns) == 0:
		err = r.exec(ctx, rendered, res)
	default:
		err = r.query(ctx, rendered, res)
	}
	if err != nil {
		r.logger.Error("statement failed", "statement_id", id, "error", err)
		return nil, fmt.Errorf("statement %s: %w", id, err)
	}
	return res, nil
}

func (r *Runner) exec(ctx context.Context, rendered *sqlbuild.Rendered, res *Result) error {
	out, err := r.db.ExecContext(ctx, rendered.SQL, rendered.Params...)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	n, err := out.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	res.RowsAffected = n
	return nil
}

func (r *Runner) execLastInsertID(ctx context.Context, rendered *sqlbuild.Rendered, res *Result) error {
	out, err := r.db.ExecContext(ctx, rendered.SQL, rendered.Params...)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	id, err := out.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	res.RowsAffected = 1
	res.Rows = []ir.IRObject{{rendered.Columns[0].Name(): ir.IRInt(id)}}
	return nil
}

func (r *Runner) query(ctx context.Context, rendered *sqlbuild.Rendered, res *Result) error {
	rows, err := r.db.QueryContext(ctx, rendered.SQL, rendered.Params...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	m := newMaterializer(rendered)
	for rows.Next() {
		raw := make([]any, len(rendered.Columns))
		ptrs := make([]any, len(raw))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan row %d: %w", len(res.Rows)+1, err)
		}
		obj, err := m.row(len(res.Rows)+1, raw)
		if err != nil {
			return err
		}
		res.Rows = append(res.Rows, obj)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rows: %w", err)
	}

	// Return empty slice instead of nil
	if res.Rows == nil {
		res.Rows = []ir.IRObject{}
	}
	res.RowsAffected = int64(len(res.Rows))
	return nil
}
