// Package runner executes compiled statements against a database/sql
// connection and rebuilds nested result objects.
//
// The runner is the only part of tsq that performs I/O. It compiles a
// statement for its dialect, binds the parameters, and materializes every
// row following the statement's resolved shape:
//
//   - A nested object whose values are all NULL is absent from the row.
//   - A required value that is NULL inside a present object is a
//     MaterializeError.
//   - Aggregated arrays arrive as JSON text and are decoded element by
//     element through the adapters of their fields.
//
// Supported drivers are sqlite (mattn/go-sqlite3), postgres (lib/pq) and
// mysql (go-sql-driver/mysql). SQLite connections are limited to a single
// writer and run in WAL mode.
package runner
