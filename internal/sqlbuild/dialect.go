package sqlbuild

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

// Dialect holds the syntax differences between target databases.
// Implementations are stateless and safe for concurrent use.
type Dialect interface {
	Name() string
	QuoteIdentifier(name string) string
	QuoteLiteral(s string) string
	// Placeholder returns the marker of the n-th (1-based) parameter.
	Placeholder(n int) string
	Concat(parts ...string) string
	// NullSafeEquals renders "left is right" (or its negation) with null
	// treated as a comparable value.
	NullSafeEquals(left, right string, negate bool) string
	// InsensitiveLike renders a case-insensitive pattern match.
	InsensitiveLike(value, pattern string, negate bool) string
	Length(arg string) string
	// Sequence renders nextval/currval of a named sequence.
	Sequence(name string, next bool) (string, error)
	// ArrayAgg aggregates rendered values into a JSON array. orNull selects
	// null instead of an empty array when nothing is aggregated.
	ArrayAgg(value string, orNull bool) string
	// JSONObject renders a JSON object from alternating key literals and
	// values.
	JSONObject(pairs ...string) string
	// OrderItem renders one ORDER BY item; nulls is "" for the dialect
	// default, "first" or "last".
	OrderItem(expr string, desc bool, nulls string) string
	LimitOffset(limit, offset int64) string
	SupportsReturning() bool
	SupportsOldValues() bool
}

// UnsupportedError reports a feature the dialect cannot render.
type UnsupportedError struct {
	Dialect string
	Feature string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s is not supported by the %s dialect", e.Feature, e.Dialect)
}

var dialects = map[string]Dialect{
	"sqlite":   SQLite{},
	"postgres": Postgres{},
	"mysql":    MySQL{},
}

// LookupDialect returns the dialect registered under name. "sqlite3" and
// "postgresql" are accepted as aliases.
func LookupDialect(name string) (Dialect, error) {
	switch name {
	case "sqlite3":
		name = "sqlite"
	case "postgresql", "pgx":
		name = "postgres"
	}
	d, ok := dialects[name]
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q (known: %s)", name, strings.Join(DialectNames(), ", "))
	}
	return d, nil
}

// DialectNames lists the registered dialects in sorted order.
func DialectNames() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ansiIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func ansiLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func orderItem(expr string, desc bool, nulls string) string {
	out := expr
	if desc {
		out += " DESC"
	}
	switch nulls {
	case "first":
		out += " NULLS FIRST"
	case "last":
		out += " NULLS LAST"
	}
	return out
}

// SQLite renders for SQLite 3.35 or newer.
type SQLite struct{}

func (SQLite) Name() string                       { return "sqlite" }
func (SQLite) QuoteIdentifier(name string) string { return ansiIdentifier(name) }
func (SQLite) QuoteLiteral(s string) string       { return ansiLiteral(s) }
func (SQLite) Placeholder(int) string             { return "?" }
func (SQLite) Concat(parts ...string) string      { return strings.Join(parts, " || ") }
func (SQLite) Length(arg string) string           { return "length(" + arg + ")" }
func (SQLite) SupportsReturning() bool            { return true }
func (SQLite) SupportsOldValues() bool            { return false }

func (SQLite) NullSafeEquals(left, right string, negate bool) string {
	if negate {
		return left + " IS NOT " + right
	}
	return left + " IS " + right
}

func (SQLite) InsensitiveLike(value, pattern string, negate bool) string {
	op := " LIKE "
	if negate {
		op = " NOT LIKE "
	}
	return "lower(" + value + ")" + op + "lower(" + pattern + ")"
}

func (d SQLite) Sequence(string, bool) (string, error) {
	return "", &UnsupportedError{Dialect: d.Name(), Feature: "sequences"}
}

func (SQLite) ArrayAgg(value string, orNull bool) string {
	if orNull {
		return "nullif(json_group_array(" + value + "), '[]')"
	}
	return "json_group_array(" + value + ")"
}

func (SQLite) JSONObject(pairs ...string) string {
	return "json_object(" + strings.Join(pairs, ", ") + ")"
}

func (SQLite) OrderItem(expr string, desc bool, nulls string) string {
	return orderItem(expr, desc, nulls)
}

func (SQLite) LimitOffset(limit, offset int64) string {
	switch {
	case limit > 0 && offset > 0:
		return "LIMIT " + strconv.FormatInt(limit, 10) + " OFFSET " + strconv.FormatInt(offset, 10)
	case limit > 0:
		return "LIMIT " + strconv.FormatInt(limit, 10)
	case offset > 0:
		return "LIMIT -1 OFFSET " + strconv.FormatInt(offset, 10)
	}
	return ""
}

// Postgres renders for PostgreSQL.
type Postgres struct{}

func (Postgres) Name() string                       { return "postgres" }
func (Postgres) QuoteIdentifier(name string) string { return ansiIdentifier(name) }
func (Postgres) QuoteLiteral(s string) string       { return pq.QuoteLiteral(s) }
func (Postgres) Placeholder(n int) string           { return "$" + strconv.Itoa(n) }
func (Postgres) Concat(parts ...string) string      { return strings.Join(parts, " || ") }
func (Postgres) Length(arg string) string           { return "length(" + arg + ")" }
func (Postgres) SupportsReturning() bool            { return true }
func (Postgres) SupportsOldValues() bool            { return true }

func (Postgres) NullSafeEquals(left, right string, negate bool) string {
	if negate {
		return left + " IS DISTINCT FROM " + right
	}
	return left + " IS NOT DISTINCT FROM " + right
}

func (Postgres) InsensitiveLike(value, pattern string, negate bool) string {
	if negate {
		return value + " NOT ILIKE " + pattern
	}
	return value + " ILIKE " + pattern
}

func (Postgres) Sequence(name string, next bool) (string, error) {
	fn := "currval"
	if next {
		fn = "nextval"
	}
	return fn + "(" + pq.QuoteLiteral(name) + ")", nil
}

func (Postgres) ArrayAgg(value string, orNull bool) string {
	if orNull {
		return "json_agg(" + value + ")"
	}
	return "coalesce(json_agg(" + value + "), '[]')"
}

func (Postgres) JSONObject(pairs ...string) string {
	return "json_build_object(" + strings.Join(pairs, ", ") + ")"
}

func (Postgres) OrderItem(expr string, desc bool, nulls string) string {
	return orderItem(expr, desc, nulls)
}

func (Postgres) LimitOffset(limit, offset int64) string {
	var parts []string
	if limit > 0 {
		parts = append(parts, "LIMIT "+strconv.FormatInt(limit, 10))
	}
	if offset > 0 {
		parts = append(parts, "OFFSET "+strconv.FormatInt(offset, 10))
	}
	return strings.Join(parts, " ")
}

// MySQL renders for MySQL 8.
type MySQL struct{}

func (MySQL) Name() string                  { return "mysql" }
func (MySQL) Placeholder(int) string        { return "?" }
func (MySQL) Concat(parts ...string) string { return "concat(" + strings.Join(parts, ", ") + ")" }
func (MySQL) Length(arg string) string      { return "char_length(" + arg + ")" }
func (MySQL) SupportsReturning() bool       { return false }
func (MySQL) SupportsOldValues() bool       { return false }

func (MySQL) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (MySQL) QuoteLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (MySQL) NullSafeEquals(left, right string, negate bool) string {
	if negate {
		return "NOT (" + left + " <=> " + right + ")"
	}
	return left + " <=> " + right
}

func (MySQL) InsensitiveLike(value, pattern string, negate bool) string {
	op := " LIKE "
	if negate {
		op = " NOT LIKE "
	}
	return "lower(" + value + ")" + op + "lower(" + pattern + ")"
}

func (d MySQL) Sequence(string, bool) (string, error) {
	return "", &UnsupportedError{Dialect: d.Name(), Feature: "sequences"}
}

func (MySQL) ArrayAgg(value string, orNull bool) string {
	if orNull {
		return "json_arrayagg(" + value + ")"
	}
	return "coalesce(json_arrayagg(" + value + "), json_array())"
}

func (MySQL) JSONObject(pairs ...string) string {
	return "json_object(" + strings.Join(pairs, ", ") + ")"
}

// OrderItem emulates explicit null placement, which MySQL lacks.
func (MySQL) OrderItem(expr string, desc bool, nulls string) string {
	item := orderItem(expr, desc, "")
	switch nulls {
	case "first":
		return expr + " IS NULL DESC, " + item
	case "last":
		return expr + " IS NULL, " + item
	}
	return item
}

func (MySQL) LimitOffset(limit, offset int64) string {
	switch {
	case limit > 0 && offset > 0:
		return "LIMIT " + strconv.FormatInt(limit, 10) + " OFFSET " + strconv.FormatInt(offset, 10)
	case limit > 0:
		return "LIMIT " + strconv.FormatInt(limit, 10)
	case offset > 0:
		return "LIMIT 18446744073709551615 OFFSET " + strconv.FormatInt(offset, 10)
	}
	return ""
}
