package sqlbuild

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupDialect(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"sqlite", "sqlite"},
		{"sqlite3", "sqlite"},
		{"postgres", "postgres"},
		{"postgresql", "postgres"},
		{"pgx", "postgres"},
		{"mysql", "mysql"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := LookupDialect(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}

	_, err := LookupDialect("oracle")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql, postgres, sqlite")
}

func TestDialect_Quoting(t *testing.T) {
	assert.Equal(t, `"first name"`, SQLite{}.QuoteIdentifier("first name"))
	assert.Equal(t, `"a""b"`, Postgres{}.QuoteIdentifier(`a"b`))
	assert.Equal(t, "`a``b`", MySQL{}.QuoteIdentifier("a`b"))

	assert.Equal(t, `'it''s'`, SQLite{}.QuoteLiteral("it's"))
	assert.Equal(t, `'it''s'`, Postgres{}.QuoteLiteral("it's"))
	assert.Equal(t, `'a\\b'`, MySQL{}.QuoteLiteral(`a\b`))
}

func TestDialect_Placeholders(t *testing.T) {
	assert.Equal(t, "?", SQLite{}.Placeholder(3))
	assert.Equal(t, "$3", Postgres{}.Placeholder(3))
	assert.Equal(t, "?", MySQL{}.Placeholder(3))
}

func TestDialect_LimitOffset(t *testing.T) {
	tests := []struct {
		name          string
		limit, offset int64
		sqlite        string
		postgres      string
		mysql         string
	}{
		{"none", 0, 0, "", "", ""},
		{"limit", 10, 0, "LIMIT 10", "LIMIT 10", "LIMIT 10"},
		{"both", 10, 5, "LIMIT 10 OFFSET 5", "LIMIT 10 OFFSET 5", "LIMIT 10 OFFSET 5"},
		{"offset only", 0, 5, "LIMIT -1 OFFSET 5", "OFFSET 5", "LIMIT 18446744073709551615 OFFSET 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.sqlite, SQLite{}.LimitOffset(tt.limit, tt.offset))
			assert.Equal(t, tt.postgres, Postgres{}.LimitOffset(tt.limit, tt.offset))
			assert.Equal(t, tt.mysql, MySQL{}.LimitOffset(tt.limit, tt.offset))
		})
	}
}

func TestDialect_OrderItem(t *testing.T) {
	assert.Equal(t, "x DESC NULLS LAST", Postgres{}.OrderItem("x", true, "last"))
	assert.Equal(t, "x NULLS FIRST", SQLite{}.OrderItem("x", false, "first"))
	assert.Equal(t, "x IS NULL DESC, x", MySQL{}.OrderItem("x", false, "first"))
	assert.Equal(t, "x IS NULL, x DESC", MySQL{}.OrderItem("x", true, "last"))
	assert.Equal(t, "x DESC", MySQL{}.OrderItem("x", true, ""))
}

func TestDialect_Sequence(t *testing.T) {
	next, err := Postgres{}.Sequence("invoice_seq", true)
	require.NoError(t, err)
	assert.Equal(t, "nextval('invoice_seq')", next)

	curr, err := Postgres{}.Sequence("invoice_seq", false)
	require.NoError(t, err)
	assert.Equal(t, "currval('invoice_seq')", curr)

	for _, d := range []Dialect{SQLite{}, MySQL{}} {
		_, err := d.Sequence("invoice_seq", true)
		var unsupported *UnsupportedError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, "sequences", unsupported.Feature)
	}
}

func TestDialect_ArrayAgg(t *testing.T) {
	assert.Equal(t, "json_group_array(x)", SQLite{}.ArrayAgg("x", false))
	assert.Equal(t, "nullif(json_group_array(x), '[]')", SQLite{}.ArrayAgg("x", true))
	assert.Equal(t, "coalesce(json_agg(x), '[]')", Postgres{}.ArrayAgg("x", false))
	assert.Equal(t, "json_agg(x)", Postgres{}.ArrayAgg("x", true))
	assert.Equal(t, "coalesce(json_arrayagg(x), json_array())", MySQL{}.ArrayAgg("x", false))
	assert.Equal(t, "json_arrayagg(x)", MySQL{}.ArrayAgg("x", true))
}
