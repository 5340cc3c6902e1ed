package sqlbuild

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tsq/internal/expr"
	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/testutil"
)

func TestBuilder_ColumnReferences(t *testing.T) {
	f := testutil.NewFixtures(t)
	b := NewBuilder(SQLite{}, f.Registry)

	assert.Equal(t, `"customer"."first_name"`, b.RenderColumnReference(f.Customer.MustColumn("firstName")))
	assert.Equal(t, `"parent"."name"`, b.RenderColumnReference(f.Parent.MustColumn("name")))

	// A custom boolean is compared with its true value in conditions only.
	vip := f.Customer.MustColumn("isVip")
	assert.Equal(t, `"customer"."is_vip"`, b.RenderColumnReference(vip))
	assert.Equal(t, `"customer"."is_vip" = 'Y'`, b.RenderColumnReferenceInCondition(vip))
	assert.Equal(t, `"customer"."first_name"`, b.RenderColumnReferenceInCondition(f.Customer.MustColumn("firstName")))
}

func TestBuilder_RenderExpression(t *testing.T) {
	f := testutil.NewFixtures(t)
	first := f.Customer.MustColumn("firstName")
	last := f.Customer.MustColumn("lastName")
	id := f.Customer.MustColumn("id")
	birthday := f.Customer.MustColumn("birthday")

	tests := []struct {
		name   string
		node   expr.Node
		sql    map[string]string
		params []any
	}{
		{
			name: "equality binds the value",
			node: expr.Eq(first, expr.Val("John")),
			sql: map[string]string{
				"sqlite":   `"customer"."first_name" = ?`,
				"postgres": `"customer"."first_name" = $1`,
				"mysql":    "`customer`.`first_name` = ?",
			},
			params: []any{"John"},
		},
		{
			name: "null-safe equality",
			node: expr.Is(first, last),
			sql: map[string]string{
				"sqlite":   `"customer"."first_name" IS "customer"."last_name"`,
				"postgres": `"customer"."first_name" IS NOT DISTINCT FROM "customer"."last_name"`,
				"mysql":    "`customer`.`first_name` <=> `customer`.`last_name`",
			},
		},
		{
			name: "null-safe inequality",
			node: expr.IsNot(first, last),
			sql: map[string]string{
				"sqlite":   `"customer"."first_name" IS NOT "customer"."last_name"`,
				"postgres": `"customer"."first_name" IS DISTINCT FROM "customer"."last_name"`,
				"mysql":    "NOT (`customer`.`first_name` <=> `customer`.`last_name`)",
			},
		},
		{
			name: "or nested in and is parenthesized",
			node: expr.And(expr.Or(expr.Eq(first, expr.Val("A")), expr.Eq(last, expr.Val("B"))), expr.IsNull(birthday)),
			sql: map[string]string{
				"sqlite":   `("customer"."first_name" = ? OR "customer"."last_name" = ?) AND "customer"."birthday" IS NULL`,
				"postgres": `("customer"."first_name" = $1 OR "customer"."last_name" = $2) AND "customer"."birthday" IS NULL`,
				"mysql":    "(`customer`.`first_name` = ? OR `customer`.`last_name` = ?) AND `customer`.`birthday` IS NULL",
			},
			params: []any{"A", "B"},
		},
		{
			name: "chained and is flat",
			node: expr.And(expr.Eq(id, expr.Val(1)), expr.Eq(id, expr.Val(2)), expr.Eq(id, expr.Val(3))),
			sql: map[string]string{
				"sqlite":   `"customer"."id" = ? AND "customer"."id" = ? AND "customer"."id" = ?`,
				"postgres": `"customer"."id" = $1 AND "customer"."id" = $2 AND "customer"."id" = $3`,
				"mysql":    "`customer`.`id` = ? AND `customer`.`id` = ? AND `customer`.`id` = ?",
			},
			params: []any{int64(1), int64(2), int64(3)},
		},
		{
			name: "arithmetic precedence",
			node: expr.Mul(expr.Add(id, expr.Val(1)), expr.Val(2)),
			sql: map[string]string{
				"sqlite":   `("customer"."id" + ?) * ?`,
				"postgres": `("customer"."id" + $1) * $2`,
				"mysql":    "(`customer`.`id` + ?) * ?",
			},
			params: []any{int64(1), int64(2)},
		},
		{
			name: "starts with",
			node: expr.StartsWith(first, expr.Val("Jo")),
			sql: map[string]string{
				"sqlite":   `"customer"."first_name" LIKE ? || '%'`,
				"postgres": `"customer"."first_name" LIKE $1 || '%'`,
				"mysql":    "`customer`.`first_name` LIKE concat(?, '%')",
			},
			params: []any{"Jo"},
		},
		{
			name: "contains insensitive",
			node: expr.ContainsInsensitive(first, expr.Val("oh")),
			sql: map[string]string{
				"sqlite":   `lower("customer"."first_name") LIKE lower('%' || ? || '%')`,
				"postgres": `"customer"."first_name" ILIKE '%' || $1 || '%'`,
				"mysql":    "lower(`customer`.`first_name`) LIKE lower(concat('%', ?, '%'))",
			},
			params: []any{"oh"},
		},
		{
			name: "length",
			node: expr.Gt(expr.Length(first), expr.Val(3)),
			sql: map[string]string{
				"sqlite":   `length("customer"."first_name") > ?`,
				"postgres": `length("customer"."first_name") > $1`,
				"mysql":    "char_length(`customer`.`first_name`) > ?",
			},
			params: []any{int64(3)},
		},
		{
			name: "not of custom boolean",
			node: expr.Not(f.Customer.MustColumn("isVip")),
			sql: map[string]string{
				"sqlite":   `NOT ("customer"."is_vip" = 'Y')`,
				"postgres": `NOT ("customer"."is_vip" = 'Y')`,
				"mysql":    "NOT (`customer`.`is_vip` = 'Y')",
			},
		},
		{
			name: "custom boolean compared with a literal uses its adapter",
			node: expr.Eq(f.Customer.MustColumn("isVip"), expr.Val(true)),
			sql: map[string]string{
				"sqlite":   `"customer"."is_vip" = ?`,
				"postgres": `"customer"."is_vip" = $1`,
				"mysql":    "`customer`.`is_vip` = ?",
			},
			params: []any{"Y"},
		},
		{
			name: "count",
			node: expr.CountDistinct(last),
			sql: map[string]string{
				"sqlite":   `count(DISTINCT "customer"."last_name")`,
				"postgres": `count(DISTINCT "customer"."last_name")`,
				"mysql":    "count(DISTINCT `customer`.`last_name`)",
			},
		},
	}

	for _, tt := range tests {
		for _, name := range DialectNames() {
			t.Run(tt.name+"/"+name, func(t *testing.T) {
				d, err := LookupDialect(name)
				require.NoError(t, err)

				sql, params, err := NewBuilder(d, f.Registry).RenderExpression(tt.node)
				require.NoError(t, err)
				assert.Equal(t, tt.sql[name], sql)
				if tt.params == nil {
					assert.Empty(t, params)
				} else {
					assert.Equal(t, tt.params, params)
				}
			})
		}
	}
}

func TestBuilder_PlaceholdersAreStatementWide(t *testing.T) {
	f := testutil.NewFixtures(t)
	first := f.Customer.MustColumn("firstName")
	b := NewBuilder(Postgres{}, f.Registry)

	sql, params, err := b.RenderExpression(expr.Eq(first, expr.Val("A")))
	require.NoError(t, err)
	assert.Equal(t, `"customer"."first_name" = $1`, sql)
	assert.Equal(t, []any{"A"}, params)

	sql, params, err = b.RenderExpression(expr.Eq(first, expr.Val("B")))
	require.NoError(t, err)
	assert.Equal(t, `"customer"."first_name" = $2`, sql)
	assert.Equal(t, []any{"B"}, params)
}

func TestBuilder_RenderDoesNotModifyNodes(t *testing.T) {
	f := testutil.NewFixtures(t)
	first := f.Customer.MustColumn("firstName")
	node := expr.Eq(first, expr.Val("A"))
	before := *node

	_, _, err := NewBuilder(SQLite{}, f.Registry).RenderExpression(node)
	require.NoError(t, err)
	assert.Equal(t, before, *node)
}

func TestBuilder_UnsupportedSequence(t *testing.T) {
	f := testutil.NewFixtures(t)
	_, _, err := NewBuilder(MySQL{}, f.Registry).RenderExpression(expr.NextValue("seq", ir.TypeInt))
	var unsupported *UnsupportedError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "mysql", unsupported.Dialect)
}
