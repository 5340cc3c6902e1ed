package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tsq/internal/query"
	"github.com/roach88/tsq/internal/sqlbuild"
	"github.com/roach88/tsq/internal/testutil"
)

func querySpec(t *testing.T, src string) *QuerySpec {
	t.Helper()
	var q QuerySpec
	require.NoError(t, yaml.Unmarshal([]byte(src), &q))
	return &q
}

func buildAndCompile(t *testing.T, d sqlbuild.Dialect, src string) *sqlbuild.Rendered {
	t.Helper()
	f := testutil.NewFixtures(t)
	stmt, err := newBuilder(f.Registry).Statement(querySpec(t, src))
	require.NoError(t, err)
	out, err := sqlbuild.NewCompiler(d, f.Registry).Compile(stmt)
	require.NoError(t, err)
	return out
}

func TestBuildSelect(t *testing.T) {
	out := buildAndCompile(t, sqlbuild.SQLite{}, `
from: customer
joins:
  - relation: company
    on: {eq: [company.id, customer.companyId]}
where: {eq: [customer.firstName, {val: John}]}
select:
  id: customer.id
  company:
    name: company.name
order_by:
  - property: company.name
limit: 10
`)

	assert.Equal(t, `SELECT "customer"."id" AS "id", "company"."name" AS "company.name" FROM "customer" JOIN "company" ON "company"."id" = "customer"."company_id" WHERE "customer"."first_name" = ? ORDER BY "company.name" LIMIT 10`, out.SQL)
	assert.Equal(t, []any{"John"}, out.Params)
}

func TestBuildWhereOperands(t *testing.T) {
	const prefix = `SELECT "customer"."id" AS "id" FROM "customer" WHERE `

	tests := []struct {
		name   string
		where  string
		sql    string
		params []any
	}{
		{
			name:   "string literal",
			where:  `{eq: [customer.firstName, {val: Ann}]}`,
			sql:    `"customer"."first_name" = ?`,
			params: []any{"Ann"},
		},
		{
			name:   "and with null check",
			where:  `{and: [{gt: [customer.id, 10]}, {isNotNull: customer.birthday}]}`,
			sql:    `"customer"."id" > ? AND "customer"."birthday" IS NOT NULL`,
			params: []any{int64(10)},
		},
		{
			name:   "or with double",
			where:  `{or: [{lt: [customer.id, 2]}, {ge: [customer.id, 8.5]}]}`,
			sql:    `"customer"."id" < ? OR "customer"."id" >= ?`,
			params: []any{int64(2), 8.5},
		},
		{
			name:  "not",
			where: `{not: {isNull: customer.birthday}}`,
			sql:   `NOT ("customer"."birthday" IS NULL)`,
		},
		{
			name:   "function",
			where:  `{eq: [{length: customer.lastName}, 3]}`,
			sql:    `length("customer"."last_name") = ?`,
			params: []any{int64(3)},
		},
		{
			name:  "custom boolean column",
			where: `customer.isVip`,
			sql:   `"customer"."is_vip" = 'Y'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := buildAndCompile(t, sqlbuild.SQLite{}, "from: customer\nselect: {id: customer.id}\nwhere: "+tt.where+"\n")
			assert.Equal(t, prefix+tt.sql, out.SQL)
			if tt.params == nil {
				assert.Empty(t, out.Params)
			} else {
				assert.Equal(t, tt.params, out.Params)
			}
		})
	}
}

func TestBuildOperandErrors(t *testing.T) {
	tests := []struct {
		name    string
		where   string
		wantErr string
	}{
		{"missing operand", `{eq: [customer.id]}`, "eq expects 2 operands, got 1"},
		{"not a list", `{eq: customer.id}`, "eq expects a list of operands"},
		{"bare relation", `customer`, "must be relation.property"},
		{"unknown relation", `order.id`, `unknown relation "order"`},
		{"unknown property", `customer.nope`, `has no property "nope"`},
		{"unknown operator", `{bogus: 1}`, "expected a column, literal or single-operator mapping"},
		{"null", `{eq: [customer.id, ~]}`, "null is not an operand"},
		{"no old values", `{eq: [{old: company.name}, {val: x}]}`, "has no old values"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testutil.NewFixtures(t)
			q := querySpec(t, "from: customer\nselect: {id: customer.id}\nwhere: "+tt.where+"\n")
			_, err := newBuilder(f.Registry).Statement(q)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuildProjectionNesting(t *testing.T) {
	out := buildAndCompile(t, sqlbuild.SQLite{}, `
from: customer
joins:
  - relation: company
    on: {eq: [company.id, customer.companyId]}
select:
  customers: {count: customer.id}
  company:
    name: company.name
group_by:
  - company.name
`)

	require.Len(t, out.Columns, 2)
	assert.Equal(t, "customers", out.Columns[0].Name())
	assert.Equal(t, "company.name", out.Columns[1].Name())
	assert.Contains(t, out.SQL, `count("customer"."id") AS "customers"`)
	assert.Contains(t, out.SQL, `GROUP BY "company"."name"`)
}

func TestBuildConstructionError(t *testing.T) {
	f := testutil.NewFixtures(t)
	q := querySpec(t, `
from: customer
select:
  id: customer.id
  companyName: company.name
`)
	_, err := newBuilder(f.Registry).Statement(q)
	require.Error(t, err)
	assert.Equal(t, query.ErrCodeMalformedProjection, query.Code(err))
}

func TestBuildInsert(t *testing.T) {
	out := buildAndCompile(t, sqlbuild.Postgres{}, `
kind: insert
table: customer
values:
  - {firstName: {val: Ann}, lastName: {val: Lee}, companyId: 7}
  - {firstName: {val: Bob}, lastName: {val: Ray}, companyId: 7}
`)

	assert.Equal(t, `INSERT INTO "customer" ("first_name", "last_name", "company_id") VALUES ($1, $2, $3), ($4, $5, $6)`, out.SQL)
	assert.Equal(t, []any{"Ann", "Lee", int64(7), "Bob", "Ray", int64(7)}, out.Params)
}

func TestBuildInsertCustomBoolean(t *testing.T) {
	out := buildAndCompile(t, sqlbuild.SQLite{}, `
kind: insert
table: customer
values:
  - {firstName: {val: Ann}, lastName: {val: Lee}, companyId: 7, isVip: true}
returning_last_id: true
`)

	assert.Equal(t, `INSERT INTO "customer" ("first_name", "last_name", "company_id", "is_vip") VALUES (?, ?, ?, ?) RETURNING "id" AS "id"`, out.SQL)
	assert.Equal(t, []any{"Ann", "Lee", int64(7), "Y"}, out.Params)
}

func TestBuildUpdate(t *testing.T) {
	out := buildAndCompile(t, sqlbuild.SQLite{}, `
kind: update
table: customer
set:
  firstName: {val: Ann}
where: {eq: [customer.id, 1]}
`)

	assert.Equal(t, `UPDATE "customer" SET "first_name" = ? WHERE "id" = ?`, out.SQL)
	assert.Equal(t, []any{"Ann", int64(1)}, out.Params)
}

func TestBuildUpdateReturningOld(t *testing.T) {
	out := buildAndCompile(t, sqlbuild.Postgres{}, `
kind: update
table: customer
set:
  firstName: {val: Ann}
where: {eq: [customer.id, 1]}
returning:
  before: {old: customer.firstName}
  after: customer.firstName
`)

	assert.Equal(t, `UPDATE "customer" SET "first_name" = $1 FROM "customer" AS "_old_" WHERE "_old_"."id" = "customer"."id" AND "customer"."id" = $2 RETURNING "_old_"."first_name" AS "before", "customer"."first_name" AS "after"`, out.SQL)
}

func TestBuildDelete(t *testing.T) {
	out := buildAndCompile(t, sqlbuild.SQLite{}, `
kind: delete
table: customer
where: {eq: [customer.id, 3]}
returning:
  id: customer.id
`)

	assert.Equal(t, `DELETE FROM "customer" WHERE "id" = ? RETURNING "id" AS "id"`, out.SQL)
	assert.Equal(t, []any{int64(3)}, out.Params)
}

func TestBuildDeleteWithoutWhere(t *testing.T) {
	f := testutil.NewFixtures(t)

	_, err := newBuilder(f.Registry).Statement(querySpec(t, "kind: delete\ntable: customer\n"))
	assert.Equal(t, query.ErrCodeMissingWhere, query.Code(err))

	stmt, err := newBuilder(f.Registry).Statement(querySpec(t, "kind: delete\ntable: customer\nall_rows: true\n"))
	require.NoError(t, err)
	out, err := sqlbuild.NewCompiler(sqlbuild.SQLite{}, f.Registry).Compile(stmt)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "customer"`, out.SQL)
}

func TestBuildExistsSubquery(t *testing.T) {
	out := buildAndCompile(t, sqlbuild.SQLite{}, `
from: company
select:
  name: company.name
where:
  exists:
    from: customer
    where: {eq: [customer.companyId, company.id]}
    select: {id: customer.id}
`)

	assert.Equal(t, `SELECT "company"."name" AS "name" FROM "company" WHERE EXISTS (SELECT "customer"."id" AS "id" FROM "customer" WHERE "customer"."company_id" = "company"."id")`, out.SQL)
}

func TestParseJoinKindAndDirection(t *testing.T) {
	kind, err := parseJoinKind("optional_left")
	require.NoError(t, err)
	assert.Equal(t, query.OptionalLeftJoin, kind)
	_, err = parseJoinKind("outer")
	assert.Error(t, err)

	d, err := parseDirection("desc_nulls_last")
	require.NoError(t, err)
	assert.Equal(t, query.DescNullsLast, d)
	_, err = parseDirection("down")
	assert.Error(t, err)
}
