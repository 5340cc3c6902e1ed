package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tsq/internal/expr"
	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/projection"
	"github.com/roach88/tsq/internal/query"
	"github.com/roach88/tsq/internal/sqlbuild"
	"github.com/roach88/tsq/internal/testutil"
)

func setupRunner(t *testing.T) (*Runner, *testutil.Fixtures) {
	t.Helper()
	f := testutil.NewFixtures(t)
	ctx := context.Background()

	r, err := Open(ctx, Config{Driver: "sqlite", DSN: ":memory:"}, f.Registry,
		WithLogger(testutil.DiscardLogger()),
		WithIDGenerator(testutil.NewSequentialIDGenerator()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	require.NoError(t, r.ExecScript(ctx, testutil.SQLiteDDL))
	return r, f
}

func run(t *testing.T, r *Runner, stmt query.Statement, err error) *Result {
	t.Helper()
	require.NoError(t, err)
	res, err := r.Run(context.Background(), stmt)
	require.NoError(t, err)
	return res
}

func insertCompany(t *testing.T, r *Runner, f *testutil.Fixtures, name string, parent ir.IRValue) ir.IRInt {
	t.Helper()
	nameCol := f.Company.MustColumn("name")
	b := query.InsertInto(f.Registry, f.Company.ID()).
		ReturningLastInsertedID()
	if parent == nil {
		b.Values(query.Set(nameCol, query.Value(nameCol, ir.IRString(name))))
	} else {
		parentCol := f.Company.MustColumn("parentId")
		b.Values(
			query.Set(nameCol, query.Value(nameCol, ir.IRString(name))),
			query.Set(parentCol, query.Value(parentCol, parent)),
		)
	}
	ins, err := b.Build()
	res := run(t, r, ins, err)
	require.Len(t, res.Rows, 1)
	id, ok := res.Rows[0]["id"].(ir.IRInt)
	require.True(t, ok)
	return id
}

func insertCustomer(t *testing.T, r *Runner, f *testutil.Fixtures, first, last string, company ir.IRInt, extra ...query.Assignment) {
	t.Helper()
	c := f.Customer
	firstCol, lastCol, companyCol := c.MustColumn("firstName"), c.MustColumn("lastName"), c.MustColumn("companyId")
	assignments := append([]query.Assignment{
		query.Set(firstCol, query.Value(firstCol, ir.IRString(first))),
		query.Set(lastCol, query.Value(lastCol, ir.IRString(last))),
		query.Set(companyCol, query.Value(companyCol, company)),
	}, extra...)
	ins, err := query.InsertInto(f.Registry, c.ID()).Values(assignments...).Build()
	res := run(t, r, ins, err)
	assert.Equal(t, int64(1), res.RowsAffected)
}

func TestRun_InsertAndSelectNested(t *testing.T) {
	r, f := setupRunner(t)
	customer, company := f.Customer, f.Company
	birthday, vip := customer.MustColumn("birthday"), customer.MustColumn("isVip")

	acme := insertCompany(t, r, f, "ACME", nil)
	assert.Equal(t, ir.IRInt(1), acme)

	insertCustomer(t, r, f, "Ann", "Lee", acme,
		query.Set(birthday, query.Value(birthday, ir.IRString("1990-05-01"))))
	insertCustomer(t, r, f, "Bob", "Ray", acme,
		query.Set(vip, query.Value(vip, ir.IRBool(true))))

	sel, err := query.SelectFrom(f.Registry, customer.ID()).
		Join(company.ID(), expr.Eq(company.MustColumn("id"), customer.MustColumn("companyId"))).
		Select(
			projection.Value("id", customer.MustColumn("id")),
			projection.Value("firstName", customer.MustColumn("firstName")),
			projection.Value("birthday", birthday),
			projection.Value("isVip", vip),
			projection.Object("company", projection.Value("name", company.MustColumn("name"))),
		).
		OrderBy("id", query.Asc).
		Build()
	res := run(t, r, sel, err)

	assert.Equal(t, []ir.IRObject{
		{
			"id":        ir.IRInt(1),
			"firstName": ir.IRString("Ann"),
			"birthday":  ir.IRString("1990-05-01"),
			"isVip":     ir.IRBool(false),
			"company":   ir.IRObject{"name": ir.IRString("ACME")},
		},
		{
			"id":        ir.IRInt(2),
			"firstName": ir.IRString("Bob"),
			"isVip":     ir.IRBool(true),
			"company":   ir.IRObject{"name": ir.IRString("ACME")},
		},
	}, res.Rows)
	assert.Equal(t, int64(2), res.RowsAffected)
}

func TestRun_LeftJoinAbsentObject(t *testing.T) {
	r, f := setupRunner(t)
	company, parent := f.Company, f.Parent

	root := insertCompany(t, r, f, "Parent Co", nil)
	insertCompany(t, r, f, "Child", root)
	insertCompany(t, r, f, "Orphan", nil)

	sel, err := query.SelectFrom(f.Registry, company.ID()).
		LeftJoin(parent.ID(), expr.Eq(parent.MustColumn("id"), company.MustColumn("parentId"))).
		Select(
			projection.Value("name", company.MustColumn("name")),
			projection.Object("parent",
				projection.Value("id", parent.MustColumn("id")),
				projection.Value("name", parent.MustColumn("name")),
			),
		).
		OrderBy("name", query.Asc).
		Build()
	res := run(t, r, sel, err)

	assert.Equal(t, []ir.IRObject{
		{"name": ir.IRString("Child"), "parent": ir.IRObject{"id": root, "name": ir.IRString("Parent Co")}},
		{"name": ir.IRString("Orphan")},
		{"name": ir.IRString("Parent Co")},
	}, res.Rows)
}

func TestRun_AggregatedArray(t *testing.T) {
	r, f := setupRunner(t)
	customer, company := f.Customer, f.Company
	vip := customer.MustColumn("isVip")

	acme := insertCompany(t, r, f, "ACME", nil)
	insertCustomer(t, r, f, "Ann", "Lee", acme)
	insertCustomer(t, r, f, "Bob", "Ray", acme, query.Set(vip, query.Value(vip, ir.IRBool(true))))

	sel, err := query.SelectFrom(f.Registry, company.ID()).
		Join(customer.ID(), expr.Eq(customer.MustColumn("companyId"), company.MustColumn("id"))).
		GroupBy(company.MustColumn("id"), company.MustColumn("name")).
		Select(
			projection.Value("name", company.MustColumn("name")),
			projection.Value("customers", expr.AggregateAsArray(expr.ValuesOrEmpty,
				expr.ArrayField{Name: "firstName", Value: customer.MustColumn("firstName")},
				expr.ArrayField{Name: "isVip", Value: vip},
			)),
			projection.Value("ids", expr.AggregateValuesAsArray(expr.ValuesOrEmpty, customer.MustColumn("id"))),
		).
		Build()
	res := run(t, r, sel, err)

	require.Len(t, res.Rows, 1)
	row := res.Rows[0]
	assert.Equal(t, ir.IRString("ACME"), row["name"])
	assert.ElementsMatch(t, ir.IRArray{
		ir.IRObject{"firstName": ir.IRString("Ann"), "isVip": ir.IRBool(false)},
		ir.IRObject{"firstName": ir.IRString("Bob"), "isVip": ir.IRBool(true)},
	}, row["customers"])
	assert.ElementsMatch(t, ir.IRArray{ir.IRInt(1), ir.IRInt(2)}, row["ids"])
}

func TestRun_ScalarSubqueryAggregatedArray(t *testing.T) {
	r, f := setupRunner(t)
	customer, company := f.Customer, f.Company
	vip := customer.MustColumn("isVip")

	acme := insertCompany(t, r, f, "ACME", nil)
	insertCompany(t, r, f, "Empty Co", nil)
	insertCustomer(t, r, f, "Ann", "Lee", acme)
	insertCustomer(t, r, f, "Bob", "Ray", acme, query.Set(vip, query.Value(vip, ir.IRBool(true))))

	sub, err := query.Subquery(f.Registry, customer.ID()).
		Where(expr.Eq(customer.MustColumn("companyId"), company.MustColumn("id"))).
		Select(projection.Value("customers", expr.AggregateAsArray(expr.ValuesOrEmpty,
			expr.ArrayField{Name: "first", Value: customer.MustColumn("firstName")},
			expr.ArrayField{Name: "vip", Value: vip},
		))).
		Build()
	require.NoError(t, err)

	customers := expr.Scalar(sub, ir.TypeAggregatedArray)
	assert.Equal(t, ir.Required, customers.Optional())

	sel, err := query.SelectFrom(f.Registry, company.ID()).
		Select(
			projection.Value("name", company.MustColumn("name")),
			projection.Value("customers", customers),
		).
		OrderBy("name", query.Asc).
		Build()
	res := run(t, r, sel, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, ir.IRString("ACME"), res.Rows[0]["name"])
	require.IsType(t, ir.IRArray{}, res.Rows[0]["customers"])
	assert.ElementsMatch(t, ir.IRArray{
		ir.IRObject{"first": ir.IRString("Ann"), "vip": ir.IRBool(false)},
		ir.IRObject{"first": ir.IRString("Bob"), "vip": ir.IRBool(true)},
	}, res.Rows[0]["customers"])
	assert.Equal(t, ir.IRArray{}, res.Rows[1]["customers"])
}

func TestRun_UpdateAndDelete(t *testing.T) {
	r, f := setupRunner(t)
	customer := f.Customer
	id, first := customer.MustColumn("id"), customer.MustColumn("firstName")

	acme := insertCompany(t, r, f, "ACME", nil)
	insertCustomer(t, r, f, "Ann", "Lee", acme)
	insertCustomer(t, r, f, "Bob", "Ray", acme)

	upd, err := query.UpdateTable(f.Registry, customer.ID()).
		Set(query.Set(first, query.Value(first, ir.IRString("Anna")))).
		Where(expr.Eq(id, expr.Val(1))).
		Build()
	res := run(t, r, upd, err)
	assert.Equal(t, int64(1), res.RowsAffected)
	assert.Empty(t, res.Rows)

	upd, err = query.UpdateTable(f.Registry, customer.ID()).
		Set(query.Set(first, query.Value(first, ir.IRString("Bobby")))).
		Where(expr.Eq(id, expr.Val(2))).
		Returning(projection.Value("firstName", first)).
		Build()
	res = run(t, r, upd, err)
	assert.Equal(t, []ir.IRObject{{"firstName": ir.IRString("Bobby")}}, res.Rows)

	del, err := query.DeleteFrom(f.Registry, customer.ID()).
		Where(expr.Eq(first, expr.Val("Anna"))).
		Build()
	res = run(t, r, del, err)
	assert.Equal(t, int64(1), res.RowsAffected)

	del, err = query.DeleteFrom(f.Registry, customer.ID()).AllowingNoWhere().Build()
	res = run(t, r, del, err)
	assert.Equal(t, int64(1), res.RowsAffected)
}

func TestRun_StatementIDs(t *testing.T) {
	r, f := setupRunner(t)

	first := insertCompany(t, r, f, "ACME", nil)
	require.Equal(t, ir.IRInt(1), first)

	sel, err := query.SelectFrom(f.Registry, f.Company.ID()).
		Select(projection.Value("id", f.Company.MustColumn("id"))).
		Build()
	res := run(t, r, sel, err)
	assert.Equal(t, "stmt-2", res.StatementID)
}

func TestRun_DriverLastInsertID(t *testing.T) {
	// A MySQL-style insert reads the key from the driver result. SQLite
	// accepts backquoted identifiers, so the MySQL text runs unchanged.
	base, f := setupRunner(t)
	r := New(base.DB(), sqlbuild.MySQL{}, f.Registry, WithLogger(testutil.DiscardLogger()))

	name := f.Company.MustColumn("name")
	ins, err := query.InsertInto(f.Registry, f.Company.ID()).
		Values(query.Set(name, query.Value(name, ir.IRString("ACME")))).
		ReturningLastInsertedID().
		Build()
	res := run(t, r, ins, err)
	assert.Equal(t, []ir.IRObject{{"id": ir.IRInt(1)}}, res.Rows)
}

func TestRun_CompileError(t *testing.T) {
	r, f := setupRunner(t)
	first := f.Customer.MustColumn("firstName")

	upd, err := query.UpdateTable(f.Registry, f.Customer.ID()).
		Set(query.Set(first, query.Value(first, ir.IRString("Ann")))).
		AllowingNoWhere().
		Returning(projection.Value("before", f.CustomerOld.MustColumn("firstName"))).
		Build()
	require.NoError(t, err)

	_, err = r.Run(context.Background(), upd)
	var unsupported *sqlbuild.UnsupportedError
	require.ErrorAs(t, err, &unsupported)
	assert.Contains(t, err.Error(), "stmt-1")
}

func TestOpen_Errors(t *testing.T) {
	f := testutil.NewFixtures(t)
	ctx := context.Background()

	_, err := Open(ctx, Config{Driver: "oracle"}, f.Registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dialect")

	_, err = Open(ctx, Config{Driver: "mysql", DSN: "no-slash-here"}, f.Registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mysql dsn")
}

func TestOpen_SQLitePragmas(t *testing.T) {
	r, _ := setupRunner(t)

	var fk int
	require.NoError(t, r.DB().QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
	assert.Equal(t, 1, r.DB().Stats().MaxOpenConnections)
	assert.Equal(t, "sqlite", r.Dialect().Name())
}
