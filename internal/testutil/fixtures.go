package testutil

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tsq/internal/adapter"
	"github.com/roach88/tsq/internal/expr"
	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/schema"
)

// Fixtures is a small company/customer schema shared by package tests.
//
//	company(id, name, parent_id?)
//	customer(id, first_name, last_name, birthday?, company_id, is_vip)
//
// Parent is company declared for use in a left join under alias "parent".
// Customer has an old-values companion.
type Fixtures struct {
	Registry    *schema.Registry
	Company     *schema.Relation
	Customer    *schema.Relation
	Parent      *schema.Relation
	CustomerOld *schema.Relation
}

// VIP is the custom boolean adapter of customer.is_vip.
var VIP = adapter.NewCustomBoolean(ir.IRString("Y"), ir.IRString("N"))

// SQLiteDDL creates the fixture tables in SQLite.
const SQLiteDDL = `
CREATE TABLE company (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	parent_id INTEGER REFERENCES company(id)
);
CREATE TABLE customer (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	birthday TEXT,
	company_id INTEGER NOT NULL REFERENCES company(id),
	is_vip TEXT NOT NULL DEFAULT 'N'
);
`

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewFixtures declares the fixture schema in a fresh, frozen registry.
func NewFixtures(t testing.TB) *Fixtures {
	t.Helper()

	reg := schema.NewRegistry(schema.WithLogger(DiscardLogger()))
	f := &Fixtures{Registry: reg}

	var err error
	f.Company, err = reg.DeclareTable("company",
		expr.Def("id", ir.TypeInt).AutogeneratedPrimaryKey(),
		expr.Def("name", ir.TypeString),
		expr.Def("parent_id", ir.TypeInt).Property("parentId").Optional(),
	)
	require.NoError(t, err)

	f.Customer, err = reg.DeclareTable("customer",
		expr.Def("id", ir.TypeInt).AutogeneratedPrimaryKey(),
		expr.Def("first_name", ir.TypeString).Property("firstName"),
		expr.Def("last_name", ir.TypeString).Property("lastName"),
		expr.Def("birthday", ir.TypeLocalDate).Optional(),
		expr.Def("company_id", ir.TypeInt).Property("companyId"),
		expr.Def("is_vip", ir.TypeBoolean).Property("isVip").WithAdapter(VIP).WithDefault(),
	)
	require.NoError(t, err)

	f.Parent, err = reg.ForUseInLeftJoin(f.Company.ID(), "parent")
	require.NoError(t, err)

	f.CustomerOld, err = reg.WithOldValues(f.Customer.ID())
	require.NoError(t, err)
	f.Customer = reg.MustRelation(f.Customer.ID())

	reg.Freeze()
	return f
}
