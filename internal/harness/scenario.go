package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/sqlbuild"
)

// Scenario defines a conformance test scenario.
// A scenario declares a schema, builds one statement over it, and checks
// the rendered SQL, the inferred optionality of every projected value and,
// when setup SQL is given, the rows the statement returns from SQLite.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schemas lists CUE files declaring the relations the query uses.
	// Paths are relative to the scenario file location.
	Schemas []string `yaml:"schemas"`

	// Dialects to render for. Defaults to every registered dialect.
	Dialects []string `yaml:"dialects,omitempty"`

	// Setup is SQL run against a fresh in-memory SQLite database before the
	// statement executes (DDL and fixture rows).
	Setup string `yaml:"setup,omitempty"`

	// Query is the statement under test.
	Query QuerySpec `yaml:"query"`

	// Expect holds the checks. Unset fields are not checked.
	Expect Expect `yaml:"expect"`
}

// QuerySpec describes a statement. Kind selects which of the remaining
// fields apply.
type QuerySpec struct {
	// Kind is select (default), insert, update or delete.
	Kind string `yaml:"kind,omitempty"`

	// From is the relation a select reads from.
	From string `yaml:"from,omitempty"`
	// Table is the relation a mutation writes to.
	Table string `yaml:"table,omitempty"`

	Joins    []JoinSpec  `yaml:"joins,omitempty"`
	Where    *yaml.Node  `yaml:"where,omitempty"`
	Select   *yaml.Node  `yaml:"select,omitempty"`
	Distinct bool        `yaml:"distinct,omitempty"`
	GroupBy  []yaml.Node `yaml:"group_by,omitempty"`
	Having   *yaml.Node  `yaml:"having,omitempty"`
	OrderBy  []OrderSpec `yaml:"order_by,omitempty"`
	Limit    int64       `yaml:"limit,omitempty"`
	Offset   int64       `yaml:"offset,omitempty"`

	// Values holds one mapping of property to value per inserted row.
	Values []yaml.Node `yaml:"values,omitempty"`
	// Set maps properties to new values in an update.
	Set *yaml.Node `yaml:"set,omitempty"`
	// Returning is projected like Select from the mutated rows.
	Returning       *yaml.Node `yaml:"returning,omitempty"`
	ReturningLastID bool       `yaml:"returning_last_id,omitempty"`
	// AllRows allows an update or delete without a where clause.
	AllRows bool `yaml:"all_rows,omitempty"`
}

// JoinSpec joins a relation to a select.
type JoinSpec struct {
	// Kind is inner (default), left, optional or optional_left.
	Kind     string    `yaml:"kind,omitempty"`
	Relation string    `yaml:"relation"`
	On       yaml.Node `yaml:"on"`
}

// OrderSpec orders a select by a projected property or an expression.
type OrderSpec struct {
	Property string     `yaml:"property,omitempty"`
	Expr     *yaml.Node `yaml:"expr,omitempty"`
	// Direction is asc (default), desc, or either followed by _nulls_first
	// or _nulls_last.
	Direction string `yaml:"direction,omitempty"`
}

// Expect specifies expected outcomes.
type Expect struct {
	// SQL maps a dialect name to the exact statement text.
	SQL map[string]string `yaml:"sql,omitempty"`

	// Params are the bound parameters, identical for every dialect.
	Params []any `yaml:"params,omitempty"`

	// Optional maps a dotted result path to its resolved tag, e.g.
	// "parent.name: requiredInOptionalObject".
	Optional map[string]string `yaml:"optional,omitempty"`

	// Rules maps a nested group path to the number of the rule that
	// resolves its members.
	Rules map[string]int `yaml:"rules,omitempty"`

	// Rows are the objects returned by SQLite, in order. Absent values are
	// omitted rather than written as null.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// RowsAffected is checked for statements without a projection.
	RowsAffected *int64 `yaml:"rows_affected,omitempty"`

	// Error is the code of a statement construction error, e.g. Q001.
	Error string `yaml:"error,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Schema paths are resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving schema paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "selct:" vs "select:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve schema paths relative to base path BEFORE validation
	for i, schemaPath := range scenario.Schemas {
		if !filepath.IsAbs(schemaPath) && basePath != "" {
			scenario.Schemas[i] = filepath.Join(basePath, schemaPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// Statement kinds.
const (
	KindSelect = "select"
	KindInsert = "insert"
	KindUpdate = "update"
	KindDelete = "delete"
)

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Schemas) == 0 {
		return fmt.Errorf("schemas list is required and must be non-empty")
	}

	for _, schemaPath := range s.Schemas {
		if _, err := os.Stat(schemaPath); os.IsNotExist(err) {
			return fmt.Errorf("schema file not found: %s", schemaPath)
		}
	}

	for i, name := range s.Dialects {
		if _, err := sqlbuild.LookupDialect(name); err != nil {
			return fmt.Errorf("dialects[%d]: %w", i, err)
		}
	}
	for name := range s.Expect.SQL {
		if _, err := sqlbuild.LookupDialect(name); err != nil {
			return fmt.Errorf("expect.sql: %w", err)
		}
	}

	if err := validateQuery(&s.Query); err != nil {
		return fmt.Errorf("query: %w", err)
	}

	for path, tag := range s.Expect.Optional {
		if _, err := ir.ParseOptionalTag(tag); err != nil {
			return fmt.Errorf("expect.optional[%s]: %w", path, err)
		}
	}
	for path, rule := range s.Expect.Rules {
		if rule < 1 || rule > 4 {
			return fmt.Errorf("expect.rules[%s]: rule must be between 1 and 4, got %d", path, rule)
		}
	}

	return nil
}

func validateQuery(q *QuerySpec) error {
	switch q.Kind {
	case "", KindSelect:
		if q.From == "" {
			return fmt.Errorf("from is required for select")
		}
		if q.Select == nil {
			return fmt.Errorf("select is required for select")
		}
	case KindInsert:
		if q.Table == "" {
			return fmt.Errorf("table is required for insert")
		}
		if len(q.Values) == 0 {
			return fmt.Errorf("values list is required for insert")
		}
	case KindUpdate:
		if q.Table == "" {
			return fmt.Errorf("table is required for update")
		}
		if q.Set == nil {
			return fmt.Errorf("set is required for update")
		}
	case KindDelete:
		if q.Table == "" {
			return fmt.Errorf("table is required for delete")
		}
	default:
		return fmt.Errorf("unknown kind %q", q.Kind)
	}

	for i, j := range q.Joins {
		if j.Relation == "" {
			return fmt.Errorf("joins[%d]: relation is required", i)
		}
		if _, err := parseJoinKind(j.Kind); err != nil {
			return fmt.Errorf("joins[%d]: %w", i, err)
		}
	}
	for i, o := range q.OrderBy {
		if (o.Property == "") == (o.Expr == nil) {
			return fmt.Errorf("order_by[%d]: exactly one of property and expr is required", i)
		}
		if _, err := parseDirection(o.Direction); err != nil {
			return fmt.Errorf("order_by[%d]: %w", i, err)
		}
	}
	return nil
}
