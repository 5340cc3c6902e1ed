// Package harness provides conformance testing for query construction.
//
// A scenario names CUE schema files, describes one statement in YAML and
// lists what is expected of it: the SQL each dialect renders, the bound
// parameters, the resolved optionality of every result column, the
// nullability rule chosen for every nested object and, when setup SQL is
// given, the rows the statement returns from an in-memory SQLite database.
//
// # Scenario Format
//
//	name: customer_with_parent
//	description: "Parent company is absent as a whole"
//	schemas:
//	  - ../schemas/shop.cue
//	setup: |
//	  CREATE TABLE company (...);
//	  INSERT INTO company ...;
//	query:
//	  from: company
//	  joins:
//	    - kind: left
//	      relation: parent
//	      on: {eq: [parent.id, company.parentId]}
//	  where: {startsWith: [company.name, {val: Acme}]}
//	  select:
//	    name: company.name
//	    parent:
//	      id: parent.id
//	      name: parent.name
//	  order_by:
//	    - property: name
//	expect:
//	  sql:
//	    sqlite: SELECT ...
//	  params: [Acme]
//	  optional:
//	    parent.name: requiredInOptionalObject
//	  rules:
//	    parent: 2
//	  rows:
//	    - {name: Acme, parent: {id: 1, name: Holding}}
//
// Mutations use kind insert, update or delete with table, values, set,
// returning and returning_last_id. A scenario may instead expect statement
// construction to fail with a query error code (expect.error: Q001).
//
// # Deterministic Testing
//
// Dialects render in name order, map-keyed expectations are checked in key
// order, and rows are compared as canonical JSON, so snapshots are stable
// across runs for golden file comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/left_join.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
