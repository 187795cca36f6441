package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/triql/internal/queryir"
	"github.com/roach88/triql/internal/schema"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Table and column names are interpolated into DDL and INSERT statements.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Scenario defines a cross-backend equivalence scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario covers.
	Description string `yaml:"description"`

	// Schema is optional DDL run before loading rows. When empty, each
	// table is created with column types inferred from its rows.
	Schema []string `yaml:"schema,omitempty"`

	// Relations resolve INCLUDE hops. When empty, hops resolve through the
	// database's foreign keys.
	Relations []schema.Relation `yaml:"relations,omitempty"`

	// Tables are loaded in order, so parents can precede children.
	Tables []Table `yaml:"tables"`

	// Queries run against every target they name.
	Queries []QueryCase `yaml:"queries"`
}

// Table is a fixture table.
type Table struct {
	Name string           `yaml:"name"`
	Rows []map[string]any `yaml:"rows"`
}

// QueryCase is one query to run and compare.
type QueryCase struct {
	Name  string `yaml:"name"`
	Query string `yaml:"query"`

	// Targets limits where the query runs: "sql", "memory" or both.
	// Default: both, with results compared.
	Targets []string `yaml:"targets,omitempty"`

	// Expect optionally pins the result.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect pins a query outcome.
type Expect struct {
	// Rows are the expected rows, compared as a multiset like the targets
	// are compared with each other.
	Rows [][]any `yaml:"rows,omitempty"`

	// Count is the expected number of rows.
	Count *int `yaml:"count,omitempty"`

	// Error is the expected compile error code, e.g. SYNTAX_ERROR. The
	// query must fail on every target it names.
	Error string `yaml:"error,omitempty"`
}

// Target names accepted in QueryCase.Targets.
const (
	TargetSQL    = "sql"
	TargetMemory = "memory"
)

// RunsOn reports whether the query runs on target.
func (q QueryCase) RunsOn(target string) bool {
	if len(q.Targets) == 0 {
		return true
	}
	for _, t := range q.Targets {
		if t == target {
			return true
		}
	}
	return false
}

// Table returns the named fixture table's rows.
func (s *Scenario) Table(name string) ([]map[string]any, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t.Rows, true
		}
	}
	return nil, false
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Tables) == 0 {
		return fmt.Errorf("tables list is required and must be non-empty")
	}
	if len(s.Queries) == 0 {
		return fmt.Errorf("queries list is required and must be non-empty")
	}

	for i, t := range s.Tables {
		if !validIdentifier.MatchString(t.Name) {
			return fmt.Errorf("tables[%d]: invalid table name %q", i, t.Name)
		}
		for j, row := range t.Rows {
			for col := range row {
				if !validIdentifier.MatchString(col) {
					return fmt.Errorf("tables[%d].rows[%d]: invalid column name %q", i, j, col)
				}
			}
		}
	}

	seen := make(map[string]bool)
	for i, q := range s.Queries {
		if err := validateQuery(i, q); err != nil {
			return err
		}
		if seen[q.Name] {
			return fmt.Errorf("queries[%d]: duplicate name %q", i, q.Name)
		}
		seen[q.Name] = true
	}
	return nil
}

// validateQuery validates a single query case.
func validateQuery(index int, q QueryCase) error {
	if q.Name == "" {
		return fmt.Errorf("queries[%d]: name is required", index)
	}
	if q.Query == "" {
		return fmt.Errorf("queries[%d]: query is required", index)
	}
	for _, t := range q.Targets {
		if t != TargetSQL && t != TargetMemory {
			return fmt.Errorf("queries[%d]: unknown target %q", index, t)
		}
	}
	if q.Expect == nil {
		return nil
	}
	if q.Expect.Error != "" {
		if q.Expect.Rows != nil || q.Expect.Count != nil {
			return fmt.Errorf("queries[%d].expect: error excludes rows and count", index)
		}
		switch queryir.ErrorCode(q.Expect.Error) {
		case queryir.ErrCodeSyntax, queryir.ErrCodeSchemaResolution,
			queryir.ErrCodeUnsupportedOperator, queryir.ErrCodeUnsupportedFunction,
			queryir.ErrCodeRender:
		default:
			return fmt.Errorf("queries[%d].expect: unknown error code %q", index, q.Expect.Error)
		}
	}
	if q.Expect.Count != nil && *q.Expect.Count < 0 {
		return fmt.Errorf("queries[%d].expect: count must be non-negative", index)
	}
	return nil
}
