package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// Snapshot is the golden form of a scenario run: the SQL each query
// compiled to and the rows it produced.
type Snapshot struct {
	Scenario string          `json:"scenario"`
	Queries  []QuerySnapshot `json:"queries"`
}

// QuerySnapshot is one query's entry in a Snapshot.
type QuerySnapshot struct {
	Name  string   `json:"name"`
	SQL   string   `json:"sql,omitempty"`
	Rows  []string `json:"rows"`
	Error string   `json:"error,omitempty"`
}

// NewSnapshot builds the snapshot of a result. Rows come from the SQL
// target when it ran and from the interpreter otherwise.
func NewSnapshot(result *Result) Snapshot {
	snap := Snapshot{Scenario: result.Scenario, Queries: make([]QuerySnapshot, len(result.Queries))}
	for i, q := range result.Queries {
		rows := q.SQLRows
		if rows == nil {
			rows = q.MemoryRows
		}
		if rows == nil {
			rows = []string{}
		}
		snap.Queries[i] = QuerySnapshot{Name: q.Name, SQL: q.SQL, Rows: rows, Error: q.ErrorCode}
	}
	return snap
}

// RunWithGolden runs a scenario, requires it to pass and compares its
// snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "scenario %s failed:\n%v", scenario.Name, result.Errors)

	AssertGolden(t, scenario.Name, result)
	return result
}

// AssertGolden compares a result's snapshot against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	data, err := MarshalSnapshot(result)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

// MarshalSnapshot renders a result's snapshot as indented JSON with a
// trailing newline, the golden file format.
func MarshalSnapshot(result *Result) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewSnapshot(result)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
