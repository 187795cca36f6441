package harness

// Result is the outcome of running a scenario.
type Result struct {
	// Scenario is the scenario name.
	Scenario string `json:"scenario"`

	// Pass is true when every query passed.
	Pass bool `json:"pass"`

	// Queries holds one entry per scenario query, in order.
	Queries []QueryResult `json:"queries"`

	// Errors collects failure messages across all queries.
	Errors []string `json:"errors,omitempty"`
}

// QueryResult is the outcome of one query.
type QueryResult struct {
	Name  string `json:"name"`
	Query string `json:"query"`

	// SQL is the statement executed against the database.
	SQL string `json:"sql,omitempty"`

	// SQLRows and MemoryRows are the normalized results, sorted. A target
	// that did not run leaves its field nil.
	SQLRows    []string `json:"sql_rows,omitempty"`
	MemoryRows []string `json:"memory_rows,omitempty"`

	// ErrorCode is the compile error code when the query failed to compile.
	ErrorCode string `json:"error_code,omitempty"`

	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result for the named scenario.
func NewResult(scenario string) *Result {
	return &Result{
		Scenario: scenario,
		Pass:     true,
		Queries:  []QueryResult{},
		Errors:   []string{},
	}
}

// Add records a query result, failing the scenario if the query failed.
func (r *Result) Add(q QueryResult) {
	r.Queries = append(r.Queries, q)
	if !q.Pass {
		r.Pass = false
		for _, e := range q.Errors {
			r.Errors = append(r.Errors, q.Name+": "+e)
		}
	}
}

// fail marks q failed with message.
func (q *QueryResult) fail(message string) {
	q.Pass = false
	q.Errors = append(q.Errors, message)
}
