package engine

// DefaultMaxRows is the default maximum number of rows Execute returns.
const DefaultMaxRows = 100_000

// RowQuota caps the size of an executed result.
//
// Results are fully materialized, so an unbounded query against a large
// table would otherwise hold every row in memory. A limit of zero or less
// disables the check.
type RowQuota struct {
	limit int
}

// NewRowQuota creates a quota allowing up to limit rows.
func NewRowQuota(limit int) RowQuota {
	return RowQuota{limit: limit}
}

// Check returns a row limit error when rows exceeds the limit.
func (q RowQuota) Check(requestID string, rows int) error {
	if q.limit <= 0 || rows <= q.limit {
		return nil
	}
	return NewRowLimitError(requestID, rows, q.limit)
}

// Limit returns the configured limit.
func (q RowQuota) Limit() int {
	return q.limit
}
