package model

// QueryType classifies the analytical intent of a translated question.
type QueryType string

const (
	QueryTypeSummary    QueryType = "summary"
	QueryTypeTrend      QueryType = "trend"
	QueryTypeComparison QueryType = "comparison"
	QueryTypeRanking    QueryType = "ranking"
	QueryTypeSpecific   QueryType = "specific"
)

// ValidQueryType reports whether t is one of the known classifications.
func ValidQueryType(t QueryType) bool {
	switch t {
	case QueryTypeSummary, QueryTypeTrend, QueryTypeComparison, QueryTypeRanking, QueryTypeSpecific:
		return true
	}
	return false
}

// CandidateQuery is the translator's output for one question: a structured
// query against budget_data, a classification, and the translator's own
// confidence in the mapping. Answer carries the model's provisional narrative
// and doubles as the clarification suggestion on the low-confidence branch.
type CandidateQuery struct {
	SQL        string    `json:"sql"`
	Answer     string    `json:"answer,omitempty"`
	Type       QueryType `json:"query_type"`
	Confidence float64   `json:"confidence"`
}

// ColumnKind is the declared semantic of a result column. Consumers reason
// about kinds first and fall back to name-substring heuristics only when the
// kind is unknown.
type ColumnKind string

const (
	KindYear   ColumnKind = "year"
	KindAmount ColumnKind = "amount"
	KindLabel  ColumnKind = "label"
	KindOther  ColumnKind = "other"
)

// Column describes one output column of an executed query.
type Column struct {
	Name string     `json:"name"`
	Kind ColumnKind `json:"kind"`
}

// ResultSet is the ordered outcome of an executed query. Row maps are keyed
// by column name; Columns preserves output order and declared semantics.
type ResultSet struct {
	Columns []Column         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// ColumnNames returns the output column names in order.
func (rs *ResultSet) ColumnNames() []string {
	names := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		names[i] = c.Name
	}
	return names
}

// Len returns the number of result rows.
func (rs *ResultSet) Len() int { return len(rs.Rows) }
