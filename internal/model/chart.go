package model

// ChartType is the recommended visualization family.
type ChartType string

const (
	ChartLine       ChartType = "line"
	ChartBar        ChartType = "bar"
	ChartPie        ChartType = "pie"
	ChartArea       ChartType = "area"
	ChartComparison ChartType = "comparison"
)

// ChartRecommendation is the Visualization Advisor's verdict for one result
// set. Derived per request, never persisted.
type ChartRecommendation struct {
	ShouldVisualize bool      `json:"should_visualize"`
	ChartType       ChartType `json:"chart_type,omitempty"`
	XField          string    `json:"x_field,omitempty"`
	YField          string    `json:"y_field,omitempty"`
	Title           string    `json:"title,omitempty"`
}
