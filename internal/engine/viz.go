package engine

import (
	"strings"
	"unicode/utf8"

	"github.com/civicdata/budget-cli/internal/model"
)

// Keyword families matched against the question text, in priority order.
// First family with a hit decides the chart shape.
var (
	trendKeywords        = []string{"trend", "over time", "yearly", "annual", "growth", "change", "years"}
	comparisonKeywords   = []string{"compare", "vs", "versus", "difference", "between"}
	rankingKeywords      = []string{"top", "bottom", "highest", "lowest", "most", "least"}
	distributionKeywords = []string{"breakdown", "distribution", "share", "percentage"}
)

var amountNameHints = []string{"amount", "total", "spending", "revenue", "budget", "expense"}

const (
	maxRankingRows = 10
	maxPieSlices   = 8
)

// Recommend decides whether and how to chart a result set. It is a pure
// function of the question, query type, and result shape.
func Recommend(question string, queryType model.QueryType, rs *model.ResultSet) model.ChartRecommendation {
	none := model.ChartRecommendation{ShouldVisualize: false}
	if rs == nil || rs.Len() < 2 {
		return none
	}

	q := strings.ToLower(question)

	switch {
	case containsAnyKeyword(q, trendKeywords):
		x, okX := findYearColumn(rs.Columns)
		y, okY := findAmountColumn(rs.Columns)
		if !okX || !okY {
			return none
		}
		return model.ChartRecommendation{
			ShouldVisualize: true,
			ChartType:       model.ChartLine,
			XField:          x,
			YField:          y,
			Title:           chartTitle(question),
		}

	case containsAnyKeyword(q, comparisonKeywords):
		return barRecommendation(question, rs)

	case containsAnyKeyword(q, rankingKeywords):
		if rs.Len() > maxRankingRows {
			return none
		}
		return barRecommendation(question, rs)

	case containsAnyKeyword(q, distributionKeywords):
		if rs.Len() > maxPieSlices {
			return none
		}
		rec := barRecommendation(question, rs)
		rec.ChartType = model.ChartPie
		return rec
	}

	return none
}

func barRecommendation(question string, rs *model.ResultSet) model.ChartRecommendation {
	x := firstNonAmountColumn(rs.Columns)
	y, okY := findAmountColumn(rs.Columns)
	if !okY {
		// No amount-like column and nothing to fall back on means the
		// result has no plottable y axis.
		if len(rs.Columns) < 2 {
			return model.ChartRecommendation{ShouldVisualize: false}
		}
		y = rs.Columns[1].Name
	}
	return model.ChartRecommendation{
		ShouldVisualize: true,
		ChartType:       model.ChartBar,
		XField:          x,
		YField:          y,
		Title:           chartTitle(question),
	}
}

func containsAnyKeyword(q string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// findYearColumn prefers declared column kinds, then falls back to
// name-substring matching.
func findYearColumn(cols []model.Column) (string, bool) {
	for _, c := range cols {
		if c.Kind == model.KindYear {
			return c.Name, true
		}
	}
	for _, c := range cols {
		if strings.Contains(strings.ToLower(c.Name), "year") {
			return c.Name, true
		}
	}
	return "", false
}

func findAmountColumn(cols []model.Column) (string, bool) {
	for _, c := range cols {
		if c.Kind == model.KindAmount {
			return c.Name, true
		}
	}
	for _, c := range cols {
		name := strings.ToLower(c.Name)
		for _, hint := range amountNameHints {
			if strings.Contains(name, hint) {
				return c.Name, true
			}
		}
	}
	return "", false
}

// firstNonAmountColumn picks the x axis: the first column that is not
// amount-like, falling back to the first column.
func firstNonAmountColumn(cols []model.Column) string {
	for _, c := range cols {
		if c.Kind == model.KindAmount {
			continue
		}
		name := strings.ToLower(c.Name)
		amountLike := false
		for _, hint := range amountNameHints {
			if strings.Contains(name, hint) {
				amountLike = true
				break
			}
		}
		if !amountLike {
			return c.Name
		}
	}
	if len(cols) > 0 {
		return cols[0].Name
	}
	return ""
}

func chartTitle(question string) string {
	t := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(question), "?"))
	if t == "" {
		return "Budget data"
	}
	r, size := utf8.DecodeRuneInString(t)
	return strings.ToUpper(string(r)) + t[size:]
}
