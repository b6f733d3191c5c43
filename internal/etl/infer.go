package etl

import (
	"strings"

	"github.com/civicdata/budget-cli/internal/model"
)

// InferenceMap holds lookup tables built from clean rows and used to fill
// gaps in rows missing non-critical fields. Inference is asymmetric: service
// is inferred from program, never the reverse, because program is the more
// authoritative key in this domain.
type InferenceMap struct {
	programService map[string]string
}

// BuildInferenceMap scans all raw rows that have both Program and Service
// populated. Last write wins per program; this is a best-effort heuristic,
// not a guarantee of correctness.
func BuildInferenceMap(rows []model.RawRow) *InferenceMap {
	m := &InferenceMap{
		programService: make(map[string]string),
	}
	for _, row := range rows {
		program := strings.TrimSpace(row.Get(ColProgram))
		service := strings.TrimSpace(row.Get(ColService))
		if model.IsAbsent(program) || model.IsAbsent(service) {
			continue
		}
		m.programService[normalizeKey(program)] = service
	}
	return m
}

// ServiceFor returns the known service for a program, if any.
func (m *InferenceMap) ServiceFor(program string) (string, bool) {
	s, ok := m.programService[normalizeKey(program)]
	return s, ok
}

// Len returns the number of program mappings.
func (m *InferenceMap) Len() int { return len(m.programService) }

// FillService fills a missing service from the program mapping. Returns true
// and logs an inference action when a fill happened.
func (m *InferenceMap) FillService(n *Normalized) bool {
	if n.Record.Service != "" || n.Record.Program == "" {
		return false
	}
	service, ok := m.ServiceFor(n.Record.Program)
	if !ok {
		return false
	}
	n.Record.Service = service
	delete(n.Flawed, model.FieldService)
	n.Actions = append(n.Actions, model.CleanAction{
		Field:  model.FieldService,
		Action: "inferred from program " + quote(n.Record.Program),
	})
	return true
}

// normalizeKey canonicalizes a program name for map lookup so that casing
// and stray whitespace differences still match.
func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
