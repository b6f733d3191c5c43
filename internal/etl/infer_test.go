package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicdata/budget-cli/internal/model"
)

func TestBuildInferenceMap(t *testing.T) {
	rows := []model.RawRow{
		rawRow(1, map[string]string{ColProgram: "Toronto Police Service", ColService: "Policing"}),
		rawRow(2, map[string]string{ColProgram: "Fire Services", ColService: "Fire Suppression"}),
		rawRow(3, map[string]string{ColProgram: "Parks", ColService: ""}),
		rawRow(4, map[string]string{ColProgram: "NULL", ColService: "Orphaned"}),
	}

	m := BuildInferenceMap(rows)

	assert.Equal(t, 2, m.Len())
	svc, ok := m.ServiceFor("Toronto Police Service")
	require.True(t, ok)
	assert.Equal(t, "Policing", svc)
	_, ok = m.ServiceFor("Parks")
	assert.False(t, ok)
}

func TestInferenceMap_LastWriteWins(t *testing.T) {
	rows := []model.RawRow{
		rawRow(1, map[string]string{ColProgram: "Parks", ColService: "Recreation"}),
		rawRow(2, map[string]string{ColProgram: "Parks", ColService: "Parkland Maintenance"}),
	}

	m := BuildInferenceMap(rows)

	svc, ok := m.ServiceFor("Parks")
	require.True(t, ok)
	assert.Equal(t, "Parkland Maintenance", svc)
}

func TestInferenceMap_KeyNormalization(t *testing.T) {
	rows := []model.RawRow{
		rawRow(1, map[string]string{ColProgram: "Toronto  Police   Service", ColService: "Policing"}),
	}

	m := BuildInferenceMap(rows)

	svc, ok := m.ServiceFor("toronto police service")
	require.True(t, ok)
	assert.Equal(t, "Policing", svc)
}

func TestFillService(t *testing.T) {
	m := BuildInferenceMap([]model.RawRow{
		rawRow(1, map[string]string{ColProgram: "Fire Services", ColService: "Fire Suppression"}),
	})

	n := &Normalized{
		Record: model.BudgetRecord{Program: "Fire Services"},
		Flawed: map[model.Field]bool{model.FieldService: true},
	}

	filled := m.FillService(n)

	assert.True(t, filled)
	assert.Equal(t, "Fire Suppression", n.Record.Service)
	assert.False(t, n.Flawed[model.FieldService])
	require.Len(t, n.Actions, 1)
	assert.Equal(t, model.FieldService, n.Actions[0].Field)
}

func TestFillService_NoMapping(t *testing.T) {
	m := BuildInferenceMap(nil)

	n := &Normalized{
		Record: model.BudgetRecord{Program: "Unknown Program"},
		Flawed: map[model.Field]bool{model.FieldService: true},
	}

	assert.False(t, m.FillService(n))
	assert.Empty(t, n.Record.Service)
	assert.True(t, n.Flawed[model.FieldService])
}

func TestFillService_SkipsWhenPresent(t *testing.T) {
	m := BuildInferenceMap([]model.RawRow{
		rawRow(1, map[string]string{ColProgram: "Parks", ColService: "Recreation"}),
	})

	n := &Normalized{
		Record: model.BudgetRecord{Program: "Parks", Service: "Existing"},
		Flawed: map[model.Field]bool{},
	}

	assert.False(t, m.FillService(n))
	assert.Equal(t, "Existing", n.Record.Service)
}
