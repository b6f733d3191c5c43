package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_AllowsSelect(t *testing.T) {
	err := Guard(`SELECT program, SUM(amount) FROM budget_data WHERE year = 2024 GROUP BY program`)
	assert.NoError(t, err)
}

func TestGuard_RejectsDrop(t *testing.T) {
	err := Guard(`DROP TABLE budget_data`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DROP")
}

func TestGuard_CaseInsensitive(t *testing.T) {
	err := Guard(`drop table budget_data`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DROP")
}

func TestGuard_RejectsEveryKeyword(t *testing.T) {
	for _, q := range []string{
		"DELETE FROM budget_data",
		"INSERT INTO budget_data VALUES (1)",
		"UPDATE budget_data SET amount = 0",
		"ALTER TABLE budget_data ADD COLUMN x",
		"CREATE TABLE evil (id INTEGER)",
	} {
		assert.Error(t, Guard(q), q)
	}
}

func TestGuard_SubstringFalsePositiveAccepted(t *testing.T) {
	// Coarse substring matching rejects identifiers containing keywords.
	err := Guard(`SELECT * FROM budget_data WHERE program LIKE '%created_services%'`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CREATE")
}
