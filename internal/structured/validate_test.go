package structured

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAccepts(t *testing.T) {
	for _, stmt := range []string{
		"SELECT tuition FROM universities WHERE university = 'MIT';",
		"SELECT tuition FROM universities WHERE university = 'MIT'",
		"SELECT university, program FROM universities ORDER BY tuition DESC LIMIT 3",
		`SELECT u.university FROM "universities" AS u WHERE u.location LIKE '%CA%'`,
		"SELECT COUNT(*) FROM universities",
		"SELECT a.university FROM universities a JOIN universities b ON a.program = b.program, universities c",
		"SELECT university FROM universities WHERE tuition > (SELECT AVG(tuition) FROM universities)",
		"SELECT university FROM universities WHERE program IN ('Physics', 'Mathematics')",
		"SELECT university FROM universities WHERE program = 'drop; delete -- not a comment'",
		"SELECT university FROM universities WHERE university = 'O''Brien College'",
		"SELECT REPLACE(program,'CS','Computer Science') FROM universities;",
		"SELECT university FROM universities WHERE replace(program, ' ', '') = 'ComputerScience'",
	} {
		assert.NoError(t, Validate(stmt), stmt)
	}
}

func TestValidateRejects(t *testing.T) {
	for _, stmt := range []string{
		"",
		RefusalSentinel,
		"select tuition from universities",
		"SELECTX FROM universities",
		"DROP TABLE universities;",
		"SELECT 1; DROP TABLE universities;",
		"SELECT 1; SELECT 2",
		"SELECT * FROM universities -- trailing",
		"SELECT * FROM universities /* note */",
		"SELECT * FROM sqlite_master",
		"SELECT * FROM universities, sqlite_master",
		"SELECT * FROM universities u JOIN conversation_history h ON 1=1",
		"SELECT * FROM universities WHERE university IN (SELECT content FROM conversation_history)",
		"SELECT * FROM (SELECT * FROM jobs)",
		"SELECT * FROM main.universities",
		"SELECT * FROM pragma_table_info('universities')",
		"SELECT * FROM universities WHERE REPLACE INTO universities",
		"SELECT 1 FROM universities; REPLACE INTO universities VALUES (1)",
		"SELECT load_extension('x') FROM universities",
		"SELECT * FROM universities WHERE university = 'open",
		"SELECT (1 FROM universities",
		"SELECT * FROM",
	} {
		err := Validate(stmt)
		require.Error(t, err, stmt)
		assert.ErrorIs(t, err, ErrValidationRejected, stmt)
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  SELECT 1;  ":                      "SELECT 1;",
		"```sql\nSELECT 1;\n```":             "SELECT 1;",
		"```\nSELECT 1\n```\n":               "SELECT 1",
		"```sqlite\n  SELECT tuition\n```":   "SELECT tuition",
		"No relevant data in database.":      "No relevant data in database.",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "%q", in)
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("  What does MIT charge?  ")
	assert.Contains(t, p, "universities (university TEXT, program TEXT, tuition INTEGER, location TEXT, visa_service TEXT)")
	assert.Contains(t, p, "return: 'No relevant data in database.'")
	assert.Contains(t, p, "User query: What does MIT charge?\nSQL query:")
	assert.NotContains(t, p, "{query}")
}
