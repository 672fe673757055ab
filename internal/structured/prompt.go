// Package structured answers questions by generating a read-only SQL query
// against the universities table.
package structured

import "strings"

// RefusalSentinel is what the model is told to reply when the table cannot
// answer the question.
const RefusalSentinel = "No relevant data in database."

const promptTemplate = `You are an expert SQL assistant for a university chatbot. Convert the user's query into a valid SQLite SELECT query.

Table schema:
- universities (university TEXT, program TEXT, tuition INTEGER, location TEXT, visa_service TEXT)

Rules:
1. Generate only the SQL SELECT query
2. If the query cannot be answered with available data, return: '` + RefusalSentinel + `'
3. Use exact table name 'universities'
4. Handle ambiguous queries by assuming they refer to the universities table

Examples:
- "What is the tuition at Sample University?" -> SELECT tuition FROM universities WHERE university = 'Sample University';
- "Which universities offer Computer Science?" -> SELECT university FROM universities WHERE program = 'Computer Science';

User query: {query}
SQL query:`

// BuildPrompt returns the statement-generation prompt for an English query.
func BuildPrompt(query string) string {
	return strings.Replace(promptTemplate, "{query}", strings.TrimSpace(query), 1)
}

// Normalize trims model output and unwraps a Markdown code fence.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// Drop the info string ("sql", "sqlite") on the fence line.
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = ""
		}
		s = strings.TrimSpace(s)
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
