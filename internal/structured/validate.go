package structured

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/uniguide/internal/storage"
)

// ErrValidationRejected is returned for statements that must not run.
var ErrValidationRejected = errors.New("statement rejected")

var forbiddenWords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true, "ALTER": true,
	"CREATE": true, "REPLACE": true, "ATTACH": true, "DETACH": true, "PRAGMA": true,
	"VACUUM": true, "REINDEX": true, "ANALYZE": true, "TRUNCATE": true, "BEGIN": true,
	"COMMIT": true, "ROLLBACK": true, "SAVEPOINT": true, "RELEASE": true,
	"LOAD_EXTENSION": true, "READFILE": true, "WRITEFILE": true,
}

// Keywords that end the FROM clause at the current nesting depth.
var clauseWords = map[string]bool{
	"SELECT": true, "WHERE": true, "GROUP": true, "HAVING": true, "ORDER": true,
	"LIMIT": true, "WINDOW": true, "UNION": true, "EXCEPT": true, "INTERSECT": true,
}

// isScalarReplace reports whether toks[i] is a call of the string function
// replace(), as opposed to the REPLACE statement or conflict clause.
func isScalarReplace(toks []token, i int) bool {
	return strings.EqualFold(toks[i].text, "REPLACE") &&
		i+1 < len(toks) && toks[i+1].kind == tokPunct && toks[i+1].text == "("
}

func reject(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidationRejected, fmt.Sprintf(format, args...))
}

// Validate accepts a single SELECT statement that reads only the
// universities table. The statement must start with the exact keyword
// SELECT; comments, extra statements, write or session keywords, subqueries
// in FROM and references to any other table are rejected.
func Validate(stmt string) error {
	if !strings.HasPrefix(stmt, "SELECT") {
		return reject("does not start with SELECT")
	}

	toks, err := tokenize(stmt)
	if err != nil {
		return err
	}
	if len(toks) == 0 || toks[0].kind != tokWord || toks[0].text != "SELECT" {
		return reject("does not start with SELECT")
	}

	for i, t := range toks {
		if t.kind == tokPunct && t.text == ";" && i != len(toks)-1 {
			return reject("multiple statements")
		}
		if t.kind == tokWord && forbiddenWords[strings.ToUpper(t.text)] && !isScalarReplace(toks, i) {
			return reject("forbidden keyword %s", strings.ToUpper(t.text))
		}
	}

	// inFrom[d] is set while the FROM clause at paren depth d is open.
	inFrom := []bool{false}
	expectTable := false
	for i, t := range toks {
		d := len(inFrom) - 1

		if expectTable {
			expectTable = false
			if t.kind != tokWord && t.kind != tokQuotedIdent {
				return reject("unsupported table expression %q", t.text)
			}
			if !strings.EqualFold(t.text, storage.RecordsTable) {
				return reject("table %q is not allowed", t.text)
			}
			if i+1 < len(toks) && toks[i+1].kind == tokPunct && toks[i+1].text == "." {
				return reject("qualified table names are not allowed")
			}
			continue
		}

		switch t.kind {
		case tokWord:
			w := strings.ToUpper(t.text)
			switch {
			case w == "FROM" || w == "JOIN":
				inFrom[d] = true
				expectTable = true
			case clauseWords[w]:
				inFrom[d] = false
			}
		case tokPunct:
			switch t.text {
			case "(":
				inFrom = append(inFrom, false)
			case ")":
				if d == 0 {
					return reject("unbalanced parentheses")
				}
				inFrom = inFrom[:d]
			case ",":
				if inFrom[d] {
					expectTable = true
				}
			}
		}
	}
	if expectTable {
		return reject("missing table name")
	}
	if len(inFrom) != 1 {
		return reject("unbalanced parentheses")
	}
	return nil
}

type tokKind int

const (
	tokWord tokKind = iota
	tokNumber
	tokString
	tokQuotedIdent
	tokPunct
)

type token struct {
	kind tokKind
	text string
}

// tokenize splits a SQLite statement into words, numbers, string literals,
// quoted identifiers and single-character punctuation.
func tokenize(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '-' && i+1 < len(s) && s[i+1] == '-',
			c == '/' && i+1 < len(s) && s[i+1] == '*':
			return nil, reject("comments are not allowed")

		case c == '\'':
			text, n, err := readQuoted(s[i:], '\'')
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{tokString, text})
			i += n

		case c == '"' || c == '`':
			text, n, err := readQuoted(s[i:], c)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{tokQuotedIdent, text})
			i += n

		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, reject("unterminated identifier")
			}
			toks = append(toks, token{tokQuotedIdent, s[i+1 : i+end]})
			i += end + 1

		case isWordStart(c):
			j := i + 1
			for j < len(s) && isWordPart(s[j]) {
				j++
			}
			toks = append(toks, token{tokWord, s[i:j]})
			i = j

		case c >= '0' && c <= '9' || c == '.' && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9':
			j := i + 1
			for j < len(s) && (isWordPart(s[j]) || s[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, s[i:j]})
			i = j

		default:
			toks = append(toks, token{tokPunct, string(c)})
			i++
		}
	}
	return toks, nil
}

// readQuoted reads a quoted run starting at s[0] == q, where a doubled quote
// stands for itself. It returns the unquoted text and bytes consumed.
func readQuoted(s string, q byte) (string, int, error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] != q {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			b.WriteByte(q)
			i++
			continue
		}
		return b.String(), i + 1, nil
	}
	return "", 0, reject("unterminated quote")
}

func isWordStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func isWordPart(c byte) bool {
	return isWordStart(c) || c >= '0' && c <= '9' || c == '$'
}
