package sqlite

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrUnsafeQuery is returned for statements the query tool will not run.
var ErrUnsafeQuery = errors.New("unsafe query")

var forbiddenKeywords = map[string]bool{
	"attach":         true,
	"detach":         true,
	"pragma":         true,
	"vacuum":         true,
	"load_extension": true,
}

var forbiddenQualifiers = map[string]bool{
	"main": true,
	"temp": true,
}

type token struct {
	text   string
	quoted bool
}

// CheckReadOnly validates agent-authored SQL: a single SELECT or WITH
// statement that does not attach databases, run pragmas or name a schema
// explicitly. It returns the statement without a trailing semicolon.
func CheckReadOnly(query string) (string, error) {
	stmt := strings.TrimSpace(query)
	for strings.HasSuffix(stmt, ";") {
		stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
	}
	if stmt == "" {
		return "", fmt.Errorf("%w: empty statement", ErrUnsafeQuery)
	}

	tokens, err := tokenize(stmt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsafeQuery, err)
	}
	if len(tokens) == 0 {
		return "", fmt.Errorf("%w: empty statement", ErrUnsafeQuery)
	}

	first := strings.ToLower(tokens[0].text)
	if first != "select" && first != "with" {
		return "", fmt.Errorf("%w: only SELECT queries are allowed", ErrUnsafeQuery)
	}

	for i, tok := range tokens {
		lower := strings.ToLower(tok.text)
		if tok.text == ";" {
			return "", fmt.Errorf("%w: multiple statements are not allowed", ErrUnsafeQuery)
		}
		if !tok.quoted && forbiddenKeywords[lower] {
			return "", fmt.Errorf("%w: %s is not allowed", ErrUnsafeQuery, strings.ToUpper(lower))
		}
		if forbiddenQualifiers[lower] && i+1 < len(tokens) && tokens[i+1].text == "." {
			return "", fmt.Errorf("%w: schema-qualified names are not allowed", ErrUnsafeQuery)
		}
	}

	return stmt, nil
}

// tokenize splits SQL into identifiers, keywords and punctuation. String
// literals and comments are dropped; quoted identifiers are kept unquoted.
func tokenize(s string) ([]token, error) {
	var out []token
	r := []rune(s)
	for i := 0; i < len(r); {
		c := r[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '-' && i+1 < len(r) && r[i+1] == '-':
			for i < len(r) && r[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(r) && r[i+1] == '*':
			j := i + 2
			for j+1 < len(r) && !(r[j] == '*' && r[j+1] == '/') {
				j++
			}
			if j+1 >= len(r) {
				return nil, errors.New("unterminated comment")
			}
			i = j + 2
		case c == '\'':
			j, err := closeQuote(r, i, '\'')
			if err != nil {
				return nil, err
			}
			i = j
		case c == '"' || c == '`':
			j, err := closeQuote(r, i, c)
			if err != nil {
				return nil, err
			}
			out = append(out, token{text: string(r[i+1 : j-1]), quoted: true})
			i = j
		case c == '[':
			j := i + 1
			for j < len(r) && r[j] != ']' {
				j++
			}
			if j >= len(r) {
				return nil, errors.New("unterminated identifier")
			}
			out = append(out, token{text: string(r[i+1 : j]), quoted: true})
			i = j + 1
		case c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c):
			j := i
			for j < len(r) && (r[j] == '_' || r[j] == '$' || unicode.IsLetter(r[j]) || unicode.IsDigit(r[j])) {
				j++
			}
			out = append(out, token{text: string(r[i:j])})
			i = j
		default:
			out = append(out, token{text: string(c)})
			i++
		}
	}
	return out, nil
}

// closeQuote returns the index just past the closing quote, treating a
// doubled quote as an escape.
func closeQuote(r []rune, start int, q rune) (int, error) {
	for j := start + 1; j < len(r); j++ {
		if r[j] != q {
			continue
		}
		if j+1 < len(r) && r[j+1] == q {
			j++
			continue
		}
		return j + 1, nil
	}
	return 0, errors.New("unterminated quote")
}
