package sqlguard

import "fmt"

type tokenKind int

const (
	tkIdent tokenKind = iota
	tkNumber
	tkString
	tkParam
	tkPunct
)

type token struct {
	kind   tokenKind
	text   string
	quoted bool // quoted identifiers never match keywords
}

// lex splits SQL into tokens, stripping comments. String literals and
// quoted identifiers must be terminated; a statement that ends inside one
// is refused rather than guessed at.
func lex(sql string) ([]token, error) {
	var toks []token
	i := 0
	n := len(sql)

	for i < n {
		c := sql[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '-' && i+1 < n && sql[i+1] == '-':
			for i < n && sql[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < n && sql[i+1] == '*':
			end := -1
			for j := i + 2; j+1 < n; j++ {
				if sql[j] == '*' && sql[j+1] == '/' {
					end = j + 2
					break
				}
			}
			if end < 0 {
				return nil, fmt.Errorf("%w: block comment", ErrUnterminatedToken)
			}
			i = end

		case c == '\'':
			text, next, err := lexQuoted(sql, i, '\'')
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tkString, text: text})
			i = next

		case c == '"' || c == '`':
			text, next, err := lexQuoted(sql, i, c)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tkIdent, text: text, quoted: true})
			i = next

		case c == '[':
			end := -1
			for j := i + 1; j < n; j++ {
				if sql[j] == ']' {
					end = j
					break
				}
			}
			if end < 0 {
				return nil, fmt.Errorf("%w: bracketed identifier", ErrUnterminatedToken)
			}
			toks = append(toks, token{kind: tkIdent, text: sql[i+1 : end], quoted: true})
			i = end + 1

		case isIdentStart(c):
			j := i + 1
			for j < n && isIdentPart(sql[j]) {
				j++
			}
			toks = append(toks, token{kind: tkIdent, text: sql[i:j]})
			i = j

		case c >= '0' && c <= '9':
			j := i + 1
			for j < n && (isIdentPart(sql[j]) || sql[j] == '.') {
				j++
			}
			toks = append(toks, token{kind: tkNumber, text: sql[i:j]})
			i = j

		case c == '?' || c == ':' || c == '@' || c == '$':
			j := i + 1
			for j < n && isIdentPart(sql[j]) {
				j++
			}
			toks = append(toks, token{kind: tkParam, text: sql[i:j]})
			i = j

		default:
			toks = append(toks, token{kind: tkPunct, text: string(c)})
			i++
		}
	}

	return toks, nil
}

// lexQuoted reads a quoted region starting at i, where a doubled quote
// character is an escape. Returns the unquoted text and the index after
// the closing quote.
func lexQuoted(sql string, i int, quote byte) (string, int, error) {
	var out []byte
	j := i + 1
	n := len(sql)
	for j < n {
		if sql[j] == quote {
			if j+1 < n && sql[j+1] == quote {
				out = append(out, quote)
				j += 2
				continue
			}
			return string(out), j + 1, nil
		}
		out = append(out, sql[j])
		j++
	}
	return "", 0, fmt.Errorf("%w: %q literal", ErrUnterminatedToken, string(quote))
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
