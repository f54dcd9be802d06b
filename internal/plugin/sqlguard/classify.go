// Package sqlguard classifies raw SQL from plugins and enforces a grant's
// table scopes over it. Plugin SQL is treated as adversarial input: any
// statement whose operation or table references cannot be determined
// unambiguously is rejected, never allowed through.
package sqlguard

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Op is the classified operation of a statement.
type Op int

// Statement operations.
const (
	OpSelect Op = iota
	OpInsert
	OpUpdate
	OpDelete
	OpCreate
	OpDrop
	OpAlter
)

// String returns the SQL verb for the operation.
func (o Op) String() string {
	switch o {
	case OpSelect:
		return "SELECT"
	case OpInsert:
		return "INSERT"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	case OpCreate:
		return "CREATE"
	case OpDrop:
		return "DROP"
	case OpAlter:
		return "ALTER"
	default:
		return "UNKNOWN"
	}
}

// IsDDL reports whether the operation changes schema.
func (o Op) IsDDL() bool {
	return o == OpCreate || o == OpDrop || o == OpAlter
}

// Statement is the classification of a single SQL statement.
type Statement struct {
	// Op is the statement's primary operation.
	Op Op

	// Tables is the sorted, deduplicated set of every table name the
	// statement references in a table position (FROM, JOIN, INTO, UPDATE,
	// TABLE, ON). Common table expression names land here too; a CTE name
	// is indistinguishable from a table without schema knowledge, so it is
	// checked against the grant like any other reference.
	Tables []string

	// writeVerb is set when any write or DDL verb appears anywhere in the
	// statement, including inside CTE bodies or subqueries.
	writeVerb bool
}

// HasWriteVerb reports whether any write or DDL verb appears anywhere in
// the statement, regardless of the primary operation.
func (s *Statement) HasWriteVerb() bool {
	return s.writeVerb
}

// Classification errors. All of them cause the enforcer to fail closed.
var (
	ErrEmptyStatement       = errors.New("sqlguard: empty statement")
	ErrMultipleStatements   = errors.New("sqlguard: multiple statements not allowed")
	ErrUnsupportedStatement = errors.New("sqlguard: unsupported statement kind")
	ErrUnterminatedToken    = errors.New("sqlguard: unterminated string or comment")
	ErrAmbiguousTable       = errors.New("sqlguard: cannot determine referenced table")
)

// writeVerbs are verbs that make a statement a write (or worse) no matter
// where they appear. PRAGMA, ATTACH and friends are included: they reach
// outside any table grant and are never plugin-safe.
var writeVerbs = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "REPLACE": true,
	"CREATE": true, "DROP": true, "ALTER": true, "TRUNCATE": true,
	"PRAGMA": true, "ATTACH": true, "DETACH": true, "VACUUM": true,
	"REINDEX": true, "GRANT": true, "REVOKE": true, "MERGE": true,
}

// terminators end a table reference list.
var refListEnd = map[string]bool{
	"WHERE": true, "GROUP": true, "ORDER": true, "LIMIT": true,
	"HAVING": true, "UNION": true, "EXCEPT": true, "INTERSECT": true,
	"ON": true, "USING": true, "SET": true, "JOIN": true, "LEFT": true,
	"RIGHT": true, "INNER": true, "OUTER": true, "CROSS": true,
	"NATURAL": true, "AS": true, "WINDOW": true, "RETURNING": true,
	"VALUES": true, "SELECT": true, "DEFAULT": true,
}

// Classify tokenizes a raw SQL string and produces its classification.
// It is deliberately conservative: one statement per call, a known leading
// verb, and every table reference must be a plain (optionally quoted)
// identifier. Anything else returns an error, which callers must treat as
// a denial.
func Classify(sql string) (*Statement, error) {
	toks, err := lex(sql)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, ErrEmptyStatement
	}

	// A trailing semicolon is tolerated; anything after it is a second
	// statement and is refused outright.
	for i, tok := range toks {
		if tok.kind == tkPunct && tok.text == ";" {
			if i != len(toks)-1 {
				return nil, ErrMultipleStatements
			}
			toks = toks[:i]
		}
	}
	if len(toks) == 0 {
		return nil, ErrEmptyStatement
	}

	stmt := &Statement{}

	op, err := leadingOp(toks)
	if err != nil {
		return nil, err
	}
	stmt.Op = op

	tables := make(map[string]bool)
	if err := extractTables(toks, tables); err != nil {
		return nil, err
	}
	for t := range tables {
		stmt.Tables = append(stmt.Tables, t)
	}
	sort.Strings(stmt.Tables)

	for _, tok := range toks {
		if tok.kind == tkIdent && !tok.quoted && writeVerbs[strings.ToUpper(tok.text)] {
			stmt.writeVerb = true
			break
		}
	}

	return stmt, nil
}

// leadingOp determines the primary operation from the statement head.
// WITH statements are classified by the first write verb they contain,
// or SELECT when none appears.
func leadingOp(toks []token) (Op, error) {
	head := strings.ToUpper(toks[0].text)
	if toks[0].kind != tkIdent || toks[0].quoted {
		return 0, fmt.Errorf("%w: statement does not begin with a verb", ErrUnsupportedStatement)
	}

	switch head {
	case "SELECT":
		return OpSelect, nil
	case "INSERT", "REPLACE":
		return OpInsert, nil
	case "UPDATE":
		return OpUpdate, nil
	case "DELETE":
		return OpDelete, nil
	case "CREATE":
		return OpCreate, nil
	case "DROP":
		return OpDrop, nil
	case "ALTER":
		return OpAlter, nil
	case "WITH":
		for _, tok := range toks[1:] {
			if tok.kind != tkIdent || tok.quoted {
				continue
			}
			switch strings.ToUpper(tok.text) {
			case "INSERT", "REPLACE":
				return OpInsert, nil
			case "UPDATE":
				return OpUpdate, nil
			case "DELETE":
				return OpDelete, nil
			case "CREATE", "DROP", "ALTER":
				return 0, fmt.Errorf("%w: DDL inside WITH", ErrUnsupportedStatement)
			}
		}
		return OpSelect, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedStatement, head)
	}
}

// extractTables walks the token stream and records every identifier that
// sits in a table position. It fails on any construct it cannot attribute
// to a concrete table name.
func extractTables(toks []token, out map[string]bool) error {
	i := 0
	for i < len(toks) {
		tok := toks[i]
		if tok.kind != tkIdent || tok.quoted {
			i++
			continue
		}

		switch strings.ToUpper(tok.text) {
		case "FROM", "JOIN":
			next, err := captureRefList(toks, i+1, out)
			if err != nil {
				return err
			}
			i = next
		case "INTO":
			next, err := captureRef(toks, i+1, out, writeRef)
			if err != nil {
				return err
			}
			i = next
		case "UPDATE":
			// SQLite conflict clause: UPDATE OR ROLLBACK|ABORT|... name
			j := i + 1
			if j+1 < len(toks) && isBareKeyword(toks[j], "OR") {
				j += 2
			}
			next, err := captureRef(toks, j, out, readRef)
			if err != nil {
				return err
			}
			i = next
		case "TABLE":
			j := skipIfExists(toks, i+1)
			next, err := captureRef(toks, j, out, writeRef)
			if err != nil {
				return err
			}
			i = next
		case "INDEX", "TRIGGER":
			// CREATE INDEX name ON table (...) and friends: the governed
			// table follows ON.
			j := skipIfExists(toks, i+1)
			for j < len(toks) {
				if isBareKeyword(toks[j], "ON") {
					next, err := captureRef(toks, j+1, out, writeRef)
					if err != nil {
						return err
					}
					j = next
					break
				}
				j++
			}
			i = j
		default:
			i++
		}
	}
	return nil
}

// refPos says where a table reference sits. A "(" after a name means a
// different thing in each position: in read position it is a table-valued
// function call, after INTO, TABLE or INDEX...ON it opens a column list
// and the name before it is the table.
type refPos int

const (
	readRef refPos = iota
	writeRef
)

// captureRefList captures a comma-separated list of table references
// starting at position i. Returns the position after the list.
func captureRefList(toks []token, i int, out map[string]bool) (int, error) {
	for {
		next, err := captureRef(toks, i, out, readRef)
		if err != nil {
			return 0, err
		}
		i = next
		// Skip an optional alias (AS name or a bare identifier that is
		// not a clause keyword).
		if i < len(toks) && isBareKeyword(toks[i], "AS") {
			i++
			if i >= len(toks) || toks[i].kind != tkIdent {
				return 0, fmt.Errorf("%w: dangling AS", ErrAmbiguousTable)
			}
			i++
		} else if i < len(toks) && toks[i].kind == tkIdent &&
			!refListEnd[strings.ToUpper(toks[i].text)] && !toks[i].quoted {
			i++
		}
		if i < len(toks) && toks[i].kind == tkPunct && toks[i].text == "," {
			i++
			continue
		}
		return i, nil
	}
}

// captureRef captures a single table reference at position i. A leading
// "(" is a subquery whose own FROM clauses are picked up by the flat walk,
// so it is skipped without recording anything. Returns the position after
// the reference.
func captureRef(toks []token, i int, out map[string]bool, pos refPos) (int, error) {
	if i >= len(toks) {
		return 0, fmt.Errorf("%w: statement ends where a table name is expected", ErrAmbiguousTable)
	}
	if toks[i].kind == tkPunct && toks[i].text == "(" {
		return i + 1, nil
	}
	if toks[i].kind != tkIdent {
		return 0, fmt.Errorf("%w: %q is not a table name", ErrAmbiguousTable, toks[i].text)
	}

	name := toks[i].text
	i++

	// Schema-qualified reference: record the full dotted name. It will not
	// match any granted table, which is the conservative outcome.
	for i+1 < len(toks) && toks[i].kind == tkPunct && toks[i].text == "." && toks[i+1].kind == tkIdent {
		name = name + "." + toks[i+1].text
		i += 2
	}

	// In read position an identifier immediately followed by "(" is a
	// table-valued function call; there is no table name to check, so
	// refuse it. In write position the "(" opens a column list and the
	// name stands.
	if pos == readRef && i < len(toks) && toks[i].kind == tkPunct && toks[i].text == "(" {
		return 0, fmt.Errorf("%w: %q is a function call, not a table", ErrAmbiguousTable, name)
	}

	out[name] = true
	return i, nil
}

// skipIfExists advances past IF [NOT] EXISTS.
func skipIfExists(toks []token, i int) int {
	if i < len(toks) && isBareKeyword(toks[i], "IF") {
		i++
		if i < len(toks) && isBareKeyword(toks[i], "NOT") {
			i++
		}
		if i < len(toks) && isBareKeyword(toks[i], "EXISTS") {
			i++
		}
	}
	return i
}

func isBareKeyword(tok token, kw string) bool {
	return tok.kind == tkIdent && !tok.quoted && strings.EqualFold(tok.text, kw)
}
