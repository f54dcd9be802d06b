package sqlguard

import (
	"errors"
	"reflect"
	"testing"
)

func TestClassifySelect(t *testing.T) {
	tests := []struct {
		name       string
		sql        string
		wantTables []string
	}{
		{"simple", "SELECT * FROM transactions", []string{"transactions"}},
		{"lowercase verb", "select id, amount from transactions", []string{"transactions"}},
		{"trailing semicolon", "SELECT * FROM transactions;", []string{"transactions"}},
		{"where clause", "SELECT * FROM transactions WHERE amount > 100", []string{"transactions"}},
		{"alias", "SELECT t.id FROM transactions t WHERE t.amount > 0", []string{"transactions"}},
		{"as alias", "SELECT x.id FROM transactions AS x", []string{"transactions"}},
		{"join", "SELECT * FROM transactions JOIN accounts ON transactions.account_id = accounts.id", []string{"accounts", "transactions"}},
		{"left join", "SELECT * FROM transactions t LEFT JOIN categories c ON t.category_id = c.id", []string{"categories", "transactions"}},
		{"comma list", "SELECT * FROM transactions, accounts", []string{"accounts", "transactions"}},
		{"subquery", "SELECT * FROM (SELECT id FROM transactions) WHERE id > 5", []string{"transactions"}},
		{"in subquery", "SELECT * FROM accounts WHERE id IN (SELECT account_id FROM transactions)", []string{"accounts", "transactions"}},
		{"quoted table", `SELECT * FROM "transactions"`, []string{"transactions"}},
		{"line comment", "SELECT * FROM transactions -- trailing note", []string{"transactions"}},
		{"block comment", "SELECT /* hint */ * FROM transactions", []string{"transactions"}},
		{"parameter", "SELECT * FROM transactions WHERE id = ?", []string{"transactions"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := Classify(tt.sql)
			if err != nil {
				t.Fatalf("Classify(%q) error = %v", tt.sql, err)
			}
			if stmt.Op != OpSelect {
				t.Errorf("Op = %v, want SELECT", stmt.Op)
			}
			if stmt.HasWriteVerb() {
				t.Error("HasWriteVerb() = true for a pure SELECT")
			}
			if !reflect.DeepEqual(stmt.Tables, tt.wantTables) {
				t.Errorf("Tables = %v, want %v", stmt.Tables, tt.wantTables)
			}
		})
	}
}

func TestClassifyWrites(t *testing.T) {
	tests := []struct {
		name       string
		sql        string
		wantOp     Op
		wantTables []string
	}{
		{"insert", "INSERT INTO transactions (amount) VALUES (1)", OpInsert, []string{"transactions"}},
		{"replace", "REPLACE INTO sys_plugin_goals_items (id) VALUES (1)", OpInsert, []string{"sys_plugin_goals_items"}},
		{"update", "UPDATE transactions SET amount = 0 WHERE id = 1", OpUpdate, []string{"transactions"}},
		{"delete", "DELETE FROM transactions WHERE id = 1", OpDelete, []string{"transactions"}},
		{"create table", "CREATE TABLE sys_plugin_goals_items (id INTEGER PRIMARY KEY)", OpCreate, []string{"sys_plugin_goals_items"}},
		{"create if not exists", "CREATE TABLE IF NOT EXISTS sys_plugin_goals_items (id INTEGER)", OpCreate, []string{"sys_plugin_goals_items"}},
		{"drop table", "DROP TABLE transactions", OpDrop, []string{"transactions"}},
		{"alter table", "ALTER TABLE sys_plugin_goals_items ADD COLUMN note TEXT", OpAlter, []string{"sys_plugin_goals_items"}},
		{"create index", "CREATE INDEX idx_items ON sys_plugin_goals_items (id)", OpCreate, []string{"sys_plugin_goals_items"}},
		{"insert select", "INSERT INTO sys_plugin_goals_items SELECT id FROM transactions", OpInsert, []string{"sys_plugin_goals_items", "transactions"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := Classify(tt.sql)
			if err != nil {
				t.Fatalf("Classify(%q) error = %v", tt.sql, err)
			}
			if stmt.Op != tt.wantOp {
				t.Errorf("Op = %v, want %v", stmt.Op, tt.wantOp)
			}
			if !stmt.HasWriteVerb() {
				t.Error("HasWriteVerb() = false for a write statement")
			}
			if !reflect.DeepEqual(stmt.Tables, tt.wantTables) {
				t.Errorf("Tables = %v, want %v", stmt.Tables, tt.wantTables)
			}
		})
	}
}

func TestClassifyCTEWriteVerb(t *testing.T) {
	// A write hidden in a CTE body must surface as both the primary op and
	// the write-verb flag.
	stmt, err := Classify("WITH moved AS (DELETE FROM transactions RETURNING id) SELECT * FROM moved")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if stmt.Op != OpDelete {
		t.Errorf("Op = %v, want DELETE", stmt.Op)
	}
	if !stmt.HasWriteVerb() {
		t.Error("HasWriteVerb() = false for CTE-embedded DELETE")
	}
}

func TestClassifyReadOnlyCTE(t *testing.T) {
	stmt, err := Classify("WITH recent AS (SELECT * FROM transactions) SELECT * FROM recent")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if stmt.Op != OpSelect {
		t.Errorf("Op = %v, want SELECT", stmt.Op)
	}
	// Both the real table and the CTE name are reported; the CTE name is
	// checked against the grant like any table.
	want := []string{"recent", "transactions"}
	if !reflect.DeepEqual(stmt.Tables, want) {
		t.Errorf("Tables = %v, want %v", stmt.Tables, want)
	}
}

func TestClassifyRejections(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantErr error
	}{
		{"empty", "", ErrEmptyStatement},
		{"whitespace", "   \n\t", ErrEmptyStatement},
		{"only semicolon", ";", ErrEmptyStatement},
		{"two statements", "SELECT * FROM transactions; DROP TABLE transactions", ErrMultipleStatements},
		{"pragma", "PRAGMA table_info(transactions)", ErrUnsupportedStatement},
		{"attach", "ATTACH DATABASE '/tmp/x.db' AS other", ErrUnsupportedStatement},
		{"vacuum", "VACUUM", ErrUnsupportedStatement},
		{"begin", "BEGIN TRANSACTION", ErrUnsupportedStatement},
		{"ddl in cte", "WITH x AS (SELECT 1) CREATE TABLE y (id INT)", ErrUnsupportedStatement},
		{"table function", "SELECT * FROM pragma_table_info('transactions')", ErrAmbiguousTable},
		{"from string", "SELECT * FROM 'transactions'", ErrAmbiguousTable},
		{"dangling from", "SELECT * FROM", ErrAmbiguousTable},
		{"unterminated string", "SELECT * FROM transactions WHERE memo = 'oops", ErrUnterminatedToken},
		{"unterminated comment", "SELECT * FROM transactions /* oops", ErrUnterminatedToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Classify(tt.sql)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Classify(%q) error = %v, want %v", tt.sql, err, tt.wantErr)
			}
		})
	}
}

func TestClassifySchemaQualifiedName(t *testing.T) {
	// Dotted references are recorded verbatim so they never match a plain
	// granted table name.
	stmt, err := Classify("SELECT * FROM main.transactions")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	want := []string{"main.transactions"}
	if !reflect.DeepEqual(stmt.Tables, want) {
		t.Errorf("Tables = %v, want %v", stmt.Tables, want)
	}
}

func TestClassifyCaseSensitiveTables(t *testing.T) {
	stmt, err := Classify("SELECT * FROM Transactions")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(stmt.Tables) != 1 || stmt.Tables[0] != "Transactions" {
		t.Errorf("Tables = %v, want [Transactions]", stmt.Tables)
	}
}
