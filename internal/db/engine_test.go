package db

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(filepath.Join(t.TempDir(), "treeline.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { e.Close() })
	if err := e.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return e
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("Open(\"\") should fail")
	}
}

func TestExecuteReturnsAffectedRows(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	n, err := e.Execute(ctx, "INSERT INTO accounts (name) VALUES (?)", "Checking")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if n != 1 {
		t.Errorf("rows affected = %d, want 1", n)
	}

	n, err = e.Execute(ctx, "UPDATE accounts SET balance = 100 WHERE name = ?", "Checking")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if n != 1 {
		t.Errorf("rows affected = %d, want 1", n)
	}
}

func TestQueryReturnsRowMaps(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	if _, err := e.Execute(ctx, "INSERT INTO accounts (name, balance) VALUES ('Savings', 50)"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	rows, err := e.Query(ctx, "SELECT name, balance FROM accounts")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0]["name"] != "Savings" {
		t.Errorf("name = %v, want Savings", rows[0]["name"])
	}
}

func TestSeedDemoDefault(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	if err := e.SeedDemo(ctx, "default"); err != nil {
		t.Fatalf("SeedDemo() error = %v", err)
	}

	rows, err := e.Query(ctx, "SELECT COUNT(*) AS n FROM transactions")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if n, ok := rows[0]["n"].(int64); !ok || n == 0 {
		t.Errorf("transaction count = %v, want > 0", rows[0]["n"])
	}
}

func TestSeedDemoUnknownScenario(t *testing.T) {
	e := openTestEngine(t)
	if err := e.SeedDemo(context.Background(), "galactic"); err == nil {
		t.Error("unknown scenario should fail")
	}
}

func TestScenariosSorted(t *testing.T) {
	s := Scenarios()
	if len(s) < 2 {
		t.Fatalf("Scenarios() len = %d", len(s))
	}
	if s[0].Name != "default" || s[1].Name != "empty" {
		t.Errorf("order = [%s, %s]", s[0].Name, s[1].Name)
	}
}
