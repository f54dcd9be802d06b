package db

import (
	"context"
	"fmt"
	"sort"
)

// DemoScenario seeds the database with a named data set for trying the
// host without connecting real accounts.
type DemoScenario struct {
	Name        string
	Description string
	Setup       func(ctx context.Context, e *Engine) error
}

// Scenarios returns the available demo scenarios, sorted by name.
func Scenarios() []DemoScenario {
	out := make([]DemoScenario, 0, len(demoScenarios))
	for _, s := range demoScenarios {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SeedDemo runs the named scenario against a migrated database.
func (e *Engine) SeedDemo(ctx context.Context, scenario string) error {
	s, ok := demoScenarios[scenario]
	if !ok {
		return fmt.Errorf("db: unknown demo scenario %q", scenario)
	}
	if s.Setup == nil {
		return nil
	}
	return s.Setup(ctx, e)
}

var demoScenarios = map[string]DemoScenario{
	"empty": {
		Name:        "empty",
		Description: "Empty database for testing the new user experience",
	},
	"default": {
		Name:        "default",
		Description: "Full sample data (accounts, categories, transactions)",
		Setup:       seedDefault,
	},
}

func seedDefault(ctx context.Context, e *Engine) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db: seed demo: %w", err)
	}
	defer tx.Rollback()

	accounts := []struct {
		name, kind string
		balance    float64
	}{
		{"Everyday Checking", "checking", 2841.52},
		{"Rainy Day Savings", "savings", 12030.00},
		{"Travel Card", "credit", -412.18},
	}
	accountIDs := make([]int64, 0, len(accounts))
	for _, a := range accounts {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO accounts (name, kind, balance) VALUES (?, ?, ?)",
			a.name, a.kind, a.balance)
		if err != nil {
			return fmt.Errorf("db: seed account %q: %w", a.name, err)
		}
		id, _ := res.LastInsertId()
		accountIDs = append(accountIDs, id)
	}

	categories := []struct{ name, icon string }{
		{"Groceries", "cart"},
		{"Rent", "home"},
		{"Dining", "utensils"},
		{"Transport", "bus"},
		{"Salary", "banknote"},
	}
	categoryIDs := make(map[string]int64, len(categories))
	for _, c := range categories {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO categories (name, icon) VALUES (?, ?)", c.name, c.icon)
		if err != nil {
			return fmt.Errorf("db: seed category %q: %w", c.name, err)
		}
		id, _ := res.LastInsertId()
		categoryIDs[c.name] = id
	}

	transactions := []struct {
		account  int
		category string
		amount   float64
		memo     string
		postedAt string
	}{
		{0, "Salary", 3200.00, "August salary", "2026-08-01 09:00:00"},
		{0, "Rent", -1450.00, "August rent", "2026-08-02 08:00:00"},
		{0, "Groceries", -86.43, "Weekly shop", "2026-08-05 17:21:00"},
		{0, "Dining", -34.90, "Pasta night", "2026-08-08 20:05:00"},
		{2, "Transport", -52.00, "Train tickets", "2026-08-10 07:45:00"},
		{0, "Groceries", -91.12, "Weekly shop", "2026-08-12 18:02:00"},
		{1, "", 150.00, "Monthly transfer", "2026-08-15 10:00:00"},
		{2, "Dining", -61.75, "Birthday dinner", "2026-08-20 21:14:00"},
	}
	for _, txn := range transactions {
		var categoryID any
		if txn.category != "" {
			categoryID = categoryIDs[txn.category]
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO transactions (account_id, category_id, amount, memo, posted_at) VALUES (?, ?, ?, ?, ?)",
			accountIDs[txn.account], categoryID, txn.amount, txn.memo, txn.postedAt)
		if err != nil {
			return fmt.Errorf("db: seed transaction %q: %w", txn.memo, err)
		}
	}

	return tx.Commit()
}
