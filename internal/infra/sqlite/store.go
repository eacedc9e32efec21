// Package sqlite persists the ledger in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	_ "modernc.org/sqlite"

	"github.com/dvloznov/ledger-import/internal/ledger"
	"github.com/dvloznov/ledger-import/internal/logger"
)

// Migrations returns the schema statements. Each string is a single SQL
// statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			currency    TEXT NOT NULL DEFAULT '',
			kind        TEXT NOT NULL,
			placeholder INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			seq  INTEGER PRIMARY KEY AUTOINCREMENT,
			id   TEXT NOT NULL UNIQUE,
			date TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS entries (
			id         TEXT PRIMARY KEY,
			tx_id      TEXT NOT NULL,
			position   INTEGER NOT NULL,
			account_id TEXT NOT NULL,
			amount     INTEGER NOT NULL,
			memo       TEXT NOT NULL DEFAULT '',
			check_no   TEXT NOT NULL DEFAULT '',
			value_date TEXT NOT NULL DEFAULT '',
			tags       TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_tx ON entries(tx_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_account ON entries(account_id)`,
	}
}

// Store is a ledger.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	// One connection keeps writers serialised and makes :memory: usable.
	db.SetMaxOpenConns(1)

	for i, stmt := range Migrations() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("Open: migration %d: %w", i+1, err)
		}
	}
	log := logger.FromContext(ctx)
	log.Debug().Str("path", path).Msg("SQLite ledger opened")
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertAccount creates or updates an account.
func (s *Store) UpsertAccount(ctx context.Context, a *ledger.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, currency, kind, placeholder)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name        = excluded.name,
			currency    = excluded.currency,
			kind        = excluded.kind,
			placeholder = excluded.placeholder
	`, a.ID, a.Name, a.Currency, string(a.Kind), boolInt(a.Placeholder))
	if err != nil {
		return fmt.Errorf("UpsertAccount: %s: %w", a.ID, err)
	}
	return nil
}

// Load implements ledger.Store.
func (s *Store) Load(ctx context.Context) ([]*ledger.Account, []*ledger.Transaction, error) {
	accounts, err := s.loadAccounts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("Load: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, date FROM transactions ORDER BY seq`)
	if err != nil {
		return nil, nil, fmt.Errorf("Load: querying transactions: %w", err)
	}
	defer rows.Close()

	var txs []*ledger.Transaction
	byID := make(map[string]*ledger.Transaction)
	for rows.Next() {
		var id, date string
		if err := rows.Scan(&id, &date); err != nil {
			return nil, nil, fmt.Errorf("Load: scanning transaction: %w", err)
		}
		d, err := civil.ParseDate(date)
		if err != nil {
			return nil, nil, fmt.Errorf("Load: transaction %s date %q: %w", id, date, err)
		}
		t := ledger.NewTransaction(id, d)
		txs = append(txs, t)
		byID[id] = t
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("Load: iterating transactions: %w", err)
	}

	erows, err := s.db.QueryContext(ctx, `
		SELECT id, tx_id, account_id, amount, memo, check_no, value_date, tags
		FROM entries ORDER BY tx_id, position
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("Load: querying entries: %w", err)
	}
	defer erows.Close()

	for erows.Next() {
		var (
			id, txID, accountID, memo, check, valueDate, tags string
			amount                                            int64
		)
		if err := erows.Scan(&id, &txID, &accountID, &amount, &memo, &check, &valueDate, &tags); err != nil {
			return nil, nil, fmt.Errorf("Load: scanning entry: %w", err)
		}
		t, ok := byID[txID]
		if !ok {
			return nil, nil, fmt.Errorf("Load: entry %s of missing transaction %s", id, txID)
		}
		e := ledger.NewEntry(id, accountID, amount)
		e.Memo = memo
		e.Check = check
		if valueDate != "" {
			if e.ValueDate, err = civil.ParseDate(valueDate); err != nil {
				return nil, nil, fmt.Errorf("Load: entry %s value date %q: %w", id, valueDate, err)
			}
		}
		if err := decodeTags(e, tags); err != nil {
			return nil, nil, fmt.Errorf("Load: entry %s: %w", id, err)
		}
		t.AddEntry(e)
	}
	if err := erows.Err(); err != nil {
		return nil, nil, fmt.Errorf("Load: iterating entries: %w", err)
	}
	return accounts, txs, nil
}

func (s *Store) loadAccounts(ctx context.Context) ([]*ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, currency, kind, placeholder FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*ledger.Account
	for rows.Next() {
		var a ledger.Account
		var kind string
		var placeholder int
		if err := rows.Scan(&a.ID, &a.Name, &a.Currency, &kind, &placeholder); err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		a.Kind = ledger.AccountKind(kind)
		a.Placeholder = placeholder == 1
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

// Apply implements ledger.Store. All changes go through one SQL transaction.
func (s *Store) Apply(ctx context.Context, changes ledger.Changes) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Apply: begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, rbErr)
			}
		}
	}()

	for _, t := range changes.Created {
		if _, err := tx.ExecContext(ctx, `INSERT INTO transactions (id, date) VALUES (?, ?)`, t.ID, t.Date.String()); err != nil {
			return fmt.Errorf("Apply: creating transaction %s: %w", t.ID, err)
		}
		if err := insertEntries(ctx, tx, t); err != nil {
			return fmt.Errorf("Apply: %w", err)
		}
	}
	for _, t := range changes.Updated {
		res, err := tx.ExecContext(ctx, `UPDATE transactions SET date = ? WHERE id = ?`, t.Date.String(), t.ID)
		if err != nil {
			return fmt.Errorf("Apply: updating transaction %s: %w", t.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("Apply: updating transaction %s: %w", t.ID, ledger.ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE tx_id = ?`, t.ID); err != nil {
			return fmt.Errorf("Apply: clearing entries of %s: %w", t.ID, err)
		}
		if err := insertEntries(ctx, tx, t); err != nil {
			return fmt.Errorf("Apply: %w", err)
		}
	}
	for _, id := range changes.Deleted {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE tx_id = ?`, id); err != nil {
			return fmt.Errorf("Apply: deleting entries of %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("Apply: deleting transaction %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Apply: commit: %w", err)
	}
	return nil
}

func insertEntries(ctx context.Context, tx *sql.Tx, t *ledger.Transaction) error {
	for i, e := range t.Entries() {
		tags, err := json.Marshal(e.Tags())
		if err != nil {
			return fmt.Errorf("encoding tags of entry %s: %w", e.ID, err)
		}
		valueDate := ""
		if !e.ValueDate.IsZero() {
			valueDate = e.ValueDate.String()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO entries (id, tx_id, position, account_id, amount, memo, check_no, value_date, tags)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, t.ID, i, e.AccountID, e.Amount, e.Memo, e.Check, valueDate, string(tags))
		if err != nil {
			return fmt.Errorf("inserting entry %s of %s: %w", e.ID, t.ID, err)
		}
	}
	return nil
}

func decodeTags(e *ledger.Entry, raw string) error {
	if raw == "" {
		return nil
	}
	var tags map[ledger.Field]string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return fmt.Errorf("decoding tags: %w", err)
	}
	for f, v := range tags {
		e.SetTag(f, v)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure Store implements ledger.Store interface.
var _ ledger.Store = (*Store)(nil)
