// Package bigquery persists the ledger in BigQuery.
//
// Entries are stored one row each in the entries table; a transaction is the
// set of rows sharing a transaction_id. Every Apply runs as one multi-statement
// transaction so a batch is stored whole or not at all.
package bigquery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/ledger-import/internal/ledger"
	"github.com/dvloznov/ledger-import/internal/logger"
)

// Store is a ledger.Store backed by a BigQuery dataset.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	now       func() time.Time

	mu sync.Mutex
	// created remembers each stored transaction's created_ts so updates
	// keep their place in the book.
	created map[string]time.Time
}

// NewStore connects to the dataset in project.
func NewStore(ctx context.Context, projectID, datasetID string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return NewStoreWithClient(client, projectID, datasetID), nil
}

// NewStoreWithClient builds a store on an existing client. The store takes
// ownership of the client.
func NewStoreWithClient(client *bigquery.Client, projectID, datasetID string) *Store {
	return &Store{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		now:       time.Now,
		created:   make(map[string]time.Time),
	}
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) table(name string) string {
	return fmt.Sprintf("%s.%s.%s", s.projectID, s.datasetID, name)
}

// Load implements ledger.Store.
func (s *Store) Load(ctx context.Context) ([]*ledger.Account, []*ledger.Transaction, error) {
	accounts, err := s.loadAccounts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("Load: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT
			entry_id,
			transaction_id,
			transaction_date,
			position,
			account_id,
			amount,
			memo,
			check_number,
			value_date,
			tags,
			created_ts
		FROM `+"`%s`"+`
		ORDER BY created_ts, transaction_id, position
	`, s.table(entriesTable))

	it, err := s.client.Query(query).Read(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("Load: reading entries: %w", err)
	}

	var rows []*EntryRow
	for {
		var row EntryRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("Load: iterating entries: %w", err)
		}
		rows = append(rows, &row)
	}

	txs, created, err := transactionsFromRows(rows)
	if err != nil {
		return nil, nil, fmt.Errorf("Load: %w", err)
	}

	s.mu.Lock()
	s.created = created
	s.mu.Unlock()

	log := logger.FromContext(ctx)
	log.Debug().
		Str("dataset", s.datasetID).
		Int("entries", len(rows)).
		Int("transactions", len(txs)).
		Msg("BigQuery ledger loaded")
	return accounts, txs, nil
}

func (s *Store) loadAccounts(ctx context.Context) ([]*ledger.Account, error) {
	query := fmt.Sprintf(`
		SELECT account_id, name, currency, kind, placeholder, created_ts
		FROM `+"`%s`"+`
		ORDER BY account_id
	`, s.table(accountsTable))

	it, err := s.client.Query(query).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading accounts: %w", err)
	}

	var accounts []*ledger.Account
	for {
		var row AccountRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating accounts: %w", err)
		}
		accounts = append(accounts, accountFromRow(&row))
	}
	return accounts, nil
}

// Apply implements ledger.Store.
func (s *Store) Apply(ctx context.Context, changes ledger.Changes) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	script, err := buildApplyScript(s.table(entriesTable), changes, s.created, now)
	if err != nil {
		return fmt.Errorf("Apply: %w", err)
	}
	if script == nil {
		return nil
	}

	q := s.client.Query(script.SQL)
	q.Parameters = script.Params
	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("Apply: %w", err)
	}

	for _, t := range changes.Created {
		s.created[t.ID] = now
	}
	for _, id := range changes.Deleted {
		delete(s.created, id)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Int("created", len(changes.Created)).
		Int("updated", len(changes.Updated)).
		Int("deleted", len(changes.Deleted)).
		Msg("BigQuery ledger updated")
	return nil
}

// UpsertAccount creates or updates an account.
func (s *Store) UpsertAccount(ctx context.Context, a *ledger.Account) error {
	q := s.client.Query(fmt.Sprintf(`
		MERGE `+"`%s`"+` T
		USING (SELECT
			@account_id AS account_id,
			@name AS name,
			@currency AS currency,
			@kind AS kind,
			@placeholder AS placeholder
		) S
		ON T.account_id = S.account_id
		WHEN MATCHED THEN UPDATE SET
			name = S.name,
			currency = S.currency,
			kind = S.kind,
			placeholder = S.placeholder
		WHEN NOT MATCHED THEN INSERT (account_id, name, currency, kind, placeholder, created_ts)
			VALUES (S.account_id, S.name, S.currency, S.kind, S.placeholder, CURRENT_TIMESTAMP())
	`, s.table(accountsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: a.ID},
		{Name: "name", Value: a.Name},
		{Name: "currency", Value: a.Currency},
		{Name: "kind", Value: string(a.Kind)},
		{Name: "placeholder", Value: a.Placeholder},
	}
	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("UpsertAccount: %s: %w", a.ID, err)
	}
	return nil
}

func runQuery(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

// Ensure Store implements ledger.Store interface.
var _ ledger.Store = (*Store)(nil)
