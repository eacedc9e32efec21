package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dvloznov/ledger-import/internal/app"
	"github.com/dvloznov/ledger-import/internal/ledger"
	"github.com/dvloznov/ledger-import/internal/money"
)

func newInspectCmd(opts *options) *cobra.Command {
	var showTags bool
	cmd := &cobra.Command{
		Use:   "inspect ACCOUNT",
		Short: "List the entries posted to an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := app.OpenStore(ctx, opts.cfg.Ledger)
			if err != nil {
				return err
			}
			defer store.Close()

			book, err := ledger.Open(ctx, store)
			if err != nil {
				return err
			}
			account, ok := book.Account(args[0])
			if !ok {
				return fmt.Errorf("account %s: %w", args[0], ledger.ErrUnknownAccount)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "=== %s (%s) ===\n", account.Name, account.ID)

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tAMOUNT\tOTHER\tMEMO")
			var balance int64
			entries := book.EntriesFor(account.ID)
			for _, e := range entries {
				balance += e.Amount
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Date(), money.Format(e.Amount), otherAccounts(e), e.Memo)
				if showTags {
					if tags := formatTags(e.Tags()); tags != "" {
						fmt.Fprintf(w, "\t\t\t%s\n", tags)
					}
				}
			}
			w.Flush()
			fmt.Fprintf(out, "%d entries, balance %s %s\n", len(entries), money.Format(balance), account.Currency)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showTags, "tags", false, "Print each entry's tagged fields")
	return cmd
}

func otherAccounts(e *ledger.Entry) string {
	var ids []string
	for _, o := range e.Transaction().Entries() {
		if o.ID != e.ID {
			ids = append(ids, o.AccountID)
		}
	}
	return strings.Join(ids, ",")
}

func formatTags(tags map[ledger.Field]string) string {
	parts := make([]string, 0, len(tags))
	for f, v := range tags {
		parts = append(parts, fmt.Sprintf("%s=%s", f, v))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
