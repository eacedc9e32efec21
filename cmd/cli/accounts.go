package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dvloznov/ledger-import/internal/app"
	"github.com/dvloznov/ledger-import/internal/ledger"
)

func newAccountsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage ledger accounts",
		Long: `Importers never create accounts. Register capital accounts, categories
and exactly one placeholder account here before the first import.`,
	}
	cmd.AddCommand(newAccountsAddCmd(opts))
	cmd.AddCommand(newAccountsListCmd(opts))
	return cmd
}

func newAccountsAddCmd(opts *options) *cobra.Command {
	var (
		name        string
		currency    string
		kind        string
		placeholder bool
	)
	cmd := &cobra.Command{
		Use:   "add ID",
		Short: "Create or update an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k := ledger.AccountKind(strings.ToUpper(kind))
			if k != ledger.KindCapital && k != ledger.KindCategory {
				return fmt.Errorf("kind %q: must be capital or category", kind)
			}
			if name == "" {
				name = args[0]
			}

			store, err := app.OpenStore(cmd.Context(), opts.cfg.Ledger)
			if err != nil {
				return err
			}
			defer store.Close()

			a := &ledger.Account{ID: args[0], Name: name, Currency: currency, Kind: k, Placeholder: placeholder}
			if err := store.UpsertAccount(cmd.Context(), a); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s saved\n", a.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the ID)")
	cmd.Flags().StringVar(&currency, "currency", "", "ISO currency code")
	cmd.Flags().StringVar(&kind, "kind", "category", "capital or category")
	cmd.Flags().BoolVar(&placeholder, "placeholder", false, "Post unclassified amounts here")
	return cmd
}

func newAccountsListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.OpenStore(cmd.Context(), opts.cfg.Ledger)
			if err != nil {
				return err
			}
			defer store.Close()

			accounts, _, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tKIND\tCURRENCY")
			for _, a := range accounts {
				id := a.ID
				if a.Placeholder {
					id += " *"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, a.Name, a.Kind, a.Currency)
			}
			return w.Flush()
		},
	}
}
