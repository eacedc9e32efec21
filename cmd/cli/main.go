package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dvloznov/ledger-import/internal/config"
	"github.com/dvloznov/ledger-import/internal/logger"
)

// options are shared by every subcommand.
type options struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "ledger",
		Short: "Import statements and order histories into the ledger",
		Long: `Reconcile bank, card and retailer exports with an existing
double-entry ledger. Each import runs as one batch: either every record
lands or nothing does.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			opts.cfg = cfg

			log := logger.New(cfg.Log.Level)
			cmd.SetContext(logger.WithContext(cmd.Context(), log))
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config.yaml")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (overrides config)")

	root.AddCommand(newImportCmd(opts))
	root.AddCommand(newUploadCmd(opts))
	root.AddCommand(newInspectCmd(opts))
	root.AddCommand(newAccountsCmd(opts))
	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
