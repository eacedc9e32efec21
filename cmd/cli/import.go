package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dvloznov/ledger-import/internal/app"
	"github.com/dvloznov/ledger-import/internal/jobs"
	"github.com/dvloznov/ledger-import/internal/source"
)

func newImportCmd(opts *options) *cobra.Command {
	var (
		accountID     string
		kind          string
		authoritative bool
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import one statement or order history as a batch",
		Long: `Import a local file or gs:// object into the ledger. The source kind
is taken from --source or guessed from the file extension; order histories
always need --source orders.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			location := args[0]
			if kind == "" {
				k, ok := source.KindFromFilename(filepath.Base(location))
				if !ok {
					return fmt.Errorf("cannot guess the source kind of %s, pass --source", location)
				}
				kind = string(k)
			}

			a, err := app.New(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			job := &jobs.ImportJob{
				JobID:         uuid.NewString(),
				Source:        kind,
				Location:      location,
				AccountID:     accountID,
				Authoritative: authoritative,
			}
			if err := a.Runner.Handle(cmd.Context(), job); err != nil {
				if job.ErrorKey != "" {
					return fmt.Errorf("batch %s rejected at %s: %w", job.BatchID, job.ErrorKey, err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, job.Result.Summary)
			for _, id := range job.Result.Held {
				fmt.Fprintf(out, "  held: order %s has undispatched shipments\n", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&accountID, "account", "a", "", "Capital account the file describes")
	cmd.Flags().StringVarP(&kind, "source", "s", "", "Source kind: csv, xlsx, qif, ofx, pdf or orders")
	cmd.Flags().BoolVar(&authoritative, "authoritative", false, "Let this file's amounts supersede matched entries")
	cmd.MarkFlagRequired("account")
	return cmd
}

func newUploadCmd(opts *options) *cobra.Command {
	var object string
	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a statement to the configured GCS bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket := opts.cfg.API.Bucket
			if bucket == "" {
				return errors.New("api.bucket is not configured")
			}
			if object == "" {
				object = filepath.Base(args[0])
			}
			uri := fmt.Sprintf("gs://%s/%s", bucket, object)

			f, err := source.Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if err := source.UploadGCS(cmd.Context(), uri, f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s to %s\n", args[0], uri)
			return nil
		},
	}
	cmd.Flags().StringVar(&object, "object", "", "GCS object name (defaults to the filename)")
	return cmd
}
