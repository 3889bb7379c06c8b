package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/importer/internal/application"
	"github.com/JonMunkholm/importer/internal/importer"
	"github.com/JonMunkholm/importer/internal/pipeline"
	"github.com/JonMunkholm/importer/internal/schema"
)

type importOptions struct {
	Entity          string
	DryRun          bool
	RulesFile       string
	BatchSize       int
	MaxErrors       int
	SkipInvalid     bool
	RollbackOnError bool
}

// importReport is the JSON output of the import command.
type importReport struct {
	Result      *pipeline.TransformationResult `json:"result"`
	Transaction *importer.ImportTransaction    `json:"transaction,omitempty"`
	Rollback    *importer.RollbackResult       `json:"rollback,omitempty"`
}

var errImportFailed = errors.New("import finished with errors")

func newImportCmd(root *rootOptions) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import <file> --entity <students|books|equipment>",
		Short: "Validate a file and persist its valid rows in one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Entity == "" {
				return errors.New("--entity is required")
			}

			cfg, err := root.loadConfig(cmd, !opts.DryRun)
			if err != nil {
				return err
			}
			if opts.RulesFile != "" {
				cfg.Import.RulesFile = opts.RulesFile
			}
			if opts.BatchSize > 0 {
				cfg.Import.TransactionBatchSize = opts.BatchSize
			}

			ctx := cmd.Context()
			app, err := application.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			popts := app.Options()
			popts.DryRun = opts.DryRun
			popts.SkipInvalidRows = pipeline.Bool(opts.SkipInvalid)
			if opts.MaxErrors > 0 {
				popts.MaxErrors = opts.MaxErrors
			}

			res, err := app.Pipeline.ProcessFile(ctx, args[0], schema.EntityType(opts.Entity), popts)
			if err != nil {
				return fmt.Errorf("%s: %w", pipeline.FormatUserError(err), err)
			}
			report := importReport{Result: res}

			if !res.DryRun && len(res.Data) > 0 {
				tx, err := app.Manager.Import(ctx, res, cfg.Import.TransactionBatchSize, map[string]any{"fileName": res.FileName})
				if tx == nil {
					return err
				}
				report.Transaction = tx

				if tx.Status == importer.StatusFailed && opts.RollbackOnError {
					rb, rerr := app.Manager.RollbackTransaction(ctx, tx.ID)
					if rerr != nil {
						return rerr
					}
					report.Rollback = rb
				}
			}

			out := cmd.OutOrStdout()
			if root.JSON {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else {
				printImport(out, report)
			}

			if !res.Success || (report.Transaction != nil && report.Transaction.Status != importer.StatusCompleted) {
				return errImportFailed
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Entity, "entity", "", "target entity: students, books or equipment")
	f.BoolVar(&opts.DryRun, "dry-run", false, "validate only, persist nothing")
	f.StringVar(&opts.RulesFile, "rules", "", "YAML file with field mappings and validation rules")
	f.IntVar(&opts.BatchSize, "batch-size", 0, "records per transaction batch (default from IMPORT_BATCH_SIZE)")
	f.IntVar(&opts.MaxErrors, "max-errors", 0, "error rows tolerated before the run is unsuccessful (default from IMPORT_MAX_ERRORS)")
	f.BoolVar(&opts.SkipInvalid, "skip-invalid", true, "skip invalid rows instead of stopping at the first one")
	f.BoolVar(&opts.RollbackOnError, "rollback-on-error", false, "roll the transaction back when any record fails to persist")
	return cmd
}

func printImport(w io.Writer, r importReport) {
	res := r.Result
	fmt.Fprintf(w, "%s -> %s\n", res.FileName, res.Entity)
	fmt.Fprintf(w, "  rows: %d total, %d valid, %d invalid (%.1f%% error rate)\n",
		res.TotalRows, res.SuccessRows, res.ErrorRows, res.Statistics.ErrorRate*100)
	if res.DryRun {
		fmt.Fprintln(w, "  dry run: nothing persisted")
	}

	if tx := r.Transaction; tx != nil {
		fmt.Fprintf(w, "  transaction %s: %s\n", tx.ID, tx.Status)
		fmt.Fprintf(w, "  records: %d created, %d updated, %d failed in %d batches\n",
			len(tx.CreatedRecords), len(tx.UpdatedRecords), tx.ErrorRecords, tx.Batches)
		if tx.RollbackRecommended {
			fmt.Fprintln(w, "  rollback recommended: high error rate")
		}
		for i, e := range tx.Errors {
			if i == maxPrinted {
				fmt.Fprintf(w, "  ... %d more\n", len(tx.Errors)-maxPrinted)
				break
			}
			fmt.Fprintf(w, "  record %d (%s): %s\n", e.Index, e.ExternalID, e.Message)
		}
	}
	if rb := r.Rollback; rb != nil {
		fmt.Fprintf(w, "  rolled back: %d deleted, %d restored (success: %t)\n",
			rb.DeletedRecords, rb.RestoredRecords, rb.Success)
	}

	printRowErrors(w, res.Errors)
	printWarnings(w, res.Warnings)
}
