package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/importer/internal/application"
	"github.com/JonMunkholm/importer/internal/schema"
)

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	var entity string

	cmd := &cobra.Command{
		Use:   "analyze <file> [--entity students]",
		Short: "Show inferred column types and field mappings without importing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd, false)
			if err != nil {
				return err
			}
			app, err := application.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			a, err := app.Pipeline.Analyze(cmd.Context(), args[0], schema.EntityType(entity))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if root.JSON {
				return writeJSON(out, a)
			}

			fmt.Fprintf(out, "%s: %d rows\n\n", a.FileName, a.TotalRows)
			targets := make(map[int]string, len(a.Columns))
			for _, c := range a.Columns {
				targets[c.Index] = c.Target
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "COLUMN\tNORMALIZED\tTYPE\tCONFIDENCE\tFIELD")
			for _, h := range a.Headers {
				fm := a.FieldMappings[h.Normalized]
				field := targets[h.Index]
				if field == "" {
					field = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n", h.Original, h.Normalized, fm.InferredType.Type, fm.InferredType.Confidence, field)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			printWarnings(out, a.Warnings)
			return nil
		},
	}

	cmd.Flags().StringVar(&entity, "entity", "", "target entity (students, books, equipment) to preview mapping")
	return cmd
}
