package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/labtranscriber/labtranscriber/internal/domain/labreport"
	"github.com/labtranscriber/labtranscriber/internal/labparse"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <file|->",
		Short: "Parse one lab report and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			save, _ := cmd.Flags().GetBool("save")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())
			ctx := logger.WithContext(cmd.Context())

			if save {
				st, err := openStorage(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer st.close()
				svc, _ := newService(cfg, st.repo, logger)
				docs, err := documentStore(cfg)
				if err != nil {
					return err
				}
				svc.SetDocumentStore(docs)

				lr, err := saveDocument(ctx, svc, args[0], cmd.InOrStdin())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), lr)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n\nStored as %s\n", lr.Summary, lr.ID)
				return nil
			}

			text, err := readDocument(ctx, args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			svc, _ := newService(cfg, nil, logger)
			out := svc.Parse(ctx, text)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Summary)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print the full result as JSON")
	cmd.Flags().Bool("save", false, "Store the parsed report in the configured database")
	return cmd
}

// batchResult is the outcome for one file of a batch run.
type batchResult struct {
	File    string          `json:"file"`
	Summary string          `json:"summary,omitempty"`
	Stats   *labparse.Stats `json:"stats,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <file>...",
		Short: "Parse many lab reports concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			workers, _ := cmd.Flags().GetInt("workers")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if workers <= 0 {
				workers = cfg.BatchWorkers
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())
			svc, _ := newService(cfg, nil, logger)

			results := runBatch(cmd, svc, args, workers)

			failed := 0
			for _, r := range results {
				if r.Error != "" {
					failed++
				}
			}
			logger.Info().Int("files", len(results)).Int("failed", failed).Msg("batch finished")

			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			} else {
				printBatch(cmd.OutOrStdout(), results)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print results as JSON")
	cmd.Flags().Int("workers", 0, "Concurrent documents (default BATCH_WORKERS)")
	return cmd
}

// runBatch parses files with at most workers in flight. Results keep the
// order of files; a failing file does not stop the others.
func runBatch(cmd *cobra.Command, svc *labreport.Service, files []string, workers int) []batchResult {
	results := make([]batchResult, len(files))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(workers)
	stdin := cmd.InOrStdin()

	for i, file := range files {
		g.Go(func() error {
			results[i].File = file
			if err := ctx.Err(); err != nil {
				results[i].Error = err.Error()
				return nil
			}
			text, err := readDocument(ctx, file, stdin)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			out := svc.Parse(ctx, text)
			results[i].Summary = out.Summary
			results[i].Stats = &out.Result.Stats
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func printBatch(w io.Writer, results []batchResult) {
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "== %s ==\n", r.File)
		if r.Error != "" {
			fmt.Fprintf(w, "error: %s\n", r.Error)
			continue
		}
		fmt.Fprintln(w, r.Summary)
	}
}

func diagnoseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose <file|->",
		Short: "Show the lines of a report the parameter configuration misses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			threshold, _ := cmd.Flags().GetFloat64("threshold")
			if threshold < 0 || threshold > 1 {
				return errors.New("threshold must be between 0 and 1")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())
			ctx := logger.WithContext(cmd.Context())

			text, err := readDocument(ctx, args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			svc, _ := newService(cfg, nil, logger)
			diag := svc.Diagnose(ctx, text, threshold)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), diag)
			}
			printDiagnosis(cmd.OutOrStdout(), diag)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print the diagnosis as JSON")
	cmd.Flags().Float64("threshold", labparse.DiagnosticFuzzyThreshold, "Similarity threshold for suggestions")
	return cmd
}

func printDiagnosis(w io.Writer, d *labreport.Diagnosis) {
	det := d.Detection
	fmt.Fprintf(w, "Detected %d parameters on %d lines with values (%.0f%%)\n",
		det.DetectedCount, det.LinesWithValues, det.DetectionRate*100)

	if len(det.Missed) > 0 {
		fmt.Fprintln(w, "\nLines with values not accounted for:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, m := range det.Missed {
			guess := "-"
			if m.Guess != "" {
				guess = fmt.Sprintf("%s (%.2f)", m.Guess, m.Score)
			}
			fmt.Fprintf(tw, "  %d\t%s\t%s\n", m.Line+1, m.Text, guess)
		}
		tw.Flush()
	}
	if len(d.Unrecognized) > 0 {
		fmt.Fprintln(w, "\nLines without a known parameter name:")
		for _, line := range d.Unrecognized {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the parameter configuration",
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Load the parameter configuration and list its problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())
			svc, configs := newService(cfg, nil, logger)
			snap := configs.Current()
			catalog := svc.Parameters()

			out := cmd.OutOrStdout()
			path := snap.Path
			if path == "" {
				path = "(none)"
			}
			fmt.Fprintf(out, "File:       %s\n", path)
			fmt.Fprintf(out, "Parameters: %d\n", len(snap.Index.Parameters()))
			fmt.Fprintf(out, "Categories: %d\n", len(snap.Index.Categories()))

			if len(catalog.Issues) == 0 {
				fmt.Fprintln(out, "No issues found.")
			} else {
				fmt.Fprintf(out, "\n%d issue(s):\n", len(catalog.Issues))
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				for _, is := range catalog.Issues {
					fmt.Fprintf(tw, "  %s\t%s\t%s\n", is.Kind, is.Subject, is.Detail)
				}
				tw.Flush()
			}

			if snap.Err != nil {
				return fmt.Errorf("configuration not usable: %w", snap.Err)
			}
			return nil
		},
	}
	cmd.AddCommand(checkCmd)
	return cmd
}
