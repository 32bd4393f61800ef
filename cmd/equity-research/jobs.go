// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/equity-research/internal/jobstore"
	"github.com/pdiddy/equity-research/pkg/types"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect stored research jobs",
	Long: `Jobs reads the SQLite job store: list past jobs, show one job's
outcomes and report, replay its status events, search gathered documents
with full-text search, or export a job to YAML or JSON.`,
}

// --- list ---

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withStore(func(ctx context.Context, s *jobstore.Store) error {
			jobs, err := s.ListJobs(ctx, limit)
			if err != nil {
				return err
			}
			if jsonFlag(cmd) {
				return printJSON(os.Stdout, jobs)
			}
			if len(jobs) == 0 {
				fmt.Println("No jobs found.")
				return nil
			}
			fmt.Fprintf(os.Stdout, "%-36s  %-11s  %-25s  %s\n", "Job", "Phase", "Company", "Created")
			fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
			for _, j := range jobs {
				fmt.Fprintf(os.Stdout, "%-36s  %-11s  %-25s  %s\n", j.ID, j.Phase, clip(j.Company.Name, 25), j.CreatedAt)
			}
			return nil
		})
	},
}

// --- show ---

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a job's analyst outcomes and report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, s *jobstore.Store) error {
			rec, err := s.Job(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonFlag(cmd) {
				return printJSON(os.Stdout, rec)
			}
			printJob(os.Stdout, rec)
			return nil
		})
	},
}

func printJob(w io.Writer, rec *jobstore.JobRecord) {
	fmt.Fprintf(w, "Job:     %s\n", rec.ID)
	fmt.Fprintf(w, "Company: %s\n", rec.Company.Name)
	fmt.Fprintf(w, "Phase:   %s\n", rec.Phase)
	fmt.Fprintf(w, "Updated: %s\n\n", rec.UpdatedAt)
	for _, o := range rec.Outcomes {
		line := fmt.Sprintf("  %-20s %-9s raw=%d curated=%d", o.Kind.Label(), o.Outcome, o.RawCount, o.CuratedCount)
		if o.Error != "" {
			line += "  " + o.Error
		}
		if len(o.StageErrors) > 0 {
			line += "  (" + strings.Join(o.StageErrors, "; ") + ")"
		}
		fmt.Fprintln(w, line)
	}
	if rec.Report != "" {
		fmt.Fprintf(w, "\n%s", rec.Report)
	}
}

// --- events ---

var jobsEventsCmd = &cobra.Command{
	Use:   "events <job-id>",
	Short: "Replay a job's status events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, s *jobstore.Store) error {
			events, err := s.Events(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonFlag(cmd) {
				return printJSON(os.Stdout, events)
			}
			for _, ev := range events {
				fmt.Fprintf(os.Stdout, "%-10s  %-20s  %s\n", ev.Status, clip(ev.Result.Step, 20), ev.Message)
			}
			return nil
		})
	},
}

// --- search ---

var jobsSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Full-text search over gathered documents",
	Long: `Search matches stored documents with FTS5 full-text search, optionally
restricted to one job, one analyst kind, or curated documents only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := jobstore.DocumentQuery{Query: strings.Join(args, " ")}
		q.JobID, _ = cmd.Flags().GetString("job")
		q.CuratedOnly, _ = cmd.Flags().GetBool("curated")
		q.MaxResults, _ = cmd.Flags().GetInt("limit")
		if kind, _ := cmd.Flags().GetString("kind"); kind != "" {
			k, err := types.ParseKind(kind)
			if err != nil {
				return err
			}
			q.Kind = k
		}
		if q.Query == "" && q.JobID == "" && q.Kind == "" {
			return errors.New("query or filter required: provide a search query, --job, or --kind")
		}

		return withStore(func(ctx context.Context, s *jobstore.Store) error {
			hits, err := s.SearchDocuments(ctx, q)
			if err != nil {
				return err
			}
			if jsonFlag(cmd) {
				return printJSON(os.Stdout, hits)
			}
			if len(hits) == 0 {
				fmt.Println("No results found.")
				return nil
			}
			fmt.Fprintf(os.Stdout, "%-4s  %-11s  %-5s  %-45s  %s\n", "Rank", "Kind", "Score", "Title", "URL")
			fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
			for i, h := range hits {
				fmt.Fprintf(os.Stdout, "%-4d  %-11s  %-5.2f  %-45s  %s\n", i+1, h.Kind, h.Score, clip(h.Title, 45), h.URL)
			}
			fmt.Fprintf(os.Stdout, "\n%d results\n", len(hits))
			return nil
		})
	},
}

// --- export ---

var jobsExportCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Export a job to YAML or JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		return withStore(func(ctx context.Context, s *jobstore.Store) error {
			var (
				path string
				err  error
			)
			switch format {
			case "yaml", "":
				path, err = s.ExportYAML(ctx, args[0])
			case "json":
				path, err = s.ExportJSON(ctx, args[0])
			default:
				return fmt.Errorf("unsupported format %q: use yaml or json", format)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Exported to %s\n", path)
			return nil
		})
	},
}

// --- shared helpers ---

func withStore(fn func(ctx context.Context, s *jobstore.Store) error) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if cfg.Store.Path == "" {
		return errors.New("no job store configured: set store.path")
	}
	s, err := jobstore.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(context.Background(), s)
}

func jsonFlag(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	jobsCmd.PersistentFlags().Bool("json", false, "output as JSON")

	jobsListCmd.Flags().Int("limit", 0, "maximum jobs (0 = store default)")

	jobsSearchCmd.Flags().String("job", "", "restrict to one job")
	jobsSearchCmd.Flags().String("kind", "", "restrict to one analyst kind")
	jobsSearchCmd.Flags().Bool("curated", false, "only documents kept by curation")
	jobsSearchCmd.Flags().Int("limit", 0, "maximum results (0 = store default)")

	jobsExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsEventsCmd)
	jobsCmd.AddCommand(jobsSearchCmd)
	jobsCmd.AddCommand(jobsExportCmd)

	rootCmd.AddCommand(jobsCmd)
}
