// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/equity-research/internal/orchestrator"
	"github.com/pdiddy/equity-research/pkg/types"
)

var researchCmd = &cobra.Command{
	Use:   "research <company>",
	Short: "Research one company and print the report",
	Long: `Research runs every configured analyst against the company, curates
and briefs what they find, and prints the compiled markdown report.

Progress is logged to stderr. Use --output to write the report to a file
and --json for the full result (report, references, failed analysts).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

// researchOutput is the --json shape.
type researchOutput struct {
	JobID      string            `json:"job_id"`
	Company    types.Company     `json:"company"`
	Report     string            `json:"report"`
	References []string          `json:"references"`
	Failed     map[string]string `json:"failed,omitempty"`
	Duration   string            `json:"duration"`
}

func runResearch(cmd *cobra.Command, args []string) error {
	company := types.Company{Name: strings.Join(args, " ")}
	company.URL, _ = cmd.Flags().GetString("url")
	company.Industry, _ = cmd.Flags().GetString("industry")
	company.HQLocation, _ = cmd.Flags().GetString("hq")
	company.Ticker, _ = cmd.Flags().GetString("ticker")
	outPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if scrape, _ := cmd.Flags().GetBool("scrape"); scrape {
		cfg.Scrape.Enabled = true
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobID := uuid.NewString()
	if err := a.service.Submit(ctx, jobID, company); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Researching %s (job %s)\n", company.Name, jobID)

	res, err := a.service.Run(ctx, jobID, company)
	var jerr *orchestrator.JobError
	if errors.As(err, &jerr) {
		kinds := make([]string, 0, len(jerr.Failures))
		for k := range jerr.Failures {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(os.Stderr, "  %-12s %s\n", k, jerr.Failures[types.AnalystKind(k)])
		}
	}
	if err != nil {
		return err
	}

	var data []byte
	if jsonOutput {
		out := researchOutput{
			JobID:      res.JobID,
			Company:    company,
			Report:     res.Report,
			References: res.References,
			Duration:   res.Duration.Round(time.Millisecond).String(),
		}
		if len(res.Failed) > 0 {
			out.Failed = make(map[string]string, len(res.Failed))
			for k, v := range res.Failed {
				out.Failed[string(k)] = v
			}
		}
		if data, err = json.MarshalIndent(out, "", "  "); err != nil {
			return fmt.Errorf("marshaling result: %w", err)
		}
		data = append(data, '\n')
	} else {
		data = []byte(res.Report)
	}

	if outPath != "" {
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}
		fmt.Fprintf(os.Stderr, "Report written to %s\n", outPath)
	} else {
		os.Stdout.Write(data)
	}

	if len(res.Failed) > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d analysts failed\n", len(res.Failed), countAnalysts(cfg))
	}
	fmt.Fprintf(os.Stderr, "Done in %s\n", res.Duration.Round(time.Second))
	return nil
}

func countAnalysts(cfg types.Config) int {
	if n := len(cfg.Pipeline.Analysts); n > 0 {
		return n
	}
	return types.NumKinds
}

func init() {
	researchCmd.Flags().String("url", "", "company website")
	researchCmd.Flags().String("industry", "", "industry the company operates in")
	researchCmd.Flags().String("hq", "", "headquarters location")
	researchCmd.Flags().String("ticker", "", "exchange ticker symbol (looked up when empty)")
	researchCmd.Flags().StringP("output", "o", "", "write the report to a file instead of stdout")
	researchCmd.Flags().Bool("json", false, "print the full result as JSON")
	researchCmd.Flags().Bool("scrape", false, "scrape the company website before research")

	rootCmd.AddCommand(researchCmd)
}
