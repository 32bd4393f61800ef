// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/equity-research/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the research API over HTTP and websocket",
	Long: `Serve starts the research API:

  POST /research              submit {"company": ..., "company_url": ..., "industry": ..., "hq_location": ...}
  GET  /research/ws/{job_id}  stream the job's status events
  GET  /research/{job_id}     fetch the job and, once done, its report

Jobs run in the background. Interrupt to shut down; running jobs are
cancelled and saved as they stand.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if scrape, _ := cmd.Flags().GetBool("scrape"); scrape {
		cfg.Scrape.Enabled = true
	}

	hub := server.NewHub(cfg.Server.HistorySize, logger)
	a, err := newApp(cfg, hub)
	if err != nil {
		return err
	}
	defer a.close()

	opts := server.Options{Runner: a.service, Hub: hub, Logger: logger}
	if a.store != nil {
		opts.Jobs = a.store
	}
	srv, err := server.New(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting server", zap.String("addr", cfg.Server.Addr))
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8000)")
	serveCmd.Flags().Bool("scrape", false, "scrape company websites before research")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))

	rootCmd.AddCommand(serveCmd)
}
