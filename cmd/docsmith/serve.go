package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/docsmith-ai/docsmith/pkg/cache"
	"github.com/docsmith-ai/docsmith/pkg/config"
	"github.com/docsmith-ai/docsmith/pkg/history"
	"github.com/docsmith-ai/docsmith/pkg/queue"
	"github.com/docsmith-ai/docsmith/pkg/server"
	"github.com/docsmith-ai/docsmith/pkg/upstream"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the document generation server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			var recorder history.Recorder
			if cfg.History.Enabled {
				hist, err := history.New(cfg.DBPath, cfg.History.RetentionDays)
				if err != nil {
					return fmt.Errorf("init history: %w", err)
				}
				defer func() { _ = hist.Close() }()
				recorder = hist
			}

			store := cache.New(cfg.Cache.TTL, cfg.Cache.MaxEntries, cfg.Cache.SweepInterval)
			defer store.Close()

			client := upstream.New(cfg.Upstream.URL, cfg.Upstream.APIKey, cfg.Upstream.Model, cfg.Upstream.Timeout)

			q := queue.New(store, client, queue.Options{
				MaxRetries: cfg.Queue.MaxRetries,
				ItemDelay:  cfg.Queue.ItemDelay,
				History:    recorder,
			})
			defer q.Close()

			srv := server.New(cfg, q, store)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Printf("starting docsmith with config: %s", configPath)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "docsmith.yaml", "path to config file")
	return cmd
}
