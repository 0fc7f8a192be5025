package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/docsmith-ai/docsmith/pkg/config"
	"github.com/docsmith-ai/docsmith/pkg/history"
	"github.com/docsmith-ai/docsmith/pkg/models"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		configPath string
		sessionID  string
		docType    string
		limit      int
		summary    bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show generation history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			hist, err := history.New(cfg.DBPath, 0)
			if err != nil {
				return err
			}
			defer hist.Close()

			ctx := context.Background()

			if summary {
				summaries, err := hist.Summary(ctx)
				if err != nil {
					return err
				}
				if len(summaries) == 0 {
					fmt.Println("No generation history found.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "DOCUMENT\tTOTAL\tSUCCEEDED\tCACHED\tFAILED\tAVG LATENCY MS")
				for _, s := range summaries {
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
						s.DocumentType, s.Total, s.Succeeded, s.Cached, s.Failed, s.AvgLatencyMs)
				}
				return w.Flush()
			}

			records, err := hist.Query(ctx, history.QueryOpts{
				SessionID:    sessionID,
				DocumentType: models.DocumentType(docType),
				Limit:        limit,
			})
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No generation history found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tDOCUMENT\tSESSION\tOUTCOME\tATTEMPTS\tLATENCY MS\tERROR")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					r.CreatedAt.Format(time.RFC3339), r.DocumentType, r.SessionID,
					r.Outcome, r.Attempts, r.LatencyMs, r.Error)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "docsmith.yaml", "path to config file")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "filter by session")
	cmd.Flags().StringVar(&docType, "document", "", "filter by document type")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to show")
	cmd.Flags().BoolVar(&summary, "summary", false, "show per-document-type aggregates")
	return cmd
}
