package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/gyik-crawler/internal/worker"
)

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl a category listing",
		Long: `Walks the list pages of a category (or sub-category) from --start-page to
--end-page and ingests every question thread that is new or has gained
answers. Without --end-page the last page is read from the site's pager.`,
		Args: cobra.NoArgs,
		RunE: withRuntime(runCrawl),
	}
	fs := cmd.Flags()
	fs.String("category", "", "category slug, e.g. tudomanyok")
	fs.String("sub-category", "", "sub-category slug, e.g. fizika")
	fs.Int("start-page", 1, "first list page to crawl")
	fs.Int("end-page", 0, "last list page to crawl (0 reads it from the site)")
	return cmd
}

func runCrawl(cmd *cobra.Command, _ []string, rt *runtime) error {
	if err := rt.cfg.ValidateCrawl(); err != nil {
		return err
	}
	logger := rt.app.Logger()
	srvCtx, stopServer := context.WithCancel(cmd.Context())
	defer stopServer()
	rt.app.StartServer(srvCtx)

	c := rt.cfg.Crawl
	stats, err := rt.app.Worker().Run(cmd.Context(), c.StartPage, c.EndPage, c.ListPath())
	logger.Info("crawl finished",
		zap.String("run_id", stats.RunID),
		zap.Int("seen", stats.Seen),
		zap.Int("ingested", stats.Ingested),
		zap.Int("reingested", stats.Reingested),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Error(err),
	)
	if out, merr := json.MarshalIndent(stats, "", "  "); merr == nil {
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	}
	if worker.IsFatal(err) {
		return fmt.Errorf("crawl %s: %w", c.ListPath(), err)
	}
	return nil
}
