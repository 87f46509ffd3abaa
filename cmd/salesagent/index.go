package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/salescode-agent/server/internal/catalog"
	"github.com/salescode-agent/server/internal/knowledge/chunker"
	"github.com/salescode-agent/server/internal/knowledge/pipeline"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the product knowledge base from the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := appCfg

		rdb, err := optionalRedis(ctx, cfg, false)
		if err != nil {
			return err
		}
		if rdb != nil {
			defer rdb.Close()
		}

		genaiClient, err := genaiClientFor(ctx, cfg, false)
		if err != nil {
			return err
		}

		store, err := openIndex(cfg, rdb, genaiClient)
		if err != nil {
			return err
		}
		defer store.Close()

		client, err := catalog.NewClient(cfg.Catalog)
		if err != nil {
			return err
		}
		splitter, err := chunker.New(cfg.Chunk.Size, cfg.Chunk.Overlap)
		if err != nil {
			return err
		}

		report, err := pipeline.New(client, splitter, store).Run(ctx)
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Indexed %d products and %d orders into %d chunks (%s)\n",
			report.Products, report.Orders, report.Chunks, store.Collection())
		if report.Pruned > 0 {
			fmt.Fprintf(out, "Removed %d stale chunks\n", report.Pruned)
		}
		if report.Reset {
			fmt.Fprintln(out, "Embedding model changed: collection was rebuilt from scratch")
		}
		fmt.Fprintf(out, "Done in %s\n", report.Took.Round(time.Millisecond))
		return nil
	},
}
