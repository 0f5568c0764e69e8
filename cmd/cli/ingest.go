package main

import (
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kosarica/catalog-ingest/internal/app"
	"github.com/kosarica/catalog-ingest/internal/pipeline"
)

var (
	ingestRetailer    string
	ingestStore       string
	ingestConcurrency int
)

// ingestFileCmd represents the ingest-file command
var ingestFileCmd = &cobra.Command{
	Use:   "ingest-file <file>...",
	Short: "Ingest local catalog files",
	Long: `Parse one or more local catalog files and write their items to the configured
document store. Files may be plain XML, gzip-compressed XML, or ZIP archives of XML
files. Several files are ingested concurrently, each as an independent run.

A store id found inside a catalog takes priority over --store.`,
	Example: `  catalog-ingest ingest-file ./data/PriceFull7290027600007-001.xml --retailer shufersal
  catalog-ingest ingest-file ./data/*.xml.gz --retailer ramilevy --concurrency 8`,
	Args:        cobra.MinimumNArgs(1),
	Annotations: map[string]string{"needsConfig": "true"},
	RunE:        runIngestFile,
}

// ingestURLCmd represents the ingest-url command
var ingestURLCmd = &cobra.Command{
	Use:   "ingest-url <url>",
	Short: "Fetch a catalog by URL and ingest it",
	Long: `Download a catalog and write its items to the configured document store.
Gzip payloads are detected by their signature, not the URL suffix.`,
	Example: `  catalog-ingest ingest-url https://prices.example.com/PriceFull.xml.gz --retailer shufersal`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"needsConfig": "true"},
	RunE:        runIngestURL,
}

func init() {
	rootCmd.AddCommand(ingestFileCmd)
	rootCmd.AddCommand(ingestURLCmd)

	for _, cmd := range []*cobra.Command{ingestFileCmd, ingestURLCmd} {
		cmd.Flags().StringVar(&ingestRetailer, "retailer", "", "Retailer id (defaults to unknown)")
		cmd.Flags().StringVar(&ingestStore, "store", "", "Store id used when the catalog has none")
	}
	ingestFileCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 4, "Maximum files ingested at once")
}

func runIngestFile(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	results := make([]ingestResult, len(args))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, ingestConcurrency))

	for i, path := range args {
		g.Go(func() error {
			result, err := a.Ingester.IngestFile(gctx, path, ingestRetailer, ingestStore)
			results[i] = ingestResult{Source: path, Result: result, Err: err}
			if err != nil {
				logger.Error().Err(err).Str("file", path).Msg("Ingestion failed")
			}
			// One bad file does not stop the others
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	displayIngestResults(results)
	return failedResults(results)
}

func runIngestURL(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Ingester.IngestURL(ctx, args[0], ingestRetailer, ingestStore)
	results := []ingestResult{{Source: args[0], Result: result, Err: err}}
	displayIngestResults(results)
	return failedResults(results)
}

type ingestResult struct {
	Source string
	Result pipeline.Result
	Err    error
}

func displayIngestResults(results []ingestResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tSTATUS\tRETAILER\tSTORE\tPROCESSED\tSKIPPED\tCOMMITS")
	fmt.Fprintln(w, "------\t------\t--------\t-----\t---------\t-------\t-------")

	for _, r := range results {
		status := "SUCCESS"
		if r.Err != nil {
			status = "FAILED"
		}
		store := r.Result.StoreID
		if store == "" {
			store = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			r.Source, status, r.Result.RetailerID, store, r.Result.Processed, r.Result.Skipped, r.Result.Commits)
	}

	w.Flush()
}

func failedResults(results []ingestResult) error {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d ingestions failed", failed, len(results))
	}
	return nil
}
