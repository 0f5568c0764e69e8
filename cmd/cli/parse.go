package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kosarica/catalog-ingest/internal/ingestion/compress"
	"github.com/kosarica/catalog-ingest/internal/matching"
	"github.com/kosarica/catalog-ingest/internal/parsers/xml"
	"github.com/kosarica/catalog-ingest/internal/types"
)

var (
	parseOutput string
	parseLimit  int
)

// parseCmd represents the parse command
var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse a local catalog without writing",
	Long: `Parse a local XML catalog (optionally gzip-compressed) and report every item
candidate with the identity it would be written under, or the reason it would be
skipped. Nothing is written to the document store.`,
	Example: `  catalog-ingest parse ./data/PriceFull.xml
  catalog-ingest parse ./data/PriceFull.xml.gz --output json --limit 0`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVar(&parseOutput, "output", "table", "Output format: table or json")
	parseCmd.Flags().IntVar(&parseLimit, "limit", 20, "Maximum candidates listed, 0 for all")
}

type parsedCandidate struct {
	Index    int              `json:"index"`
	Tag      string           `json:"tag"`
	Identity string           `json:"identity,omitempty"`
	Skip     types.SkipReason `json:"skip,omitempty"`
	Raw      types.RawItem    `json:"raw"`
}

type parseReport struct {
	File       string                   `json:"file"`
	StoreID    string                   `json:"storeId,omitempty"`
	Candidates int                      `json:"candidates"`
	Valid      int                      `json:"valid"`
	Skipped    map[types.SkipReason]int `json:"skipped"`
	Items      []parsedCandidate        `json:"items"`
}

func runParse(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	content, compressed, err := compress.Decompress(content, 0)
	if err != nil {
		return fmt.Errorf("failed to decompress %s: %w", filePath, err)
	}
	logger.Debug().Str("file", filePath).Bool("gzip", compressed).Int("bytes", len(content)).Msg("Read file")

	doc, err := xml.ParseBytes(content)
	if err != nil {
		return err
	}

	report := parseReport{
		File:    filePath,
		StoreID: doc.FindStoreID(),
		Skipped: make(map[types.SkipReason]int),
	}
	for c := range doc.Candidates() {
		report.Candidates++
		item := parsedCandidate{Index: c.Index, Tag: c.Tag, Skip: c.Skip, Raw: c.Raw}
		if c.Valid() {
			report.Valid++
			item.Identity = matching.ResolveIdentity(c.Item.Barcode, matching.NormalizeName(c.Item.Name))
		} else {
			report.Skipped[c.Skip]++
		}
		if parseLimit <= 0 || len(report.Items) < parseLimit {
			report.Items = append(report.Items, item)
		}
	}

	switch strings.ToLower(parseOutput) {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	case "table":
		outputParseTable(report)
		return nil
	default:
		return fmt.Errorf("invalid output format: %s (use 'table' or 'json')", parseOutput)
	}
}

func outputParseTable(report parseReport) {
	fmt.Printf("\nParse Results for %s\n", report.File)
	fmt.Println(strings.Repeat("-", 60))

	store := report.StoreID
	if store == "" {
		store = "(none)"
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Metric\tValue\n")
	fmt.Fprintf(w, "------\t-----\n")
	fmt.Fprintf(w, "Store\t%s\n", store)
	fmt.Fprintf(w, "Candidates\t%d\n", report.Candidates)
	fmt.Fprintf(w, "Valid\t%d\n", report.Valid)
	for _, reason := range types.SkipReasons {
		fmt.Fprintf(w, "Skipped (%s)\t%d\n", reason, report.Skipped[reason])
	}
	w.Flush()

	if len(report.Items) == 0 {
		return
	}

	fmt.Printf("\nCandidates (first %d):\n", len(report.Items))
	fmt.Println(strings.Repeat("-", 60))
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTAG\tNAME\tPRICE\tRESULT")
	for _, item := range report.Items {
		result := item.Identity
		if item.Skip != types.SkipNone {
			result = "skip: " + string(item.Skip)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", item.Index, item.Tag, item.Raw.Name, item.Raw.Price, result)
	}
	w.Flush()
}
