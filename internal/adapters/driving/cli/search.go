package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

var (
	searchLimit      int
	searchCollection string
	searchThreshold  float64
	searchVector     bool
	searchJSON       bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed documents",
	Long: `Runs a single-mode search over the indexed collections.
By default this is keyword (BM25) search over the full-text index.
With --vector it runs semantic nearest-neighbour search instead, which
requires a configured embedding provider.

For hybrid retrieval combining both, use 'gnosis query'.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().StringVarP(&searchCollection, "collection", "c", "", "restrict to one collection")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "drop vector results scoring below this")
	searchCmd.Flags().BoolVar(&searchVector, "vector", false, "semantic vector search instead of keyword search")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}

	opts := domain.SearchOptions{
		Collection: searchCollection,
		Limit:      searchLimit,
		Threshold:  searchThreshold,
	}

	var (
		results []domain.RankedResult
		err     error
	)
	if searchVector {
		results, err = searchService.SearchVector(cmd.Context(), args[0], opts)
	} else {
		results, err = searchService.SearchBM25(cmd.Context(), args[0], opts)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return printResultsJSON(cmd, results)
	}
	printResultsText(cmd, results)
	return nil
}

func printResultsJSON(cmd *cobra.Command, results []domain.RankedResult) error {
	if results == nil {
		results = []domain.RankedResult{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func printResultsText(cmd *cobra.Command, results []domain.RankedResult) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = r.Source.RelPath
		}
		cmd.Printf("  [%d] %s %s (%s)\n", i+1, styleTitle.Render(title), styleMuted.Render(r.DocID), renderScore(r.Score))
		cmd.Printf("      %s\n", styleMuted.Render(r.URI))
		if r.Snippet != "" {
			cmd.Printf("      %s\n", r.Snippet)
		}
		cmd.Println()
	}
}
