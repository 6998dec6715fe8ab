package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

var (
	queryLimit      int
	queryCollection string
	queryThreshold  float64
	queryExpand     bool
	queryRerank     bool
	queryJSON       bool
)

var queryCmd = &cobra.Command{
	Use:   "query [query]",
	Short: "Hybrid search across indexed documents",
	Long: `Runs the full retrieval pipeline: keyword (BM25) and semantic
vector search fused by reciprocal rank. With --expand the query is
first rewritten by the configured LLM into lexical variants and a
hypothetical passage. With --rerank the fused candidates are rescored
by the LLM before the final cut.

Expansion and reranking degrade gracefully: if the LLM is unreachable
the raw query and fused order are used instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 10, "maximum number of results")
	queryCmd.Flags().StringVarP(&queryCollection, "collection", "c", "", "restrict to one collection")
	queryCmd.Flags().Float64Var(&queryThreshold, "threshold", 0, "drop vector results scoring below this")
	queryCmd.Flags().BoolVar(&queryExpand, "expand", false, "rewrite the query with the LLM before retrieval")
	queryCmd.Flags().BoolVar(&queryRerank, "rerank", false, "rescore fused candidates with the LLM")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}

	opts := domain.QueryOptions{
		SearchOptions: domain.SearchOptions{
			Collection: queryCollection,
			Limit:      queryLimit,
			Threshold:  queryThreshold,
		},
		Expand: queryExpand,
		Rerank: queryRerank,
	}

	results, err := searchService.Query(cmd.Context(), args[0], opts)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		return printResultsJSON(cmd, results)
	}
	printResultsText(cmd, results)
	return nil
}
