package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
	"github.com/custodia-labs/gnosis/internal/logger"
)

// vectorIndex is optional; status reports sync state when present.
var vectorIndex driven.VectorIndex

// SetVectorIndex wires the optional vector side-index into status.
func SetVectorIndex(v driven.VectorIndex) {
	vectorIndex = v
}

var (
	statusErrors     bool
	statusCollection string
	statusLimit      int
	statusJSON       bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index status",
	Long: `Reports the state of the index: document, chunk and vector
counts, the embedding backlog per model, and whether the full-text or
vector indexes need rebuilding.

With --errors the most recent ingest failures are listed instead.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusErrors, "errors", false, "list recent ingest errors")
	statusCmd.Flags().StringVarP(&statusCollection, "collection", "c", "", "restrict errors to one collection")
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 20, "maximum number of errors")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statusCmd)
}

// statusReport is the JSON shape of the status command.
type statusReport struct {
	Documents       int            `json:"documents"`
	ActiveDocuments int            `json:"active_documents"`
	Contents        int            `json:"contents"`
	Chunks          int            `json:"chunks"`
	Links           int            `json:"links"`
	Vectors         map[string]int `json:"vectors,omitempty"`
	Backlog         map[string]int `json:"backlog,omitempty"`
	SchemaVersion   int            `json:"schema_version"`
	FTSTokenizer    string         `json:"fts_tokenizer"`
	NeedsFTSRebuild bool           `json:"needs_fts_rebuild"`
	VectorSearch    bool           `json:"vector_search_available"`
	NeedsVecSync    bool           `json:"needs_vec_sync"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if docStore == nil {
		return errors.New("store not configured")
	}

	ctx := cmd.Context()

	if statusErrors {
		return runStatusErrors(cmd)
	}

	stats, err := docStore.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading stats: %w", err)
	}
	needsFTS, err := docStore.NeedsFTSRebuild(ctx)
	if err != nil {
		return fmt.Errorf("checking full-text index: %w", err)
	}

	report := statusReport{
		Documents:       stats.Documents,
		ActiveDocuments: stats.ActiveDocuments,
		Contents:        stats.Contents,
		Chunks:          stats.Chunks,
		Links:           stats.Links,
		Vectors:         stats.Vectors,
		Backlog:         stats.Backlog,
		SchemaVersion:   stats.SchemaVersion,
		FTSTokenizer:    stats.FTSTokenizer,
		NeedsFTSRebuild: needsFTS,
	}
	if vectorIndex != nil {
		report.VectorSearch = vectorIndex.Available()
		if dirty, err := vectorIndex.NeedsSync(ctx); err == nil {
			report.NeedsVecSync = dirty
		} else {
			logger.Warn("Checking vector index sync state: %v", err)
		}
	}

	if statusJSON {
		return printJSON(cmd, report)
	}
	printStatusText(cmd, report)
	return nil
}

func printStatusText(cmd *cobra.Command, r statusReport) {
	cmd.Printf("Documents:  %d (%d active)\n", r.Documents, r.ActiveDocuments)
	cmd.Printf("Contents:   %d\n", r.Contents)
	cmd.Printf("Chunks:     %d\n", r.Chunks)
	cmd.Printf("Links:      %d\n", r.Links)
	for model, n := range r.Vectors {
		cmd.Printf("Vectors:    %d (%s)\n", n, model)
	}
	for model, n := range r.Backlog {
		if n > 0 {
			cmd.Printf("Backlog:    %s\n", styleWarning.Render(fmt.Sprintf("%d chunks pending (%s)", n, model)))
		}
	}
	cmd.Printf("Schema:     v%d, tokenizer %s\n", r.SchemaVersion, r.FTSTokenizer)
	if r.NeedsFTSRebuild {
		cmd.Println(styleWarning.Render("Full-text index needs a rebuild (tokenizer changed)."))
	}
	if r.VectorSearch {
		cmd.Println("Vector search: available")
		if r.NeedsVecSync {
			cmd.Println(styleWarning.Render("Vector index is out of sync; the next 'gnosis embed' run resyncs it."))
		}
	} else {
		cmd.Println(styleMuted.Render("Vector search: unavailable"))
	}
}

func runStatusErrors(cmd *cobra.Command) error {
	ingestErrors, err := docStore.ListIngestErrors(cmd.Context(), statusCollection, statusLimit)
	if err != nil {
		return fmt.Errorf("listing ingest errors: %w", err)
	}

	if statusJSON {
		if ingestErrors == nil {
			ingestErrors = []domain.IngestError{}
		}
		return printJSON(cmd, ingestErrors)
	}

	if len(ingestErrors) == 0 {
		cmd.Println("No ingest errors.")
		return nil
	}
	for _, e := range ingestErrors {
		cmd.Printf("  %s  %s/%s  %s\n",
			e.OccurredAt.Format("2006-01-02 15:04:05"),
			e.Collection, e.RelPath,
			styleError.Render(string(e.Code)))
		cmd.Printf("      %s\n", e.Message)
	}
	return nil
}
