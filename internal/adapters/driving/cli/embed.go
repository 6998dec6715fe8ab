package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var embedPending bool

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed pending chunks",
	Long: `Drains the embedding backlog for the active model: chunks
without a stored vector are embedded in batches and written to the
durable vector table, then the nearest-neighbour side-index is
reconciled once at the end of the run.

Batch failures skip the affected chunks and leave them in the backlog
for the next run.`,
	RunE: runEmbed,
}

func init() {
	embedCmd.Flags().BoolVar(&embedPending, "pending", false, "report the backlog size without embedding")
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, _ []string) error {
	if backlogProcessor == nil {
		return errors.New("backlog processor not configured, check the embedding provider settings")
	}

	ctx := cmd.Context()

	if embedPending {
		n, err := backlogProcessor.Pending(ctx)
		if err != nil {
			return fmt.Errorf("counting backlog: %w", err)
		}
		cmd.Printf("%d chunks pending\n", n)
		return nil
	}

	result, err := backlogProcessor.Process(ctx)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	cmd.Printf("Embedded %d chunks", result.Embedded)
	if result.Errors > 0 {
		cmd.Printf(", %s", styleWarning.Render(fmt.Sprintf("%d skipped", result.Errors)))
	}
	cmd.Println()
	if result.SyncError != nil {
		cmd.Println(styleWarning.Render(fmt.Sprintf("Vector index sync failed: %v", result.SyncError)))
		cmd.Println("Stored embeddings are intact; the next 'gnosis embed' run resyncs the index.")
	}
	return nil
}
