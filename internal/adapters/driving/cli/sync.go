package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/logger"
)

var syncWatch bool

var syncCmd = &cobra.Command{
	Use:   "sync [collection]",
	Short: "Synchronise collections from disk",
	Long: `Reconciles collections against their root directories.
New and changed files are converted and indexed, vanished files are
tombstoned. If a collection name is provided, only that collection is
synchronised. Otherwise, all configured collections are.

With --watch the command keeps running after the initial pass and
ingests files as they change on disk.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVarP(&syncWatch, "watch", "w", false, "keep watching for changes after the initial pass")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	targets := collections
	if len(args) > 0 {
		c, err := findCollection(args[0])
		if err != nil {
			return err
		}
		targets = []domain.Collection{c}
	}
	if len(targets) == 0 {
		return domain.NewError(domain.KindValidation, "no collections configured, add one with 'gnosis config add-collection'")
	}

	ctx := cmd.Context()
	for _, c := range targets {
		cmd.Printf("Synchronising %s...\n", c.Name)
		result, err := ingestService.SyncCollection(ctx, c)
		if err != nil {
			return fmt.Errorf("sync of %s failed: %w", c.Name, err)
		}
		printSyncResult(cmd, c.Name, result)
	}

	if !syncWatch {
		return nil
	}
	return watchCollections(ctx, cmd, targets)
}

func printSyncResult(cmd *cobra.Command, name string, r *domain.IngestResult) {
	line := fmt.Sprintf("  %s: %d ingested, %d unchanged, %d tombstoned",
		name, r.Ingested, r.Unchanged, r.Tombstoned)
	if r.Failed > 0 {
		line += styleWarning.Render(fmt.Sprintf(", %d failed", r.Failed))
	}
	cmd.Println(line)
}

// watchCollections blocks ingesting change events until interrupted.
func watchCollections(ctx context.Context, cmd *cobra.Command, targets []domain.Collection) error {
	if discoverySource == nil {
		return errors.New("discovery source not configured")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := make(chan domain.DiscoveredFile, 64)
	group, ctx := errgroup.WithContext(ctx)
	for _, c := range targets {
		group.Go(func() error {
			if err := discoverySource.Watch(ctx, c, events); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("watch failed: %w", err)
			}
			return nil
		})
	}
	cmd.Println("Watching for changes, Ctrl-C to stop.")
	for {
		select {
		case <-ctx.Done():
			// A failed watcher cancels the group context; interrupts
			// land here too and wait out cleanly.
			return group.Wait()

		case f := <-events:
			content, err := discoverySource.Read(ctx, f)
			if err != nil {
				logger.Warn("Reading %s/%s: %v", f.Collection, f.RelPath, err)
				continue
			}
			doc, err := ingestService.IngestFile(ctx, f, content)
			if err != nil {
				cmd.Println(styleError.Render(fmt.Sprintf("  %s/%s: %v", f.Collection, f.RelPath, err)))
				continue
			}
			cmd.Printf("  %s/%s -> %s\n", f.Collection, f.RelPath, doc.DocID)
		}
	}
}
