// Package cli provides the cobra command surface of gnosis.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
	"github.com/custodia-labs/gnosis/internal/core/ports/driving"
	"github.com/custodia-labs/gnosis/internal/logger"
)

// version is set at wiring time from the build.
var version = "dev"

// Services injected before Execute. Commands check for nil and fail
// with a configuration error rather than panicking.
var (
	ingestService    driving.IngestService
	searchService    driving.SearchService
	graphService     driving.GraphService
	backlogProcessor driving.BacklogProcessor
	discoverySource  driven.Discovery
	docStore         driven.Store
	configStore      driven.ConfigStore
	aiValidator      driven.AIConfigValidator

	// collections is the configured collection set, loaded from the
	// config store at wiring time.
	collections []domain.Collection
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "gnosis",
	Short: "Local-first knowledge retrieval engine",
	Long: `Gnosis indexes document collections on local disk and answers
hybrid lexical and semantic queries over them.

Documents are converted to canonical markdown, chunked, indexed for
full-text search and optionally embedded for vector search. The link
graph between documents is extracted and queryable.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Services bundles everything the commands need.
type Services struct {
	Ingest      driving.IngestService
	Search      driving.SearchService
	Graph       driving.GraphService
	Backlog     driving.BacklogProcessor
	Discovery   driven.Discovery
	Store       driven.Store
	Config      driven.ConfigStore
	Validator   driven.AIConfigValidator
	Collections []domain.Collection
	Version     string
}

// SetServices wires the command surface. Call once before Execute.
func SetServices(s Services) {
	ingestService = s.Ingest
	searchService = s.Search
	graphService = s.Graph
	backlogProcessor = s.Backlog
	discoverySource = s.Discovery
	docStore = s.Store
	configStore = s.Config
	aiValidator = s.Validator
	collections = s.Collections
	if s.Version != "" {
		version = s.Version
	}
}

// Execute runs the root command and exits the process with the code
// mapped from the error kind.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error onto the documented process exit codes:
// caller mistakes exit 1, everything else exit 2.
func exitCode(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation, domain.KindNotFound, domain.KindUnsupported:
		return 1
	default:
		return 2
	}
}

// findCollection resolves a configured collection by name.
func findCollection(name string) (domain.Collection, error) {
	for _, c := range collections {
		if c.Name == name {
			return c, nil
		}
	}
	return domain.Collection{}, domain.NewError(domain.KindNotFound, "unknown collection: "+name)
}
