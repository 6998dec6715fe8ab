package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

// knownKeys are the settings surfaced by 'config show'. Arbitrary keys
// can still be set; these are the ones gnosis reads.
var knownKeys = []string{
	"collections",
	"embedding.provider",
	"embedding.model",
	"embedding.base_url",
	"embedding.api_key",
	"llm.provider",
	"llm.model",
	"llm.base_url",
	"llm.api_key",
	"fts.tokenizer",
	"search.limit",
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and edit the gnosis configuration file.

Collections are stored as "name=path" entries under the collections
key; use 'config add-collection' rather than editing them by hand.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configAddCollectionCmd = &cobra.Command{
	Use:   "add-collection [name] [root-path]",
	Short: "Register a document collection",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigAddCollection,
}

var configRemoveCollectionCmd = &cobra.Command{
	Use:   "remove-collection [name]",
	Short: "Unregister a document collection",
	Long:  `Removes the collection from the configuration. Its indexed documents are kept; sync only visits configured collections, so it does not tombstone them.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigRemoveCollection,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configAddCollectionCmd)
	configCmd.AddCommand(configRemoveCollectionCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	cmd.Printf("Configuration: %s\n", configStore.Path())
	cmd.Println()
	for _, key := range knownKeys {
		val, ok := configStore.Get(key)
		if !ok {
			cmd.Printf("  %s = %s\n", key, styleMuted.Render("(unset)"))
			continue
		}
		cmd.Printf("  %s = %v\n", key, val)
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	val, ok := configStore.Get(args[0])
	if !ok {
		return domain.NewError(domain.KindNotFound, "key not set: "+args[0])
	}
	cmd.Printf("%v\n", val)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	if err := configStore.Set(args[0], args[1]); err != nil {
		return fmt.Errorf("setting %s: %w", args[0], err)
	}
	cmd.Printf("%s = %s\n", args[0], args[1])
	validateProviderChange(cmd, args[0])
	return nil
}

// validateProviderChange pings the affected AI provider after one of
// its settings changed. Failures warn without rolling the change back.
func validateProviderChange(cmd *cobra.Command, key string) {
	if aiValidator == nil {
		return
	}

	switch {
	case strings.HasPrefix(key, "embedding."):
		settings := &domain.EmbeddingSettings{
			Provider: domain.AIProvider(configStore.GetString("embedding.provider")),
			Model:    configStore.GetString("embedding.model"),
			BaseURL:  configStore.GetString("embedding.base_url"),
			APIKey:   configStore.GetString("embedding.api_key"),
		}
		if err := aiValidator.ValidateEmbedding(settings); err != nil {
			cmd.Println(styleWarning.Render(fmt.Sprintf("Embedding provider check failed: %v", err)))
		}

	case strings.HasPrefix(key, "llm."):
		settings := &domain.LLMSettings{
			Provider: domain.AIProvider(configStore.GetString("llm.provider")),
			Model:    configStore.GetString("llm.model"),
			BaseURL:  configStore.GetString("llm.base_url"),
			APIKey:   configStore.GetString("llm.api_key"),
		}
		if err := aiValidator.ValidateLLM(settings); err != nil {
			cmd.Println(styleWarning.Render(fmt.Sprintf("LLM provider check failed: %v", err)))
		}
	}
}

func runConfigAddCollection(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	name, root := args[0], args[1]
	if strings.ContainsAny(name, "=/:") {
		return domain.NewError(domain.KindValidation, "collection names cannot contain '=', '/' or ':'")
	}

	entries := configStore.GetStringSlice("collections")
	for _, e := range entries {
		if existing, _, _ := strings.Cut(e, "="); existing == name {
			return domain.NewError(domain.KindValidation, "collection already exists: "+name)
		}
	}

	entries = append(entries, name+"="+root)
	if err := configStore.Set("collections", entries); err != nil {
		return fmt.Errorf("saving collections: %w", err)
	}
	cmd.Printf("Added collection %s -> %s\n", name, root)
	return nil
}

func runConfigRemoveCollection(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	name := args[0]
	entries := configStore.GetStringSlice("collections")
	kept := entries[:0]
	found := false
	for _, e := range entries {
		if existing, _, _ := strings.Cut(e, "="); existing == name {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return domain.NewError(domain.KindNotFound, "unknown collection: "+name)
	}

	if err := configStore.Set("collections", kept); err != nil {
		return fmt.Errorf("saving collections: %w", err)
	}
	cmd.Printf("Removed collection %s\n", name)
	return nil
}

// ParseCollections decodes "name=path" entries into collections,
// skipping malformed ones.
func ParseCollections(entries []string) []domain.Collection {
	var out []domain.Collection
	for _, e := range entries {
		name, root, ok := strings.Cut(e, "=")
		if !ok || name == "" || root == "" {
			continue
		}
		out = append(out, domain.Collection{Name: name, RootPath: root})
	}
	return out
}
