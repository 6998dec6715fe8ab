package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

var (
	linksType string
	linksJSON bool

	backlinksJSON bool

	similarLimit     int
	similarThreshold float64
	similarCross     bool
	similarJSON      bool
)

var linksCmd = &cobra.Command{
	Use:   "links [docid]",
	Short: "Show a document's outgoing links",
	Long: `Lists the links parsed from a document's canonical markdown,
ordered by position. Both wiki-style [[target]] links and standard
markdown links are reported.`,
	Args: cobra.ExactArgs(1),
	RunE: runLinks,
}

var backlinksCmd = &cobra.Command{
	Use:   "backlinks [docid]",
	Short: "Show the documents linking to a document",
	Long: `Lists the links in other documents that resolve to the given
document, ordered by linking document then position.`,
	Args: cobra.ExactArgs(1),
	RunE: runBacklinks,
}

var similarCmd = &cobra.Command{
	Use:   "similar [docid]",
	Short: "Show documents similar to a document",
	Long: `Finds documents close to the given one in embedding space.
Requires the document's chunks to be embedded; run 'gnosis embed'
first if the backlog is not empty.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimilar,
}

func init() {
	linksCmd.Flags().StringVarP(&linksType, "type", "t", "", "filter by link type (wiki or markdown)")
	linksCmd.Flags().BoolVar(&linksJSON, "json", false, "output as JSON")

	backlinksCmd.Flags().BoolVar(&backlinksJSON, "json", false, "output as JSON")

	similarCmd.Flags().IntVarP(&similarLimit, "limit", "n", 10, "maximum number of documents")
	similarCmd.Flags().Float64Var(&similarThreshold, "threshold", 0, "drop documents scoring below this")
	similarCmd.Flags().BoolVar(&similarCross, "cross-collection", false, "include documents from other collections")
	similarCmd.Flags().BoolVar(&similarJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(linksCmd)
	rootCmd.AddCommand(backlinksCmd)
	rootCmd.AddCommand(similarCmd)
}

func runLinks(cmd *cobra.Command, args []string) error {
	if graphService == nil {
		return errors.New("graph service not configured")
	}

	linkType := domain.LinkType(linksType)
	if linksType != "" && !domain.ValidLinkType(linkType) {
		return domain.NewError(domain.KindValidation, "unknown link type: "+linksType)
	}

	report, err := graphService.GetLinks(cmd.Context(), args[0], linkType)
	if err != nil {
		return fmt.Errorf("fetching links: %w", err)
	}

	if linksJSON {
		return printJSON(cmd, report)
	}

	printDocHeader(cmd, report.Doc)
	if len(report.Links) == 0 {
		cmd.Println("No outgoing links.")
		return nil
	}
	for _, l := range report.Links {
		line := fmt.Sprintf("  %s [%s] line %d", l.TargetRef, l.Type, l.StartLine)
		if l.Text != "" && l.Text != l.TargetRef {
			line += styleMuted.Render(" (" + l.Text + ")")
		}
		cmd.Println(line)
	}
	return nil
}

func runBacklinks(cmd *cobra.Command, args []string) error {
	if graphService == nil {
		return errors.New("graph service not configured")
	}

	report, err := graphService.GetBacklinks(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("fetching backlinks: %w", err)
	}

	if backlinksJSON {
		return printJSON(cmd, report)
	}

	printDocHeader(cmd, report.Doc)
	if len(report.Backlinks) == 0 {
		cmd.Println("No backlinks.")
		return nil
	}
	for _, b := range report.Backlinks {
		cmd.Printf("  %s %s line %d\n", b.SourceURI, styleMuted.Render(b.SourceDocIDHex), b.StartLine)
	}
	return nil
}

func runSimilar(cmd *cobra.Command, args []string) error {
	if graphService == nil {
		return errors.New("graph service not configured")
	}

	opts := domain.SimilarOptions{
		Limit:           similarLimit,
		Threshold:       similarThreshold,
		CrossCollection: similarCross,
	}

	docs, err := graphService.GetSimilar(cmd.Context(), args[0], opts)
	if err != nil {
		return fmt.Errorf("fetching similar documents: %w", err)
	}

	if similarJSON {
		if docs == nil {
			docs = []domain.SimilarDoc{}
		}
		return printJSON(cmd, docs)
	}

	if len(docs) == 0 {
		cmd.Println("No similar documents.")
		return nil
	}
	for i, d := range docs {
		title := d.Title
		if title == "" {
			title = d.RelPath
		}
		cmd.Printf("  [%d] %s %s (%s)\n", i+1, styleTitle.Render(title), styleMuted.Render(d.DocID), renderScore(d.Score))
		cmd.Printf("      %s\n", styleMuted.Render(d.URI))
	}
	return nil
}

func printDocHeader(cmd *cobra.Command, doc domain.DocRef) {
	title := doc.Title
	if title == "" {
		title = doc.URI
	}
	cmd.Printf("%s %s\n", styleTitle.Render(title), styleMuted.Render(doc.DocID))
	cmd.Println()
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
