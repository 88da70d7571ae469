package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/claritydesk/ragcore/internal/core/domain"
)

var (
	searchLimit         int
	searchMinSimilarity float64
	searchHybrid        bool
	searchExpand        bool
	searchKBs           []string
	searchJSON          bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the tenant's knowledge bases",
	Long: `Embeds the query and retrieves the most similar chunks from READY
knowledge bases. With --hybrid, keyword matches are blended into the
vector results.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of results")
	searchCmd.Flags().Float64Var(&searchMinSimilarity, "min-similarity", 0, "minimum cosine similarity")
	searchCmd.Flags().BoolVar(&searchHybrid, "hybrid", false, "blend keyword matches into the results")
	searchCmd.Flags().BoolVar(&searchExpand, "expand", false, "expand results with adjacent chunks")
	searchCmd.Flags().StringSliceVar(&searchKBs, "kb", nil, "restrict to knowledge base IDs")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}

	opts := domain.SearchOptions{
		Limit:            searchLimit,
		MinSimilarity:    searchMinSimilarity,
		KnowledgeBaseIDs: searchKBs,
		Hybrid:           searchHybrid,
		ExpandContext:    searchExpand,
	}

	results, err := searchService.Search(cmd.Context(), tenantID, args[0], opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	return outputSearchTable(cmd, results)
}

func outputSearchTable(cmd *cobra.Command, results []domain.SearchResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		r := &results[i]
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, r.KnowledgeBaseName, r.Similarity)
		if r.SourceURL != "" {
			cmd.Printf("      Source: %s\n", r.SourceURL)
		} else if r.FileName != "" {
			cmd.Printf("      Source: %s\n", r.FileName)
		}
		cmd.Printf("      %s\n", snippet(r.Content, 200))
		cmd.Println()
	}
	return nil
}

// snippet trims content to a single short line for table output.
func snippet(content string, max int) string {
	flat := make([]rune, 0, max+1)
	for _, r := range content {
		if r == '\n' || r == '\t' {
			r = ' '
		}
		flat = append(flat, r)
		if len(flat) > max {
			break
		}
	}
	if len(flat) > max {
		return string(flat[:max]) + "..."
	}
	return string(flat)
}
