package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/claritydesk/ragcore/internal/core/domain"
)

var (
	askLimit  int
	askHybrid bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a customer question from the knowledge bases",
	Long: `Retrieves knowledge relevant to the question and generates a grounded
support answer. Small talk skips retrieval and is answered directly.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askLimit, "limit", "n", 0, "maximum retrieved excerpts")
	askCmd.Flags().BoolVar(&askHybrid, "hybrid", true, "blend keyword matches into retrieval")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if answerService == nil {
		return errors.New("answer service not configured")
	}

	opts := domain.SearchOptions{
		Limit:  askLimit,
		Hybrid: askHybrid,
	}

	answer, err := answerService.Answer(cmd.Context(), tenantID, args[0], opts)
	if err != nil {
		if errors.Is(err, domain.ErrLLMUnavailable) {
			return errors.New("no LLM provider configured, set an API key or switch to ollama")
		}
		return fmt.Errorf("answer failed: %w", err)
	}

	cmd.Println(answer)
	return nil
}
