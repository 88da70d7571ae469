package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/claritydesk/ragcore/internal/core/domain"
	"github.com/claritydesk/ragcore/internal/core/ports/driven"
	"github.com/claritydesk/ragcore/internal/core/ports/driving"
)

// CompanyInfo identifies the business the support agent answers for.
type CompanyInfo struct {
	// Name is the company's display name.
	Name string

	// Guidelines are optional extra instructions appended to the prompt.
	Guidelines string
}

// BuildPrompt assembles the support-agent prompt from the ranked search
// results: role and company framing, the retrieved context with source
// attribution, answering guidelines, then the customer's question.
func BuildPrompt(company CompanyInfo, results []domain.SearchResult, question string) string {
	name := company.Name
	if name == "" {
		name = "the company"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a customer support agent for %s.\n", name)
	sb.WriteString("Answer the customer's question using only the knowledge base excerpts below.\n\n")

	if len(results) == 0 {
		sb.WriteString("No relevant knowledge base excerpts were found.\n\n")
	} else {
		sb.WriteString("Knowledge base excerpts:\n\n")
		for i, result := range results {
			fmt.Fprintf(&sb, "[%d] Source: %s", i+1, result.KnowledgeBaseName)
			if result.SourceURL != "" {
				fmt.Fprintf(&sb, " (%s)", result.SourceURL)
			} else if result.FileName != "" {
				fmt.Fprintf(&sb, " (%s)", result.FileName)
			}
			sb.WriteString("\n")
			sb.WriteString(result.Content)
			sb.WriteString("\n\n")
		}
	}

	sb.WriteString("Guidelines:\n")
	sb.WriteString("- Answer concisely and factually from the excerpts.\n")
	sb.WriteString("- If the excerpts do not contain the answer, say so and offer to connect the customer with a human agent.\n")
	sb.WriteString("- Never invent policies, prices or commitments.\n")
	if company.Guidelines != "" {
		sb.WriteString(company.Guidelines)
		if !strings.HasSuffix(company.Guidelines, "\n") {
			sb.WriteString("\n")
		}
	}

	fmt.Fprintf(&sb, "\nCustomer question: %s\n", question)
	return sb.String()
}

// AnswerConfig tunes answer generation.
type AnswerConfig struct {
	// MaxTokens bounds the generated answer (default 512).
	MaxTokens int

	// Temperature controls generation randomness (default 0.2).
	Temperature float64

	// Retries is the attempt bound for busy providers (default 3).
	Retries int

	// RetryBaseDelay is the initial backoff between retries (default 1s).
	RetryBaseDelay time.Duration
}

func (c *AnswerConfig) applyDefaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 512
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.2
	}
	if c.Retries <= 0 {
		c.Retries = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
}

// AnswerService generates grounded answers: it gates the question through
// the intent heuristic, retrieves context via the searcher, assembles the
// prompt and hands it to the LLM.
type AnswerService struct {
	searcher driving.Searcher
	llm      driven.LLMService
	company  CompanyInfo
	cfg      AnswerConfig
	log      zerolog.Logger
}

// NewAnswerService creates a new answer service. The LLM service may be
// nil, in which case Answer returns domain.ErrLLMUnavailable.
func NewAnswerService(
	searcher driving.Searcher,
	llm driven.LLMService,
	company CompanyInfo,
	cfg AnswerConfig,
	log zerolog.Logger,
) *AnswerService {
	cfg.applyDefaults()
	return &AnswerService{
		searcher: searcher,
		llm:      llm,
		company:  company,
		cfg:      cfg,
		log:      log,
	}
}

// Answer retrieves context for the question and generates a grounded
// reply. Small talk skips retrieval and goes straight to the LLM.
func (s *AnswerService) Answer(ctx context.Context, tenantID, question string, opts domain.SearchOptions) (string, error) {
	if s.llm == nil {
		return "", domain.ErrLLMUnavailable
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}

	var results []domain.SearchResult
	if ShouldUseRAG(question) {
		var err error
		results, err = s.searcher.Search(ctx, tenantID, question, opts)
		if err != nil {
			return "", fmt.Errorf("retrieve context: %w", err)
		}
	} else {
		s.log.Debug().Str("tenant_id", tenantID).Msg("small talk detected, skipping retrieval")
	}

	prompt := BuildPrompt(s.company, results, question)

	var answer string
	err := withRetry(ctx, s.cfg.Retries, s.cfg.RetryBaseDelay, domain.IsRetryable, func() error {
		var genErr error
		answer, genErr = s.llm.Generate(ctx, prompt, driven.GenerateOptions{
			MaxTokens:   s.cfg.MaxTokens,
			Temperature: s.cfg.Temperature,
		})
		return genErr
	})
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}

	return strings.TrimSpace(answer), nil
}
