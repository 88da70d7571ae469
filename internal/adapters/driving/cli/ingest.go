package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/claritydesk/ragcore/internal/core/domain"
	"github.com/claritydesk/ragcore/internal/core/ports/driving"
)

var (
	ingestName        string
	ingestDescription string
	ingestText        string
	ingestURL         string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a document into a knowledge base",
	Long: `Creates a knowledge base from a text file, inline text or stdin ("-")
and runs it through the pipeline: chunking, embedding and storage. The
command prints the knowledge base in its terminal status, READY or ERROR.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess [knowledge-base-id] [file]",
	Short: "Re-run the pipeline over a knowledge base with new content",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runReprocess,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestName, "name", "N", "", "knowledge base name (defaults to the file name)")
	ingestCmd.Flags().StringVarP(&ingestDescription, "description", "d", "", "knowledge base description")
	ingestCmd.Flags().StringVar(&ingestText, "text", "", "inline text to ingest instead of a file")
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "origin URL to record for scraped content")
	reprocessCmd.Flags().StringVar(&ingestText, "text", "", "inline text to ingest instead of a file")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(reprocessCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	req := driving.IngestRequest{
		TenantID:    tenantID,
		Name:        ingestName,
		Description: ingestDescription,
	}

	switch {
	case len(args) == 1 && args[0] == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		req.Text = string(data)
		req.SourceType = domain.SourceManual
	case len(args) == 1:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		req.Text = string(data)
		req.SourceType = domain.SourceUpload
		req.FileName = filepath.Base(args[0])
		if req.Name == "" {
			req.Name = strings.TrimSuffix(req.FileName, filepath.Ext(req.FileName))
		}
	case ingestText != "":
		req.Text = ingestText
		req.SourceType = domain.SourceManual
	default:
		return errors.New("provide a file argument or --text")
	}

	if ingestURL != "" {
		req.SourceType = domain.SourceWebsite
		req.SourceURL = ingestURL
	}

	kb, err := ingestService.Ingest(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	printKnowledgeBase(cmd, kb)
	if kb.Status == domain.StatusError {
		return fmt.Errorf("ingestion failed: %s", kb.Metadata.ErrorMessage)
	}
	return nil
}

func runReprocess(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	text := ingestText
	if len(args) == 2 {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		text = string(data)
	}
	if text == "" {
		return errors.New("provide a file argument or --text")
	}

	kb, err := ingestService.Reprocess(cmd.Context(), tenantID, args[0], text)
	if err != nil {
		return fmt.Errorf("reprocess failed: %w", err)
	}

	printKnowledgeBase(cmd, kb)
	if kb.Status == domain.StatusError {
		return fmt.Errorf("ingestion failed: %s", kb.Metadata.ErrorMessage)
	}
	return nil
}

func printKnowledgeBase(cmd *cobra.Command, kb *domain.KnowledgeBase) {
	cmd.Printf("ID:      %s\n", kb.ID)
	cmd.Printf("Name:    %s\n", kb.Name)
	cmd.Printf("Source:  %s\n", kb.SourceType)
	cmd.Printf("Status:  %s\n", kb.Status)
	if kb.Status == domain.StatusReady {
		cmd.Printf("Chunks:  %d\n", kb.Metadata.TotalChunks)
		cmd.Printf("Tokens:  %d\n", kb.Metadata.TotalTokens)
	}
	if kb.Metadata.ErrorMessage != "" {
		cmd.Printf("Error:   %s\n", kb.Metadata.ErrorMessage)
	}
}
