package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/claritydesk/ragcore/internal/core/domain"
)

var kbJSON bool

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage knowledge bases",
}

var kbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tenant's knowledge bases",
	Args:  cobra.NoArgs,
	RunE:  runKBList,
}

var kbShowCmd = &cobra.Command{
	Use:   "show [knowledge-base-id]",
	Short: "Show a knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE:  runKBShow,
}

var kbDeleteCmd = &cobra.Command{
	Use:   "delete [knowledge-base-id]",
	Short: "Delete a knowledge base and all its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runKBDelete,
}

func init() {
	kbListCmd.Flags().BoolVar(&kbJSON, "json", false, "output as JSON")
	kbCmd.AddCommand(kbListCmd)
	kbCmd.AddCommand(kbShowCmd)
	kbCmd.AddCommand(kbDeleteCmd)
	rootCmd.AddCommand(kbCmd)
}

func runKBList(cmd *cobra.Command, _ []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	bases, err := ingestService.List(cmd.Context(), tenantID)
	if err != nil {
		return fmt.Errorf("list knowledge bases: %w", err)
	}

	if kbJSON {
		data, err := json.MarshalIndent(bases, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal knowledge bases: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(bases) == 0 {
		cmd.Println("No knowledge bases found.")
		return nil
	}
	for i := range bases {
		kb := &bases[i]
		cmd.Printf("%s  %-10s  %-8s  %s\n", kb.ID, kb.Status, kb.SourceType, kb.Name)
	}
	return nil
}

func runKBShow(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	kb, err := ingestService.Get(cmd.Context(), tenantID, args[0])
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("knowledge base %s not found", args[0])
		}
		return fmt.Errorf("get knowledge base: %w", err)
	}

	printKnowledgeBase(cmd, kb)
	if kb.Description != "" {
		cmd.Printf("About:   %s\n", kb.Description)
	}
	return nil
}

func runKBDelete(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	if err := ingestService.Delete(cmd.Context(), tenantID, args[0]); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("knowledge base %s not found", args[0])
		}
		return fmt.Errorf("delete knowledge base: %w", err)
	}

	cmd.Printf("Deleted %s\n", args[0])
	return nil
}
