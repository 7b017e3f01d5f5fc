package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
	"github.com/dan-solli/knowledgestore/pkg/witness"
)

func newWitnessCommand(dbRoot *string) *cobra.Command {
	return &cobra.Command{
		Use:   "witness <db-name> <document-id>",
		Short: "Compose and submit a witness analysis for one document",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := loadEnvConfig(*dbRoot)
			if err != nil {
				return err
			}
			store, err := kstore.Open(c.Context(), cfg.DBRoot, args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			llmClient, err := newLLMClient(cfg)
			if err != nil {
				return err
			}

			composer := &witness.Composer{Store: store, LLM: llmClient}
			result, err := composer.ComposeWitnessAnalysis(c.Context(), args[1])
			if err != nil {
				return err
			}
			fmt.Printf("comparison=%s estimated_prompt_tokens=%d\n\n%s\n", result.ComparisonID, result.EstimatedPromptTokens, result.Output)
			return nil
		},
	}
}
