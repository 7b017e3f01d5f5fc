package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dan-solli/knowledgestore/pkg/extraction"
	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

func newExtractCommand(dbRoot *string) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <db-name> <document-id>",
		Short: "Re-run entity and relationship extraction for one document",
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

			pipeline := extraction.New(store, llmClient)
			result, err := pipeline.ExtractDocument(c.Context(), args[1])
			if err != nil {
				return err
			}
			fmt.Printf("entities=%d mentions=%d\n", result.EntitiesCreated, result.MentionsCreated)
			return nil
		},
	}
}
