// Command storectl administers one or more knowledgestore databases: create
// and inspect them, ingest documents, run extraction and knowledge-graph
// assembly, and query the resulting timeline and witness-analysis surfaces.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dan-solli/knowledgestore/pkg/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "storectl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var dbRoot string

	root := &cobra.Command{
		Use:   "storectl",
		Short: "Administer knowledgestore document-provenance databases",
	}
	root.PersistentFlags().StringVar(&dbRoot, "db-root", ".", "directory databases are created/opened under")

	root.AddCommand(
		newDBCommand(&dbRoot),
		newIngestCommand(&dbRoot),
		newExtractCommand(&dbRoot),
		newKGCommand(&dbRoot),
		newTimelineCommand(&dbRoot),
		newWitnessCommand(&dbRoot),
		newWatchCommand(&dbRoot),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return root.ExecuteContext(ctx)
}

// loadEnvConfig loads the shared environment configuration (API keys,
// models), overriding its db-root resolution with the CLI flag.
func loadEnvConfig(dbRoot string) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if dbRoot != "" {
		cfg.DBRoot = dbRoot
	}
	return cfg, nil
}
