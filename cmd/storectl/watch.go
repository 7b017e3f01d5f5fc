package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dan-solli/knowledgestore/pkg/ingestwatch"
	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

func newWatchCommand(dbRoot *string) *cobra.Command {
	var dir string
	var extensions []string

	cmd := &cobra.Command{
		Use:   "watch <db-name>",
		Short: "Watch a directory and ingest new or modified documents as they settle",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := loadEnvConfig(*dbRoot)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.IngestWatchDir
			}
			if dir == "" {
				return fmt.Errorf("--dir is required (or set KSTORE_WATCH_DIR)")
			}

			store, err := kstore.Open(c.Context(), cfg.DBRoot, args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			pipeline, err := buildIngestPipeline(c.Context(), store, cfg)
			if err != nil {
				return err
			}
			defer pipeline.Tracer.Close()

			w, err := ingestwatch.New(ingestwatch.Config{Dir: dir, Extensions: extensions}, func(ctx context.Context, path string) error {
				text, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				_, err = pipeline.IngestFile(ctx, path, string(text))
				return err
			})
			if err != nil {
				return err
			}

			fmt.Printf("watching %s\n", dir)
			return w.Run(c.Context())
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory to watch (defaults to KSTORE_WATCH_DIR)")
	cmd.Flags().StringSliceVar(&extensions, "ext", nil, "file extensions to ingest (default: all)")
	return cmd
}
