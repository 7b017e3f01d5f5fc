package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
	"github.com/dan-solli/knowledgestore/pkg/timeline"
)

func newTimelineCommand(dbRoot *string) *cobra.Command {
	var documentIDs string
	var entityNames string

	cmd := &cobra.Command{
		Use:   "timeline <db-name>",
		Short: "Build a chronological view over a document set's date entities",
		Args:  cobra.ExactArgs(1),
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

			opts := timeline.Options{}
			if documentIDs != "" {
				opts.DocumentIDs = splitCSV(documentIDs)
			}
			if entityNames != "" {
				opts.EntityNames = splitCSV(entityNames)
			}

			result, err := timeline.BuildTimeline(c.Context(), store, opts)
			if err != nil {
				return err
			}
			if result.Diagnostic != "" {
				fmt.Println(result.Diagnostic)
			}
			for _, e := range result.Entries {
				date := e.ISODate
				if date == "" {
					date = e.RawText + " (unparsed)"
				}
				fmt.Printf("%s  %-30s document=%s\n", date, e.RawText, e.DocumentID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&documentIDs, "documents", "", "comma-separated document ids to restrict to")
	cmd.Flags().StringVar(&entityNames, "entities", "", "comma-separated entity names the dates must co-occur with")
	return cmd
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
