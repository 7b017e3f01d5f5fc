package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

func newDBCommand(dbRoot *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Create, list, inspect, and delete databases",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a new database and run migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			store, err := kstore.Create(c.Context(), *dbRoot, args[0])
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Printf("created database %q under %s\n", args[0], *dbRoot)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List databases under --db-root",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			infos, err := kstore.List(c.Context(), *dbRoot)
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("no databases found")
				return nil
			}
			for _, info := range infos {
				fmt.Printf("%-20s documents=%-6d nodes=%-6d edges=%-6d updated=%s\n",
					info.Name, info.DocumentCount, info.NodeCount, info.EdgeCount, info.UpdatedAt.Format("2006-01-02T15:04:05Z"))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a database file and its journal siblings",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := kstore.Delete(*dbRoot, args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted database %q\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats <name>",
		Short: "Open a database and print its knowledge-graph statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			store, err := kstore.Open(c.Context(), *dbRoot, args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			docs, err := store.ListDocuments(c.Context(), kstore.ListDocumentsFilter{})
			if err != nil {
				return err
			}
			nodes, err := store.ListAllKGNodes(c.Context())
			if err != nil {
				return err
			}
			edges, err := store.ListAllKGEdges(c.Context())
			if err != nil {
				return err
			}
			fmt.Printf("documents=%d nodes=%d edges=%d\n", len(docs), len(nodes), len(edges))
			return nil
		},
	})

	return cmd
}
