package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dan-solli/knowledgestore/pkg/knowledgegraph"
	"github.com/dan-solli/knowledgestore/pkg/kstore"
	"github.com/dan-solli/knowledgestore/pkg/vectorindex"
)

func newKGCommand(dbRoot *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kg",
		Short: "Inspect and maintain a database's knowledge graph",
	}

	var minWeight float64
	var minEvidence int
	var apply bool

	pruneCmd := &cobra.Command{
		Use:   "prune <db-name>",
		Short: "Preview or apply edge pruning by weight and evidence thresholds",
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

			graph := knowledgegraph.New(store, vectorindex.NewMemoryIndex(), nil)
			result, err := graph.Prune(c.Context(), knowledgegraph.PruneOptions{
				MinWeight: minWeight, MinEvidence: minEvidence, DryRun: !apply,
			})
			if err != nil {
				return err
			}
			fmt.Printf("candidates=%d applied=%v\n", result.TotalCount, result.Applied)
			for _, b := range result.ByType {
				fmt.Printf("  %s: %d\n", b.RelationshipType, b.Count)
			}
			return nil
		},
	}
	pruneCmd.Flags().Float64Var(&minWeight, "min-weight", 0, "prune edges below this normalized weight")
	pruneCmd.Flags().IntVar(&minEvidence, "min-evidence", 0, "prune edges below this evidence count")
	pruneCmd.Flags().BoolVar(&apply, "apply", false, "actually delete candidate edges instead of previewing")
	cmd.AddCommand(pruneCmd)

	var maxHops int
	pathCmd := &cobra.Command{
		Use:   "path <db-name> <source-node-id> <target-node-id>",
		Short: "Find shortest paths between two knowledge-graph nodes",
		Args:  cobra.ExactArgs(3),
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

			graph := knowledgegraph.New(store, vectorindex.NewMemoryIndex(), nil)
			paths, err := graph.FindPaths(c.Context(), args[1], args[2], knowledgegraph.PathFindOptions{
				MaxHops: maxHops, IncludeEvidenceChunks: true,
			})
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				fmt.Println("no path found")
				return nil
			}
			for i, p := range paths {
				fmt.Printf("path %d (%d hops):\n", i+1, len(p.Steps))
				for _, n := range p.Nodes {
					fmt.Printf("  - %s (%s)\n", n.CanonicalName, n.Type)
				}
			}
			return nil
		},
	}
	pathCmd.Flags().IntVar(&maxHops, "max-hops", knowledgegraph.MaxHops, "maximum hop count to search")
	cmd.AddCommand(pathCmd)

	return cmd
}
