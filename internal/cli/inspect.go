package cli

import (
	"slices"

	"github.com/spf13/cobra"

	"graphscore/internal/dag"
	"graphscore/internal/graphsource"
	"graphscore/internal/scoring"
)

// InspectReport describes a graph without scoring it.
type InspectReport struct {
	Summary        dag.Summary `json:"summary"`
	CanonicalOrder []string    `json:"canonical_order"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScoreOptions{}

	cmd := &cobra.Command{
		Use:           "inspect [graph.json]",
		Short:         "Summarize graph structure and canonical node order",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			g, err := loadGraph(cmd.Context(), f, opts, args)
			if err != nil {
				return err
			}
			return outputInspect(f, buildInspectReport(g))
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "read the graph from this SQLite feed database")
	cmd.Flags().StringVar(&opts.GraphID, "graph-id", "", "graph id within --db")

	return cmd
}

func buildInspectReport(g *dag.Graph) InspectReport {
	order := scoring.CanonicalOrder(g.Nodes)
	ids := make([]string, len(order))
	for i, n := range order {
		ids[i] = n.ID
	}
	return InspectReport{Summary: dag.Analyze(g), CanonicalOrder: ids}
}

func outputInspect(f *OutputFormatter, r InspectReport) error {
	if f.Format == "json" {
		return f.JSON(r)
	}

	s := r.Summary
	types := make([]dag.FeatureType, 0, len(s.NodeCounts))
	for ft := range s.NodeCounts {
		types = append(types, ft)
	}
	slices.Sort(types)

	f.Text("Nodes:\n")
	for _, ft := range types {
		f.Text("  %-14s %d\n", ft.String(), s.NodeCounts[ft])
	}
	f.Text("Edges:           %d (dropped %d, self-loops %d)\n", s.EdgeCount, s.DroppedEdges, s.SelfLoops)
	f.Text("Acyclic:         %t\n", s.Acyclic)
	f.Text("Longest path:    %d\n", s.LongestPath)
	f.Text("Distinct layers: %d\n", s.DistinctLayers)
	f.Text("Canonical order:\n")
	for i, id := range r.CanonicalOrder {
		f.Text("  %3d %s\n", i, id)
	}
	return nil
}
