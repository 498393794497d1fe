package cli

import (
	"context"
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"graphscore/internal/boundary"
	"graphscore/internal/dag"
	"graphscore/internal/graphsource"
	"graphscore/internal/scoring"
)

// ScoreOptions holds flags for the score command.
type ScoreOptions struct {
	Pinned   []string
	Database string
	GraphID  string
}

// NewScoreCommand creates the score command.
func NewScoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScoreOptions{}

	cmd := &cobra.Command{
		Use:   "score [graph.json]",
		Short: "Compute replacement and completeness scores",
		Long: `Compute replacement and completeness scores for one attribution graph.

The graph is read from a JSON file, or from a feed database with --db and
--graph-id. --pinned restricts scoring to the given feature node ids.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd, rootOpts, opts, args)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Pinned, "pinned", nil, "comma-separated pinned node ids")
	cmd.Flags().StringVar(&opts.Database, "db", "", "read the graph from this SQLite feed database")
	cmd.Flags().StringVar(&opts.GraphID, "graph-id", "", "graph id within --db")

	return cmd
}

func runScore(cmd *cobra.Command, rootOpts *RootOptions, opts *ScoreOptions, args []string) error {
	f := rootOpts.formatter(cmd)
	ctx := cmd.Context()

	g, err := loadGraph(ctx, f, opts, args)
	if err != nil {
		return err
	}

	cfg := rootOpts.Config
	client := boundary.NewClient(scoring.NewEngine(cfg.ScoringOptions()), cfg.ClientOptions())

	ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout())
	defer cancel()

	id := client.NextRequestID()
	f.VerboseLog("Scoring %d nodes, %d links as request %d", len(g.Nodes), len(g.Links), id)

	resp, err := client.Do(ctx, &boundary.Request{RequestID: &id, Graph: g, PinnedIDs: opts.Pinned})
	if err != nil {
		code := scoring.CodeOf(err)
		_ = f.Error(string(code), err.Error())
		return WrapExitError(ExitFailure, "scoring failed", err)
	}
	if resp.Failed() {
		_ = f.Error(string(resp.Code), resp.Error)
		return WrapExitError(ExitFailure, "scoring failed", resp.Err())
	}

	if f.Format == "json" {
		return f.JSON(resp)
	}
	f.Text("Replacement score:  %.6f\n", resp.ReplacementScore)
	f.Text("Completeness score: %.6f\n", resp.CompletenessScore)
	return nil
}

func loadGraph(ctx context.Context, f *OutputFormatter, opts *ScoreOptions, args []string) (*dag.Graph, error) {
	var (
		src graphsource.Source
		ref string
	)

	switch {
	case opts.Database != "":
		if opts.GraphID == "" {
			_ = f.Error("USAGE", "--graph-id is required with --db")
			return nil, &ExitError{Code: ExitCommandError, Message: "--graph-id is required with --db"}
		}
		db, err := graphsource.OpenSQLite(opts.Database)
		if err != nil {
			_ = f.Error("SOURCE_UNAVAILABLE", err.Error())
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer db.Close()
		src, ref = db, opts.GraphID
	case len(args) == 1:
		src, ref = graphsource.FileSource{}, args[0]
	default:
		_ = f.Error("USAGE", "a graph file or --db/--graph-id is required")
		return nil, &ExitError{Code: ExitCommandError, Message: "no graph given"}
	}

	g, err := src.Load(ctx, ref)
	if err != nil {
		code := "SOURCE_UNAVAILABLE"
		if errors.Is(err, graphsource.ErrGraphNotFound) {
			code = "NOT_FOUND"
		}
		var verr *dag.ValidationError
		if errors.As(err, &verr) {
			code = string(scoring.CodeInputMalformed)
		}
		_ = f.Error(code, err.Error())
		return nil, WrapExitError(ExitCommandError, "failed to load graph "+strconv.Quote(ref), err)
	}
	return g, nil
}
