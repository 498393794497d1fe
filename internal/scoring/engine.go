package scoring

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"graphscore/internal/dag"
	"graphscore/internal/logger"
	"graphscore/internal/metrics"
)

// Options tunes the numeric behavior of the engine.
type Options struct {
	MaxIterations        int
	ConvergenceThreshold float64
	NormalizationEpsilon float64
	DuplicateEdges       DuplicateEdgePolicy
	ClampScores          bool
}

// DefaultOptions returns the reference numeric settings.
func DefaultOptions() Options {
	return Options{
		MaxIterations:        DefaultMaxIterations,
		ConvergenceThreshold: DefaultConvergenceThreshold,
		NormalizationEpsilon: DefaultNormalizationEpsilon,
		DuplicateEdges:       DuplicateOverwrite,
		ClampScores:          true,
	}
}

// Result is the outcome of one successful computation.
type Result struct {
	Scores         Scores
	Iterations     int
	NodeCount      int
	DroppedEdges   int
	ShortCircuited bool
}

// Engine runs the scoring pipeline. It holds no per-request state and is
// safe for concurrent use.
type Engine struct {
	opts Options
}

// NewEngine creates an engine; zero numeric options fall back to defaults.
func NewEngine(opts Options) *Engine {
	def := DefaultOptions()
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}
	if opts.ConvergenceThreshold <= 0 {
		opts.ConvergenceThreshold = def.ConvergenceThreshold
	}
	if opts.NormalizationEpsilon <= 0 {
		opts.NormalizationEpsilon = def.NormalizationEpsilon
	}
	return &Engine{opts: opts}
}

// Options returns the effective engine options.
func (e *Engine) Options() Options {
	return e.opts
}

// Compute filters g to the pinned subset, builds and normalizes the
// adjacency matrix, propagates logit influence and returns both scores.
//
// A non-empty pinned list that removes every Transcoder node yields zero
// scores without running the pipeline. So does an empty graph.
func (e *Engine) Compute(ctx context.Context, requestID string, g *dag.Graph, pinnedIDs []string) (*Result, error) {
	start := time.Now()
	ctx, span := metrics.StartSpan(ctx, "scoring.compute",
		attribute.String("request.id", requestID),
		attribute.Int("pinned.count", len(pinnedIDs)),
	)
	defer span.End()

	res, err := e.compute(ctx, requestID, g, pinnedIDs)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		code := CodeOf(err)
		metrics.RecordComputation(elapsed, "failed")
		metrics.RecordError("scoring", string(code))
		metrics.RecordSpanError(ctx, err)
		logger.LogError(ctx, requestID, "scoring", "computation_failed", err, map[string]interface{}{
			"code":        code,
			"duration_ms": elapsed * 1000,
		})
		return nil, err
	}

	status := "success"
	if res.ShortCircuited {
		status = "short_circuit"
	}
	metrics.RecordComputation(elapsed, status)
	metrics.RecordScores(res.Scores.Replacement, res.Scores.Completeness)
	metrics.AddSpanAttributes(ctx,
		attribute.Int("graph.nodes", res.NodeCount),
		attribute.Int("propagation.iterations", res.Iterations),
		attribute.Float64("score.replacement", res.Scores.Replacement),
		attribute.Float64("score.completeness", res.Scores.Completeness),
	)
	logger.LogEvent(ctx, requestID, "scoring", "scores_computed", map[string]interface{}{
		"replacement_score":  res.Scores.Replacement,
		"completeness_score": res.Scores.Completeness,
		"iterations":         res.Iterations,
		"nodes":              res.NodeCount,
		"short_circuited":    res.ShortCircuited,
		"duration_ms":        elapsed * 1000,
	})
	return res, nil
}

func (e *Engine) compute(ctx context.Context, requestID string, g *dag.Graph, pinnedIDs []string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap(CodeWorkerTerminated, err, "computation cancelled")
	}
	if err := g.Validate(); err != nil {
		if errors.Is(err, dag.ErrNilGraph) {
			return nil, Wrap(CodeInputMalformed, err, "graph is required")
		}
		return nil, Wrap(CodeInputMalformed, err, "graph failed validation")
	}

	filtered, transcoders := FilterPinned(g, pinnedIDs)
	if len(pinnedIDs) > 0 && transcoders == 0 {
		metrics.AddSpanEvent(ctx, "empty_pinned_subset")
		logger.LogEvent(ctx, requestID, "scoring", "empty_pinned_subset", map[string]int{
			"pinned": len(pinnedIDs),
		})
		return &Result{ShortCircuited: true}, nil
	}

	dag.LogGraphSummary(ctx, requestID, filtered, dag.Analyze(filtered))

	adj := BuildAdjacency(filtered, e.opts.DuplicateEdges)
	metrics.RecordGraphSize(adj.Size())
	if adj.Size() == 0 {
		return &Result{DroppedEdges: adj.DroppedEdges}, nil
	}

	a := NormalizeRows(adj.Matrix, e.opts.NormalizationEpsilon)
	weights := adj.LogitWeights()

	prop, err := Propagate(ctx, a, weights, e.opts.MaxIterations, e.opts.ConvergenceThreshold)
	if err != nil {
		return nil, err
	}
	metrics.RecordPropagation(prop.Iterations)
	metrics.AddSpanEvent(ctx, "propagation_converged", attribute.Int("iterations", prop.Iterations))

	scores := CalculateScores(a, prop.Total, weights, ComputeRanges(adj.Nodes))
	if e.opts.ClampScores {
		scores = e.clamp(ctx, requestID, scores)
	}

	return &Result{
		Scores:       scores,
		Iterations:   prop.Iterations,
		NodeCount:    adj.Size(),
		DroppedEdges: adj.DroppedEdges,
	}, nil
}

func (e *Engine) clamp(ctx context.Context, requestID string, s Scores) Scores {
	replacement, rc := clamp01(s.Replacement)
	completeness, cc := clamp01(s.Completeness)
	if rc || cc {
		logger.LogWarn(ctx, requestID, "scoring", "scores_clamped", map[string]float64{
			"replacement_raw":  s.Replacement,
			"completeness_raw": s.Completeness,
		})
	}
	return Scores{Replacement: replacement, Completeness: completeness}
}
