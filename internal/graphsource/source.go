// Package graphsource reads attribution graphs produced by an upstream
// circuit-analysis system. Sources are read-only.
package graphsource

import (
	"context"
	"errors"
	"fmt"
	"os"

	"graphscore/internal/dag"
	"graphscore/internal/logger"
)

// ErrGraphNotFound is returned when a source has no graph for a reference.
var ErrGraphNotFound = errors.New("graph not found")

// Source loads a graph by reference. What a reference means depends on the
// source: a file path for FileSource, a graph id for SQLiteSource.
type Source interface {
	Load(ctx context.Context, ref string) (*dag.Graph, error)
}

// FileSource loads graph JSON files.
type FileSource struct{}

func (FileSource) Load(ctx context.Context, path string) (*dag.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrGraphNotFound, path)
		}
		return nil, fmt.Errorf("failed to open graph file: %w", err)
	}
	defer f.Close()

	g, err := dag.LoadJSON(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	logger.LogDebug(ctx, "", "graphsource", "graph_loaded", map[string]interface{}{
		"source": "file",
		"path":   path,
		"nodes":  len(g.Nodes),
		"links":  len(g.Links),
	})
	return g, nil
}
