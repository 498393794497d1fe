package graphsource

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"graphscore/internal/dag"
	"graphscore/internal/logger"
)

// SQLiteSource reads graphs from the graph_nodes and graph_links tables.
// The database is opened read-only.
type SQLiteSource struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens an existing feed database for reading.
func OpenSQLite(path string) (*SQLiteSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat database: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_query_only=true")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	version, _ := getSchemaVersion(db)
	if version < currentSchemaVersion {
		db.Close()
		return nil, fmt.Errorf("database %s has schema version %d, need %d", path, version, currentSchemaVersion)
	}

	return &SQLiteSource{db: db, path: path}, nil
}

// Load reads the graph with the given id. Nodes and links come back in
// their stored ordinal order.
func (s *SQLiteSource) Load(ctx context.Context, graphID string) (*dag.Graph, error) {
	var metadata sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT metadata FROM graphs WHERE id = ?", graphID).Scan(&metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrGraphNotFound, graphID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load graph %s: %w", graphID, err)
	}

	g := &dag.Graph{}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &g.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of graph %s: %w", graphID, err)
		}
	}

	if g.Nodes, err = s.loadNodes(ctx, graphID); err != nil {
		return nil, err
	}
	if g.Links, err = s.loadLinks(ctx, graphID); err != nil {
		return nil, err
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("stored graph %s is invalid: %w", graphID, err)
	}

	logger.LogDebug(ctx, "", "graphsource", "graph_loaded", map[string]interface{}{
		"source":   "sqlite",
		"graph_id": graphID,
		"nodes":    len(g.Nodes),
		"links":    len(g.Links),
	})
	return g, nil
}

func (s *SQLiteSource) loadNodes(ctx context.Context, graphID string) ([]dag.Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, feature_type, layer, ctx_idx, feature, token_prob
		FROM graph_nodes
		WHERE graph_id = ?
		ORDER BY ordinal
	`, graphID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []dag.Node
	for rows.Next() {
		var n dag.Node
		var featureType string
		if err := rows.Scan(&n.ID, &featureType, &n.Layer, &n.CtxIdx, &n.FeatureIndex, &n.TokenProbability); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		n.FeatureType = dag.ParseFeatureType(featureType)
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (s *SQLiteSource) loadLinks(ctx context.Context, graphID string) ([]dag.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, target, weight
		FROM graph_links
		WHERE graph_id = ?
		ORDER BY ordinal
	`, graphID)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var links []dag.Edge
	for rows.Next() {
		var e dag.Edge
		if err := rows.Scan(&e.Source, &e.Target, &e.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, e)
	}
	return links, rows.Err()
}

// ListGraphs returns the ids of all stored graphs.
func (s *SQLiteSource) ListGraphs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM graphs ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}
