package graphsource

import (
	"context"
	"database/sql"
	"fmt"

	"graphscore/internal/logger"
)

const currentSchemaVersion = 1

// InitSchema creates the graph feed tables and indexes.
// It's idempotent - safe to call multiple times. Producers of the feed
// call it; SQLiteSource itself never writes.
func InitSchema(db *sql.DB) error {
	version, err := getSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := createTables(tx); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if err := createIndexes(tx); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema initialization: %w", err)
	}

	logger.LogEvent(context.Background(), "", "graphsource", "schema_initialized", map[string]int{
		"from_version": version,
		"to_version":   currentSchemaVersion,
	})
	return nil
}

func createTables(tx *sql.Tx) error {
	statements := []struct {
		name string
		ddl  string
	}{
		{"schema_version", `
			CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER PRIMARY KEY,
				applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`},
		{"graphs", `
			CREATE TABLE IF NOT EXISTS graphs (
				id TEXT PRIMARY KEY,
				metadata TEXT,  -- JSON object, optional
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`},
		{"graph_nodes", `
			CREATE TABLE IF NOT EXISTS graph_nodes (
				graph_id TEXT NOT NULL,
				ordinal INTEGER NOT NULL,
				node_id TEXT NOT NULL,
				feature_type TEXT NOT NULL,
				layer TEXT NOT NULL,
				ctx_idx INTEGER NOT NULL DEFAULT 0,
				feature INTEGER NOT NULL DEFAULT 0,
				token_prob REAL NOT NULL DEFAULT 0.0,
				PRIMARY KEY (graph_id, node_id),
				FOREIGN KEY (graph_id) REFERENCES graphs(id) ON DELETE CASCADE
			)`},
		{"graph_links", `
			CREATE TABLE IF NOT EXISTS graph_links (
				graph_id TEXT NOT NULL,
				ordinal INTEGER NOT NULL,
				source TEXT NOT NULL,
				target TEXT NOT NULL,
				weight REAL NOT NULL,
				PRIMARY KEY (graph_id, ordinal),
				FOREIGN KEY (graph_id) REFERENCES graphs(id) ON DELETE CASCADE
			)`},
	}

	for _, st := range statements {
		if _, err := tx.Exec(st.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", st.name, err)
		}
	}
	return nil
}

func createIndexes(tx *sql.Tx) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_graph_nodes_order ON graph_nodes(graph_id, ordinal)`,
	}

	for _, idx := range indexes {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func getSchemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil {
		// Table might not exist yet
		return 0, nil
	}
	return version, nil
}
