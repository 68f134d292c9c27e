package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/evoflow-ai/evoflow-go/pkg/core"
	"github.com/evoflow-ai/evoflow-go/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS workflow_versions (
	workflow_version_id TEXT PRIMARY KEY,
	graph_json          TEXT NOT NULL,
	parent_version_ids  TEXT NOT NULL DEFAULT '[]',
	run_id              TEXT,
	generation_number   INTEGER NOT NULL DEFAULT 0,
	created_at          TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS node_invocations (
	workflow_invocation_id TEXT PRIMARY KEY,
	run_id                 TEXT NOT NULL,
	node_id                TEXT NOT NULL,
	status                 TEXT NOT NULL,
	start_time             TIMESTAMP NOT NULL,
	end_time               TIMESTAMP,
	usd_cost               REAL NOT NULL DEFAULT 0,
	accuracy               REAL,
	output_json            TEXT,
	error                  TEXT
);

CREATE INDEX IF NOT EXISTS idx_node_invocations_run
	ON node_invocations (run_id, start_time);
`

// SQLiteStore persists the workflow version and invocation log in a
// local SQLite database. Both tables are append-only; rows are never
// updated or deleted.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the database at path and
// applies the schema. Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "opening sqlite database")
	}
	// SQLite handles one writer at a time; serializing through a single
	// connection avoids SQLITE_BUSY under concurrent runs.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.Unknown, "applying sqlite schema")
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveWorkflowVersion(ctx context.Context, version *core.WorkflowVersion) error {
	if version == nil || version.WorkflowVersionID == "" {
		return errors.New(errors.InvalidInput, "workflow version requires an id")
	}

	graphJSON, err := json.Marshal(version.Graph)
	if err != nil {
		return errors.Wrap(err, errors.InvalidInput, "encoding workflow graph")
	}
	parentsJSON, err := json.Marshal(version.ParentVersionIDs)
	if err != nil {
		return errors.Wrap(err, errors.InvalidInput, "encoding parent version ids")
	}

	createdAt := version.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_versions
			(workflow_version_id, graph_json, parent_version_ids, run_id, generation_number, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		version.WorkflowVersionID, string(graphJSON), string(parentsJSON),
		version.RunID, version.GenerationNumber, createdAt)
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "inserting workflow version")
	}
	return nil
}

func (s *SQLiteStore) SaveNodeInvocation(ctx context.Context, runID string, inv *core.WorkflowInvocation) error {
	if runID == "" || inv == nil {
		return errors.New(errors.InvalidInput, "node invocation requires a run id")
	}

	outputJSON, err := json.Marshal(inv.Output)
	if err != nil {
		return errors.Wrap(err, errors.InvalidInput, "encoding invocation output")
	}

	var accuracy sql.NullFloat64
	if inv.Accuracy != nil {
		accuracy = sql.NullFloat64{Float64: *inv.Accuracy, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO node_invocations
			(workflow_invocation_id, run_id, node_id, status, start_time, end_time, usd_cost, accuracy, output_json, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.WorkflowInvocationID, runID, inv.NodeID, string(inv.Status),
		inv.StartTime, inv.EndTime, inv.UsdCost, accuracy, string(outputJSON), inv.Error)
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "inserting node invocation")
	}
	return nil
}

func (s *SQLiteStore) RetrieveWorkflowVersion(ctx context.Context, versionID string) (*core.WorkflowVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT workflow_version_id, graph_json, parent_version_ids, run_id, generation_number, created_at
		 FROM workflow_versions WHERE workflow_version_id = ?`, versionID)

	var (
		version     core.WorkflowVersion
		graphJSON   string
		parentsJSON string
	)
	err := row.Scan(&version.WorkflowVersionID, &graphJSON, &parentsJSON,
		&version.RunID, &version.GenerationNumber, &version.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "workflow version not found"),
			errors.Fields{"workflow_version_id": versionID})
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "querying workflow version")
	}

	if err := json.Unmarshal([]byte(graphJSON), &version.Graph); err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "decoding workflow graph")
	}
	if err := json.Unmarshal([]byte(parentsJSON), &version.ParentVersionIDs); err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "decoding parent version ids")
	}
	return &version, nil
}

func (s *SQLiteStore) RetrieveWorkflowInvocations(ctx context.Context, runID string) ([]*core.WorkflowInvocation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT workflow_invocation_id, node_id, status, start_time, end_time, usd_cost, accuracy, output_json, error
		 FROM node_invocations WHERE run_id = ? ORDER BY start_time, workflow_invocation_id`, runID)
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "querying node invocations")
	}
	defer rows.Close()

	var invs []*core.WorkflowInvocation
	for rows.Next() {
		var (
			inv        core.WorkflowInvocation
			status     string
			accuracy   sql.NullFloat64
			outputJSON sql.NullString
		)
		err := rows.Scan(&inv.WorkflowInvocationID, &inv.NodeID, &status,
			&inv.StartTime, &inv.EndTime, &inv.UsdCost, &accuracy, &outputJSON, &inv.Error)
		if err != nil {
			return nil, errors.Wrap(err, errors.Unknown, "scanning node invocation")
		}
		inv.Status = core.InvocationStatus(status)
		if accuracy.Valid {
			a := accuracy.Float64
			inv.Accuracy = &a
		}
		if outputJSON.Valid && outputJSON.String != "" {
			if err := json.Unmarshal([]byte(outputJSON.String), &inv.Output); err != nil {
				return nil, errors.Wrap(err, errors.Unknown, "decoding invocation output")
			}
		}
		invs = append(invs, &inv)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "iterating node invocations")
	}
	return invs, nil
}
