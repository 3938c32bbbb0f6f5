package journal

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/danpasecinic/podfleet/internal/types"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// uniqueViolation is the PostgreSQL error code for a duplicate key
const uniqueViolation = "23505"

// PostgresJournal is a PostgreSQL implementation of Journal
type PostgresJournal struct {
	db *sql.DB
}

// NewPostgresJournal connects to the database and applies migrations
func NewPostgresJournal(connectionString string) (*PostgresJournal, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	j := &PostgresJournal{db: db}

	if err := j.runMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return j, nil
}

// Close closes the database connection
func (j *PostgresJournal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// runMigrations applies the database schema using goose
func (j *PostgresJournal) runMigrations() error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(j.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Record stores the batch and its entries in one transaction
func (j *PostgresJournal) Record(batch Batch) error {
	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(
		`INSERT INTO journal_batches (batch_id, cluster, source, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		batch.ID, batch.Cluster, batch.Source, batch.StartedAt, batch.FinishedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrBatchAlreadyExists
		}
		return fmt.Errorf("failed to insert batch: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO journal_entries (batch_id, position, kind, name, namespace, node, phase, message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare entry insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, e := range batch.Entries {
		_, err := stmt.Exec(batch.ID, i, e.Kind, e.Name, e.Namespace, e.Node, e.Phase, e.Message)
		if err != nil {
			return fmt.Errorf("failed to insert entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// List returns recorded batches, newest first
func (j *PostgresJournal) List(limit int) ([]Batch, error) {
	query := `
		SELECT batch_id, cluster, source, started_at, finished_at
		FROM journal_batches
		ORDER BY started_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var batches []Batch
	index := make(map[string]int)
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.Cluster, &b.Source, &b.StartedAt, &b.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		index[b.ID] = len(batches)
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate batches: %w", err)
	}
	if len(batches) == 0 {
		return batches, nil
	}

	ids := make([]string, 0, len(batches))
	for _, b := range batches {
		ids = append(ids, b.ID)
	}

	entryRows, err := j.db.Query(
		`SELECT batch_id, kind, name, namespace, node, phase, message
		 FROM journal_entries
		 WHERE batch_id = ANY($1)
		 ORDER BY batch_id, position`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer func() { _ = entryRows.Close() }()

	for entryRows.Next() {
		var batchID, kind, phase string
		var e Entry
		if err := entryRows.Scan(&batchID, &kind, &e.Name, &e.Namespace, &e.Node, &phase, &e.Message); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Kind = types.ResourceKind(kind)
		e.Phase = types.SchedulePhase(phase)

		i := index[batchID]
		batches[i].Entries = append(batches[i].Entries, e)
	}
	if err := entryRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}

	return batches, nil
}
