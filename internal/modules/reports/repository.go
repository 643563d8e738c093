package reports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/tierfolio/internal/database"
	"github.com/aristath/tierfolio/internal/domain"
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("run not found")

// Repository stores run artifacts
// Database: reports.db (runs, executions tables)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new reports repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "reports").Logger(),
	}
}

// SaveRun stores a run. A missing ID or CreatedAt is filled in.
func (r *Repository) SaveRun(ctx context.Context, run *Run) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	artifact, err := Encode(run)
	if err != nil {
		return err
	}

	s := run.Summary()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, created_at, source, currency, portfolio_value, compliance_score, compliant, trade_count, artifact)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID,
		s.CreatedAt.UnixMilli(),
		s.Source,
		string(s.Currency),
		s.PortfolioValue,
		s.ComplianceScore,
		boolToInt(s.Compliant),
		s.TradeCount,
		artifact,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	r.log.Debug().
		Str("run_id", run.ID).
		Int("artifact_bytes", len(artifact)).
		Msg("Stored run")

	return nil
}

// GetRun loads the full artifact of a run
func (r *Repository) GetRun(ctx context.Context, id string) (*Run, error) {
	var artifact []byte
	err := r.db.QueryRowContext(ctx, "SELECT artifact FROM runs WHERE id = ?", id).Scan(&artifact)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", id, err)
	}

	var run Run
	if err := Decode(artifact, &run); err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, created_at, source, currency, portfolio_value, compliance_score, compliant, trade_count
		FROM runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	summaries := make([]RunSummary, 0)
	for rows.Next() {
		var s RunSummary
		var createdAt int64
		var currency string
		var compliant int
		if err := rows.Scan(&s.ID, &createdAt, &s.Source, &currency, &s.PortfolioValue,
			&s.ComplianceScore, &compliant, &s.TradeCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.CreatedAt = time.UnixMilli(createdAt).UTC()
		s.Currency = domain.Currency(currency)
		s.Compliant = compliant == 1
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return summaries, nil
}

// CountRuns returns the number of stored runs
func (r *Repository) CountRuns(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

// SaveExecution stores a sequencing pass for an existing run
func (r *Repository) SaveExecution(ctx context.Context, exec *Execution) error {
	if exec == nil {
		return fmt.Errorf("execution cannot be nil")
	}
	if exec.ID == "" {
		exec.ID = uuid.New().String()
	}
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = time.Now().UTC()
	}

	blob, err := Encode(exec.Summary)
	if err != nil {
		return err
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE id = ?", exec.RunID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to look up run %s: %w", exec.RunID, err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, exec.RunID)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO executions (id, run_id, created_at, policy, starting_cash, final_cash, summary)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			exec.ID,
			exec.RunID,
			exec.CreatedAt.UnixMilli(),
			string(exec.Summary.Policy),
			exec.Summary.StartingCash,
			exec.Summary.FinalCash,
			blob,
		)
		if err != nil {
			return fmt.Errorf("failed to insert execution: %w", err)
		}
		return nil
	})
}

// ListExecutions returns the sequencing passes of a run, oldest first
func (r *Repository) ListExecutions(ctx context.Context, runID string) ([]Execution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, run_id, created_at, summary
		FROM executions
		WHERE run_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	executions := make([]Execution, 0)
	for rows.Next() {
		var exec Execution
		var createdAt int64
		var blob []byte
		if err := rows.Scan(&exec.ID, &exec.RunID, &createdAt, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		exec.CreatedAt = time.UnixMilli(createdAt).UTC()
		if err := Decode(blob, &exec.Summary); err != nil {
			return nil, fmt.Errorf("execution %s: %w", exec.ID, err)
		}
		executions = append(executions, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// DeleteOlderThan deletes runs (and their executions) older than maxAge.
// Returns the count of deleted runs.
func (r *Repository) DeleteOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge).UnixMilli()

	result, err := r.db.ExecContext(ctx, "DELETE FROM runs WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	count := int(rowsAffected)
	if count > 0 {
		r.log.Info().
			Int("deleted_count", count).
			Dur("max_age", maxAge).
			Msg("Deleted stale runs")
	}

	return count, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
