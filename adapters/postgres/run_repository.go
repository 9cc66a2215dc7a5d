// Package postgres stores pipeline runs in PostgreSQL for shared, long-lived
// benchmark history.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"isoquant/adapters/postgres/migrations"
	"isoquant/domain/core"
	"isoquant/domain/run"
	"isoquant/internal"
	"isoquant/internal/errors"
)

var logger = internal.DefaultLogger.WithComponent("postgres")

// Connect opens a connection pool and applies pending migrations
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, errors.ConfigInvalid("database url is required")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.StorageError("connect to postgres", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := migrations.NewMigrator(db).Up(ctx); err != nil {
		db.Close()
		return nil, errors.StorageError("migrate postgres schema", err)
	}
	return db, nil
}

// RunRepository implements ports.RunRepository on PostgreSQL. The full run
// is kept as JSONB; indexed columns serve lookups.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

type runRow struct {
	ID          string    `db:"id"`
	Variant     string    `db:"variant"`
	Fingerprint string    `db:"fingerprint"`
	Status      string    `db:"status"`
	ErrorCode   string    `db:"error_code"`
	StartedAt   time.Time `db:"started_at"`
	DurationMS  int64     `db:"duration_ms"`
	Record      []byte    `db:"record"`
}

// Save inserts the run or replaces an existing record with the same ID
func (r *RunRepository) Save(ctx context.Context, pr *run.PipelineRun) error {
	record, err := json.Marshal(pr)
	if err != nil {
		return errors.StorageError("encode run "+pr.ID.String(), err)
	}
	row := runRow{
		ID:          pr.ID.String(),
		Variant:     pr.Variant,
		Fingerprint: pr.Fingerprint.Fingerprint.String(),
		Status:      string(pr.Status),
		ErrorCode:   pr.ErrorCode,
		StartedAt:   pr.StartedAt.Time(),
		DurationMS:  pr.Duration.Milliseconds(),
		Record:      record,
	}
	query := `
		INSERT INTO pipeline_runs (
			id, variant, fingerprint, status, error_code, started_at, duration_ms, record
		) VALUES (
			:id, :variant, :fingerprint, :status, :error_code, :started_at, :duration_ms, :record
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			error_code = EXCLUDED.error_code,
			duration_ms = EXCLUDED.duration_ms,
			record = EXCLUDED.record`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return errors.StorageError("save run "+pr.ID.String(), err)
	}
	logger.Trace("saved run %s (%d bytes)", pr.ID, len(record))
	return nil
}

// Get loads a run by ID
func (r *RunRepository) Get(ctx context.Context, id core.RunID) (*run.PipelineRun, error) {
	var record []byte
	err := r.db.GetContext(ctx, &record, `SELECT record FROM pipeline_runs WHERE id = $1`, id.String())
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, core.NewNotFoundError("run", id.String())
	}
	if err != nil {
		return nil, errors.StorageError("read run "+id.String(), err)
	}
	return decode(record)
}

// FindByFingerprint returns the newest completed run with the fingerprint
func (r *RunRepository) FindByFingerprint(ctx context.Context, fp core.Hash) (*run.PipelineRun, error) {
	var record []byte
	err := r.db.GetContext(ctx, &record, `
		SELECT record FROM pipeline_runs
		WHERE fingerprint = $1 AND status = $2
		ORDER BY id DESC
		LIMIT 1`, fp.String(), string(run.StatusCompleted))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, core.NewNotFoundError("run fingerprint", fp.Short())
	}
	if err != nil {
		return nil, errors.StorageError("find run by fingerprint", err)
	}
	return decode(record)
}

// List returns up to limit runs, newest first. A limit of zero lists all.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*run.PipelineRun, error) {
	var records [][]byte
	var err error
	if limit > 0 {
		err = r.db.SelectContext(ctx, &records, `SELECT record FROM pipeline_runs ORDER BY id DESC LIMIT $1`, limit)
	} else {
		err = r.db.SelectContext(ctx, &records, `SELECT record FROM pipeline_runs ORDER BY id DESC`)
	}
	if err != nil {
		return nil, errors.StorageError("list runs", err)
	}

	runs := make([]*run.PipelineRun, 0, len(records))
	for _, rec := range records {
		pr, err := decode(rec)
		if err != nil {
			return nil, err
		}
		runs = append(runs, pr)
	}
	return runs, nil
}

// DeleteBefore removes runs started before the cutoff and returns how many
// were deleted
func (r *RunRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pipeline_runs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, errors.StorageError("prune runs", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logger.Info("pruned %d runs started before %s", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}

func decode(record []byte) (*run.PipelineRun, error) {
	var pr run.PipelineRun
	if err := json.Unmarshal(record, &pr); err != nil {
		return nil, errors.StorageError("decode run", err)
	}
	return &pr, nil
}
