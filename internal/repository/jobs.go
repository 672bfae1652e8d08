package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/openorcamento/budgetlens/constants"
	"github.com/openorcamento/budgetlens/internal/common"
	"github.com/openorcamento/budgetlens/internal/entity"
)

// ErrActiveJobExists means the document already has a PENDING or RUNNING
// job; at most one non-terminal job per document may exist.
var ErrActiveJobExists = errors.New("document already has an active import job")

type JobRepository interface {
	// Create inserts a PENDING job unless the document already has a
	// non-terminal one. The check and the insert are a single statement
	// so concurrent callers cannot both succeed.
	Create(ctx context.Context, documentID uuid.UUID) (*entity.ImportJob, error)
	// Claim moves PENDING -> RUNNING, but only while no sibling job for
	// the same document is RUNNING. Returns false when the job was
	// already taken, finished, or blocked by a running sibling.
	Claim(ctx context.Context, jobID uuid.UUID) (bool, error)
	// SetProgress raises progress, never lowers it. Stale writes from
	// out-of-order section completions are silently dropped.
	SetProgress(ctx context.Context, jobID uuid.UUID, progress int) error
	// Finish moves the job to a terminal state. COMPLETED forces
	// progress to 100.
	Finish(ctx context.Context, jobID uuid.UUID, status constants.JobStatus, errorMessage *string) error
	Get(ctx context.Context, jobID uuid.UUID) (*entity.ImportJob, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.ImportJob, error)
}

type jobRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewJobRepository(db *sql.DB, log *slog.Logger) JobRepository {
	return &jobRepo{db: db, log: log}
}

func (r *jobRepo) Create(ctx context.Context, documentID uuid.UUID) (*entity.ImportJob, error) {
	job := &entity.ImportJob{
		ID:         uuid.New(),
		DocumentID: documentID,
		Status:     constants.JobStatusPending,
		Progress:   0,
		CreatedAt:  time.Now().UTC(),
	}
	job.UpdatedAt = job.CreatedAt

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO import_jobs (id, document_id, status, progress, error_message, created_at, updated_at)
		 SELECT $1, $2, $3, 0, NULL, $4, $5
		 WHERE NOT EXISTS (
			SELECT 1 FROM import_jobs
			WHERE document_id = $6 AND status IN ($7, $8)
		 )`,
		job.ID.String(), documentID.String(), string(constants.JobStatusPending),
		job.CreatedAt, job.UpdatedAt,
		documentID.String(), string(constants.JobStatusPending), string(constants.JobStatusRunning),
	)
	if err != nil {
		// A concurrent create that slipped past the NOT EXISTS guard is
		// stopped by the idx_jobs_one_active unique index instead.
		if isUniqueViolation(err) {
			return nil, ErrActiveJobExists
		}
		r.log.Error("import_job create failed", "document_id", documentID, "err", err)
		return nil, dbErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrActiveJobExists
	}
	r.log.Info("import_job created", "job_id", job.ID, "document_id", documentID)
	return job, nil
}

// isUniqueViolation matches duplicate-key errors from both engines:
// SQLSTATE 23505 on Postgres, "UNIQUE constraint failed" on SQLite.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

func (r *jobRepo) Claim(ctx context.Context, jobID uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE import_jobs SET status = $1, updated_at = $2
		 WHERE id = $3 AND status = $4
		 AND NOT EXISTS (
			SELECT 1 FROM import_jobs running
			WHERE running.document_id = import_jobs.document_id AND running.status = $5
		 )`,
		string(constants.JobStatusRunning), time.Now().UTC(),
		jobID.String(), string(constants.JobStatusPending), string(constants.JobStatusRunning),
	)
	if err != nil {
		return false, dbErr(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		r.log.Debug("import_job claim lost", "job_id", jobID)
		return false, nil
	}
	r.log.Info("import_job claimed", "job_id", jobID)
	return true, nil
}

func (r *jobRepo) SetProgress(ctx context.Context, jobID uuid.UUID, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE import_jobs SET progress = $1, updated_at = $2
		 WHERE id = $3 AND progress <= $4`,
		progress, time.Now().UTC(), jobID.String(), progress,
	)
	if err != nil {
		return dbErr(err)
	}
	return nil
}

func (r *jobRepo) Finish(ctx context.Context, jobID uuid.UUID, status constants.JobStatus, errorMessage *string) error {
	if !status.Terminal() {
		return common.WrapError(common.ErrInvalidInput, "finish requires a terminal status")
	}

	var msg sql.NullString
	if errorMessage != nil {
		msg = sql.NullString{String: *errorMessage, Valid: true}
	}

	var err error
	if status == constants.JobStatusCompleted {
		_, err = r.db.ExecContext(ctx,
			`UPDATE import_jobs SET status = $1, progress = 100, error_message = $2, updated_at = $3 WHERE id = $4`,
			string(status), msg, time.Now().UTC(), jobID.String())
	} else {
		_, err = r.db.ExecContext(ctx,
			`UPDATE import_jobs SET status = $1, error_message = $2, updated_at = $3 WHERE id = $4`,
			string(status), msg, time.Now().UTC(), jobID.String())
	}
	if err != nil {
		r.log.Error("import_job finish failed", "job_id", jobID, "status", status, "err", err)
		return dbErr(err)
	}
	if status == constants.JobStatusFailed && errorMessage != nil {
		r.log.Warn("import_job finished", "job_id", jobID, "status", status, "error", *errorMessage)
	} else {
		r.log.Info("import_job finished", "job_id", jobID, "status", status)
	}
	return nil
}

func (r *jobRepo) Get(ctx context.Context, jobID uuid.UUID) (*entity.ImportJob, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, document_id, status, progress, error_message, created_at, updated_at
		 FROM import_jobs WHERE id = $1`, jobID.String())
	return scanJob(row)
}

func (r *jobRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.ImportJob, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, document_id, status, progress, error_message, created_at, updated_at
		 FROM import_jobs WHERE document_id = $1 ORDER BY created_at DESC, id`, documentID.String())
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var out []*entity.ImportJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJob(row rowScanner) (*entity.ImportJob, error) {
	var (
		j         entity.ImportJob
		id, docID string
		status    string
		msg       sql.NullString
	)
	err := row.Scan(&id, &docID, &status, &j.Progress, &msg, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, dbErr(err)
	}
	if j.ID, err = uuid.Parse(id); err != nil {
		return nil, dbErr(err)
	}
	if j.DocumentID, err = uuid.Parse(docID); err != nil {
		return nil, dbErr(err)
	}
	j.Status = constants.JobStatus(status)
	if msg.Valid {
		j.ErrorMessage = &msg.String
	}
	return &j, nil
}
