package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cardscan/constants"
	"github.com/joseph-ayodele/cardscan/internal/common"
	"github.com/joseph-ayodele/cardscan/internal/entity"
)

// ErrJobNotFound is returned by Get for an unknown id.
var ErrJobNotFound = errors.New("recognition job not found")

// JobSuccess is what a finished recognition records.
type JobSuccess struct {
	OperationURL string
	Polls        int
	RegionCount  int
	Regions      json.RawMessage
}

type JobRepository interface {
	Start(ctx context.Context, sourceKind, sourceRef string) (*entity.RecognitionJob, error)
	FinishSuccess(ctx context.Context, jobID uuid.UUID, res JobSuccess) error
	FinishFailure(ctx context.Context, jobID uuid.UUID, cause error) error
	Get(ctx context.Context, jobID uuid.UUID) (*entity.RecognitionJob, error)
	ListRecent(ctx context.Context, limit int) ([]*entity.RecognitionJob, error)
}

type jobRepo struct {
	db  *DB
	log *slog.Logger
	now func() time.Time
}

func NewJobRepository(db *DB, log *slog.Logger) JobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &jobRepo{db: db, log: log, now: time.Now}
}

const jobColumns = `id, source_kind, source_ref, status, operation_url, polls, region_count, regions,
	error_code, grpc_code, error_message, started_at, finished_at`

func (r *jobRepo) Start(ctx context.Context, sourceKind, sourceRef string) (*entity.RecognitionJob, error) {
	job := &entity.RecognitionJob{
		ID:         uuid.New(),
		SourceKind: sourceKind,
		SourceRef:  sourceRef,
		Status:     constants.JobStatusRunning,
		StartedAt:  r.now().UTC().Truncate(time.Millisecond),
	}
	_, err := r.db.SQL.ExecContext(ctx, r.db.rebind(
		`INSERT INTO recognition_jobs (id, source_kind, source_ref, status, started_at) VALUES (?, ?, ?, ?, ?)`),
		job.ID.String(), job.SourceKind, job.SourceRef, string(job.Status), job.StartedAt.UnixMilli())
	if err != nil {
		r.log.Error("job.start.error", "source_kind", sourceKind, "error", err)
		return nil, err
	}
	r.log.Info("job.start.ok", "job_id", job.ID, "source_kind", sourceKind)
	return job, nil
}

func (r *jobRepo) FinishSuccess(ctx context.Context, jobID uuid.UUID, res JobSuccess) error {
	regions := res.Regions
	if regions == nil {
		regions = json.RawMessage("[]")
	}
	err := r.update(ctx, jobID,
		`UPDATE recognition_jobs SET status = ?, operation_url = ?, polls = ?, region_count = ?, regions = ?, finished_at = ? WHERE id = ?`,
		string(constants.JobStatusSucceeded), res.OperationURL, res.Polls, res.RegionCount, string(regions),
		r.now().UTC().UnixMilli(), jobID.String())
	if err != nil {
		r.log.Error("job.finish_success.error", "job_id", jobID, "error", err)
		return err
	}
	r.log.Info("job.finish_success.ok", "job_id", jobID, "regions", res.RegionCount, "polls", res.Polls)
	return nil
}

// FinishFailure records the application error code and the gRPC code name of cause.
func (r *jobRepo) FinishFailure(ctx context.Context, jobID uuid.UUID, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	code := common.CodeOf(cause)
	grpcCode := common.GRPCCode(cause).String()
	err := r.update(ctx, jobID,
		`UPDATE recognition_jobs SET status = ?, error_code = ?, grpc_code = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		string(constants.JobStatusFailed), nullString(code), grpcCode, msg, r.now().UTC().UnixMilli(), jobID.String())
	if err != nil {
		r.log.Error("job.finish_failure.error", "job_id", jobID, "error", err)
		return err
	}
	r.log.Warn("job.finish_failure.ok", "job_id", jobID, "error_code", code, "grpc_code", grpcCode, "error", msg)
	return nil
}

func (r *jobRepo) update(ctx context.Context, jobID uuid.UUID, query string, args ...any) error {
	res, err := r.db.SQL.ExecContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return nil
}

func (r *jobRepo) Get(ctx context.Context, jobID uuid.UUID) (*entity.RecognitionJob, error) {
	row := r.db.SQL.QueryRowContext(ctx, r.db.rebind(`SELECT `+jobColumns+` FROM recognition_jobs WHERE id = ?`), jobID.String())
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		r.log.Error("job.get.error", "job_id", jobID, "error", err)
		return nil, err
	}
	return job, nil
}

// ListRecent returns up to limit jobs, newest first.
func (r *jobRepo) ListRecent(ctx context.Context, limit int) ([]*entity.RecognitionJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.SQL.QueryContext(ctx, r.db.rebind(
		`SELECT `+jobColumns+` FROM recognition_jobs ORDER BY started_at DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		r.log.Error("job.list.error", "error", err)
		return nil, err
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			r.log.Warn("job.list.rows_close_error", "error", err)
		}
	}(rows)

	var out []*entity.RecognitionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*entity.RecognitionJob, error) {
	var (
		id, status                         string
		opURL, regions, code, grpc, errMsg sql.NullString
		startedAt                          int64
		finishedAt                         sql.NullInt64
		job                                entity.RecognitionJob
	)
	if err := s.Scan(&id, &job.SourceKind, &job.SourceRef, &status, &opURL, &job.Polls, &job.RegionCount,
		&regions, &code, &grpc, &errMsg, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", id, err)
	}
	job.ID = parsed
	job.Status = constants.JobStatus(status)
	job.OperationURL = stringPtr(opURL)
	job.ErrorCode = stringPtr(code)
	job.GRPCCode = stringPtr(grpc)
	job.ErrorMessage = stringPtr(errMsg)
	if regions.Valid {
		job.Regions = json.RawMessage(regions.String)
	}
	job.StartedAt = time.UnixMilli(startedAt).UTC()
	if finishedAt.Valid {
		t := time.UnixMilli(finishedAt.Int64).UTC()
		job.FinishedAt = &t
	}
	return &job, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
