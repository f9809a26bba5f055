// Package pipeline runs one image reference through recognition and records the outcome
// in the job ledger.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cardscan/internal/boxtext"
	"github.com/joseph-ayodele/cardscan/internal/common"
	"github.com/joseph-ayodele/cardscan/internal/repository"
	"github.com/joseph-ayodele/cardscan/internal/source"
	"github.com/joseph-ayodele/cardscan/internal/vision"
)

// Recognizer is the part of the vision client the pipeline drives.
type Recognizer interface {
	Submit(ctx context.Context, src source.Source) (vision.JobHandle, error)
	Await(ctx context.Context, h vision.JobHandle) (vision.RawResult, error)
}

// Result of one run. JobID is uuid.Nil when no ledger is configured.
type Result struct {
	JobID        uuid.UUID
	SourceKind   string
	SourceRef    string
	OperationURL string
	Polls        int
	Regions      *boxtext.RegionList
	Elapsed      time.Duration
}

type Pipeline struct {
	Recognizer Recognizer
	Jobs       repository.JobRepository
	Log        *slog.Logger
}

// New builds a pipeline. jobs may be nil to skip the ledger.
func New(rec Recognizer, jobs repository.JobRepository, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{Recognizer: rec, Jobs: jobs, Log: log}
}

// Run classifies ref and recognizes it. Every run that reaches the ledger ends in either
// FinishSuccess or FinishFailure, classification failures included.
func (p *Pipeline) Run(ctx context.Context, ref string, isEncoded bool) (Result, error) {
	src, err := source.Classify(ref, isEncoded)
	if err != nil {
		res := Result{SourceKind: "UNKNOWN", SourceRef: redact(ref, isEncoded)}
		return p.fail(ctx, res, time.Now(), err)
	}
	return p.RunSource(ctx, src)
}

// RunSource recognizes an already classified source.
func (p *Pipeline) RunSource(ctx context.Context, src source.Source) (Result, error) {
	start := time.Now()
	res := Result{SourceKind: src.Kind().String(), SourceRef: src.String()}

	if p.Jobs != nil {
		job, err := p.Jobs.Start(ctx, res.SourceKind, res.SourceRef)
		if err != nil {
			p.Log.Error("pipeline.job_start.error", "source", res.SourceRef, "error", err)
			return res, err
		}
		res.JobID = job.ID
		ctx = common.WithJobID(ctx, job.ID)
	}

	h, err := p.Recognizer.Submit(ctx, src)
	if err != nil {
		return p.fail(ctx, res, start, err)
	}
	res.OperationURL = h.OperationURL

	raw, err := p.Recognizer.Await(ctx, h)
	if err != nil {
		return p.fail(ctx, res, start, err)
	}
	res.Polls = raw.Polls

	regions, err := vision.Parse(raw)
	if err != nil {
		return p.fail(ctx, res, start, err)
	}
	res.Regions = regions
	res.Elapsed = time.Since(start)

	if p.Jobs != nil {
		payload, err := json.Marshal(regions)
		if err != nil {
			return p.fail(ctx, res, start, err)
		}
		err = p.Jobs.FinishSuccess(context.WithoutCancel(ctx), res.JobID, repository.JobSuccess{
			OperationURL: res.OperationURL,
			Polls:        res.Polls,
			RegionCount:  regions.Len(),
			Regions:      payload,
		})
		if err != nil {
			return res, err
		}
	}

	p.Log.Info("pipeline.run.ok",
		"job_id", res.JobID,
		"source", res.SourceRef,
		"lines", regions.Len(),
		"polls", res.Polls,
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)
	return res, nil
}

func (p *Pipeline) fail(ctx context.Context, res Result, start time.Time, cause error) (Result, error) {
	res.Elapsed = time.Since(start)
	p.Log.Error("pipeline.run.failed",
		"job_id", res.JobID,
		"source", res.SourceRef,
		"error_code", common.CodeOf(cause),
		"error", cause,
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)
	if p.Jobs == nil {
		return res, cause
	}
	// The ledger write must survive the caller's cancellation.
	ctx = context.WithoutCancel(ctx)
	if res.JobID == uuid.Nil {
		job, err := p.Jobs.Start(ctx, res.SourceKind, res.SourceRef)
		if err != nil {
			p.Log.Error("pipeline.job_start.error", "source", res.SourceRef, "error", err)
			return res, cause
		}
		res.JobID = job.ID
	}
	if err := p.Jobs.FinishFailure(ctx, res.JobID, cause); err != nil {
		p.Log.Error("pipeline.job_finish.error", "job_id", res.JobID, "error", err)
	}
	return res, cause
}

func redact(ref string, isEncoded bool) string {
	if source.IsURL(ref) || (!isEncoded && len(ref) <= 100) {
		return ref
	}
	return source.Preview(ref)
}
