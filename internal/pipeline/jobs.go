package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/fabworks/pdflow/internal/db"
	"github.com/fabworks/pdflow/internal/stage"
)

// Jobs runs stage requests asynchronously with bounded parallelism. Job
// state lives in the database so job ids survive process restarts; cancel
// only works while the submitting process is alive, since it owns the
// running tool.
type Jobs struct {
	runner   *Runner
	database *db.DB
	sem      *semaphore.Weighted
	logger   *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewJobs creates a job manager allowing maxJobs concurrent runs.
func NewJobs(runner *Runner, database *db.DB, maxJobs int, logger *slog.Logger) *Jobs {
	if maxJobs <= 0 {
		maxJobs = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Jobs{
		runner:   runner,
		database: database,
		sem:      semaphore.NewWeighted(int64(maxJobs)),
		logger:   logger,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Submit queues a stage request and returns its job id immediately.
func (j *Jobs) Submit(ctx context.Context, req *stage.Request) (string, error) {
	if req.Tech == "" {
		req.Tech = j.runner.cfg.Tech
	}
	if _, err := req.Validate(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	if err := j.database.CreateJob(ctx, db.JobRecord{
		ID:     id,
		Stage:  req.Stage,
		Design: req.Design,
		Tech:   req.Tech,
	}); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j.mu.Lock()
	j.cancels[id] = cancel
	j.mu.Unlock()

	j.wg.Add(1)
	go j.execute(runCtx, id, req)

	j.logger.Info("job submitted", "job", id, "stage", req.Stage, "design", req.Design)
	return id, nil
}

func (j *Jobs) execute(ctx context.Context, id string, req *stage.Request) {
	defer j.wg.Done()
	defer func() {
		j.mu.Lock()
		delete(j.cancels, id)
		j.mu.Unlock()
	}()

	if err := j.sem.Acquire(ctx, 1); err != nil {
		j.finish(id, db.JobCanceled, err.Error(), nil)
		return
	}
	defer j.sem.Release(1)

	if err := j.database.StartJob(context.WithoutCancel(ctx), id); err != nil {
		j.logger.Error("start job", "job", id, "error", err)
		// The row must not sit in pending forever with its cancel func gone.
		j.finish(id, db.JobFailed, fmt.Sprintf("start job: %v", err), nil)
		return
	}

	res, err := j.runner.Run(ctx, req)
	switch {
	case ctx.Err() != nil:
		j.finish(id, db.JobCanceled, "canceled", res)
	case err != nil:
		j.finish(id, db.JobFailed, err.Error(), res)
	default:
		j.finish(id, db.JobSucceeded, "", res)
	}
}

func (j *Jobs) finish(id, status, errMsg string, res *Result) {
	var version, logPath, scriptPath string
	if res != nil {
		version = res.Version()
		logPath = res.LogPath
		scriptPath = res.ScriptPath
	}
	if err := j.database.FinishJob(context.Background(), id, status, errMsg,
		version, logPath, scriptPath); err != nil {
		j.logger.Error("finish job", "job", id, "error", err)
	}
	j.logger.Info("job finished", "job", id, "status", status)
}

// Cancel stops a running job. Canceling an unknown or finished job is an
// error.
func (j *Jobs) Cancel(ctx context.Context, id string) error {
	j.mu.Lock()
	cancel, ok := j.cancels[id]
	j.mu.Unlock()
	if ok {
		cancel()
		return nil
	}

	job, err := j.database.GetJob(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("job %s is %s and cannot be canceled", id, job.Status)
}

// Status fetches a job's current record.
func (j *Jobs) Status(ctx context.Context, id string) (db.JobRecord, error) {
	return j.database.GetJob(ctx, id)
}

// List returns recent jobs, newest first.
func (j *Jobs) List(ctx context.Context, limit int) ([]db.JobRecord, error) {
	return j.database.ListJobs(ctx, limit)
}

// Wait blocks until every submitted job has finished. Used on shutdown and
// in tests.
func (j *Jobs) Wait() {
	j.wg.Wait()
}
