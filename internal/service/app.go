// Package service wires the daemon together: discovery, the job queue, the
// worker pool, service state and the control listener.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/karelmartinek-a11y/kajovospend/constants"
	"github.com/karelmartinek-a11y/kajovospend/internal/async"
	"github.com/karelmartinek-a11y/kajovospend/internal/common"
	"github.com/karelmartinek-a11y/kajovospend/internal/entity"
	"github.com/karelmartinek-a11y/kajovospend/internal/ingest"
	"github.com/karelmartinek-a11y/kajovospend/internal/pipeline"
	"github.com/karelmartinek-a11y/kajovospend/internal/repository"
)

// mutation is applied to the service state by its single writer goroutine.
type mutation func(*entity.ServiceState)

type App struct {
	cfg    *common.Config
	jobs   repository.JobRepository
	state  repository.StateRepository
	proc   *pipeline.Processor
	pool   *async.WorkerPool
	logger *slog.Logger

	mutCh  chan mutation
	snapCh chan chan entity.ServiceState

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewApp(cfg *common.Config, jobs repository.JobRepository, state repository.StateRepository,
	proc *pipeline.Processor, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		cfg:    cfg,
		jobs:   jobs,
		state:  state,
		proc:   proc,
		logger: logger,
		mutCh:  make(chan mutation, 64),
		snapCh: make(chan chan entity.ServiceState),
		stopCh: make(chan struct{}),
	}
	a.pool = async.NewWorkerPool(a.handleJob, logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithProcessTimeout(cfg.Pipeline.ProcessTimeout.Std()),
	)
	return a
}

// Stop requests a graceful shutdown. Safe to call more than once.
func (a *App) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}

// Snapshot returns the current service state. Served by the state writer so
// readers never race it.
func (a *App) Snapshot() entity.ServiceState {
	reply := make(chan entity.ServiceState, 1)
	select {
	case a.snapCh <- reply:
		return <-reply
	case <-a.stopCh:
		return entity.ServiceState{}
	}
}

func (a *App) mutate(m mutation) {
	select {
	case a.mutCh <- m:
	case <-a.stopCh:
	}
}

// Run blocks until the context is cancelled or Stop is called.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	events, watchErrs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Root:        a.cfg.Dirs.Inbox,
		InitialScan: true,
		Debounce:    a.cfg.Pipeline.Debounce.Std(),
	})
	if err != nil {
		return err
	}

	a.mutate(func(s *entity.ServiceState) {
		s.Running = true
		s.MaxWorkers = a.pool.Workers()
		s.Phase = "idle"
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.stateLoop(ctx) })
	g.Go(func() error { return a.watchLoop(ctx, events, watchErrs) })
	g.Go(func() error { return a.rescanLoop(ctx) })
	g.Go(func() error { return a.watchdogLoop(ctx) })
	g.Go(func() error { return a.dispatchLoop(ctx) })

	err = g.Wait()

	// do not wait for in-flight workers; the watchdog sweeps their jobs
	poolCtx, poolCancel := context.WithTimeout(context.Background(), time.Second)
	a.pool.Shutdown(poolCtx)
	poolCancel()

	final, _ := a.state.Load(context.Background())
	final.Running = false
	final.Phase = "shutdown"
	if serr := a.state.Save(context.Background(), final); serr != nil {
		a.logger.Warn("saving final state failed", "error", serr)
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// stateLoop is the only writer of ServiceState. It applies mutations, serves
// snapshots and persists on every change plus a heartbeat tick.
func (a *App) stateLoop(ctx context.Context) error {
	state, err := a.state.Load(ctx)
	if err != nil {
		return err
	}

	heartbeat := time.NewTicker(10 * time.Second)
	defer heartbeat.Stop()

	persist := func() {
		if err := a.state.Save(ctx, state); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("saving service state failed", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-a.mutCh:
			m(&state)
			state.Inflight = a.pool.Inflight()
			persist()
		case reply := <-a.snapCh:
			state.Inflight = a.pool.Inflight()
			reply <- state
		case <-heartbeat.C:
			now := time.Now().UTC()
			state.HeartbeatAt = &now
			if n, err := a.jobs.QueueSize(ctx); err == nil {
				state.QueueSize = n
			}
			persist()
		}
	}
}

func (a *App) watchLoop(ctx context.Context, events <-chan string, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path, ok := <-events:
			if !ok {
				return nil
			}
			a.enqueue(ctx, path)
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			a.logger.Warn("watcher reported error", "error", err)
		}
	}
}

func (a *App) enqueue(ctx context.Context, path string) {
	job, created, err := a.jobs.Enqueue(ctx, path)
	if err != nil {
		a.logger.Error("enqueue failed", "path", path, "error", err)
		return
	}
	if created {
		a.logger.Info("file queued", "path", path, "job_id", job.ID, "trace_id", job.TraceID)
		a.mutate(func(s *entity.ServiceState) { s.QueueSize++ })
	}
}

// rescanLoop walks the inbox periodically so files the watcher missed still
// get picked up, and moves unsupported files to quarantine.
func (a *App) rescanLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Pipeline.RescanInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.mutate(func(s *entity.ServiceState) { s.Phase = "scanning" })
			supported, unsupported, err := ingest.Scan(a.cfg.Dirs.Inbox)
			if err != nil {
				a.logger.Warn("inbox rescan failed", "error", err)
			}
			for _, p := range supported {
				a.enqueue(ctx, p)
			}
			for _, p := range unsupported {
				dest, mvErr := ingest.SafeMove(p, a.cfg.Dirs.Quarantine)
				if mvErr != nil {
					a.logger.Warn("quarantining unsupported file failed", "path", p, "error", mvErr)
					continue
				}
				a.logger.Info("unsupported file quarantined", "path", p, "moved_to", dest)
			}
			a.mutate(func(s *entity.ServiceState) { s.Phase = "idle" })
		}
	}
}

func (a *App) watchdogLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.jobs.FailStuck(ctx, a.cfg.Pipeline.StuckTimeout.Std()); err != nil {
				a.logger.Warn("watchdog sweep failed", "error", err)
			}
		}
	}
}

// dispatchLoop claims jobs FIFO and hands them to the pool. The stop flag is
// observed at the top of every iteration.
func (a *App) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := a.jobs.ClaimNext(ctx)
		if errors.Is(err, repository.ErrNotFound) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			a.logger.Error("claiming job failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		a.mutate(func(s *entity.ServiceState) { s.Phase = "dispatching" })
		if !a.pool.Dispatch(job) {
			// pool already closed; leave the job to the watchdog
			return nil
		}
	}
}

// handleJob runs the pipeline for one claimed job and settles its terminal
// state exactly once.
func (a *App) handleJob(ctx context.Context, job *entity.Job) {
	a.mutate(func(s *entity.ServiceState) { s.Phase = "processing" })

	outcome := a.runPipeline(ctx, job)

	// the pipeline fills in the content hash as its first step; record it on
	// the job so reruns of the same content are traceable
	if job.SHA256 != "" {
		if err := a.jobs.SetSHA256(ctx, job.ID, job.SHA256); err != nil {
			a.logger.Warn("recording job hash failed", "job_id", job.ID, "error", err)
		}
	}

	errText := ""
	if outcome.Err != nil {
		errText = outcome.Err.Error()
	}
	if err := a.jobs.Finish(ctx, job.ID, outcome.Status, errText); err != nil {
		a.logger.Error("finishing job failed", "job_id", job.ID, "error", err)
	}

	now := time.Now().UTC()
	a.mutate(func(s *entity.ServiceState) {
		s.LastSeen = &now
		if s.QueueSize > 0 {
			s.QueueSize--
		}
		switch outcome.Status {
		case constants.JobStatusDone, constants.JobStatusDuplicate:
			s.LastSuccess = &now
		case constants.JobStatusError, constants.JobStatusQuarantine:
			s.LastError = errText
			s.LastErrorAt = &now
		}
		s.Phase = "idle"
	})
	a.logger.Info("job settled",
		"job_id", job.ID, "trace_id", job.TraceID,
		"status", string(outcome.Status), "documents", outcome.Documents)
}

// runPipeline converts a panic anywhere in the pipeline into an ERROR
// outcome so the job still settles and the worker survives.
func (a *App) runPipeline(ctx context.Context, job *entity.Job) (outcome pipeline.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("pipeline panicked",
				"job_id", job.ID, "panic", r, "stack", string(debug.Stack()))
			outcome = pipeline.Outcome{
				Status: constants.JobStatusError,
				Err:    fmt.Errorf("pipeline panic: %v", r),
			}
		}
	}()
	return a.proc.ProcessFile(ctx, job)
}
