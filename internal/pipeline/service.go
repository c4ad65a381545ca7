// The pipeline package is the heart of trackforge: it sequences
// resolution, per-track extraction and normalization, and packaging for
// each submitted URL, and owns every intermediate file a run creates.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fjmorton/trackforge/internal/event"
	"github.com/fjmorton/trackforge/internal/media"
	"github.com/fjmorton/trackforge/internal/packaging"
	"github.com/fjmorton/trackforge/pkg/logger"
	"github.com/fjmorton/trackforge/pkg/worker"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

var (
	log = logger.Get("PipelineServ")

	ErrRunNotFound = errors.New("no pipeline run could be found")
)

type (
	// The collaborators the orchestrator sequences. Each is treated as a
	// black box; the concrete implementations shell out to external tools.
	Resolver interface {
		Resolve(ctx context.Context, url string) (*media.Source, error)
	}

	Extractor interface {
		Extract(ctx context.Context, descriptor media.TrackDescriptor, workDir string) (*media.AudioArtifact, error)
	}

	Normalizer interface {
		Normalize(ctx context.Context, artifact *media.AudioArtifact) error
	}

	Packager interface {
		Package(source *media.Source, artifacts []*media.AudioArtifact) (*packaging.Result, error)
	}

	Tagger interface {
		TagArtifact(artifact *media.AudioArtifact, albumTitle string) error
	}

	Config struct {
		WorkingDirPath string
		RunWorkers     int
		TrackThreads   int
		// MaxToolProcesses bounds how many external tool processes may be
		// running simultaneously across ALL runs.
		MaxToolProcesses int64
	}

	// pipelineService accepts submitted URLs as queued runs and drives each
	// to a terminal state using a pool of run workers. Runs are isolated
	// from one another; the only coordination between them is the weighted
	// semaphore capping simultaneous external-tool processes.
	pipelineService struct {
		*sync.Mutex
		config Config

		resolver   Resolver
		extractor  Extractor
		normalizer Normalizer
		packager   Packager
		tagger     Tagger

		eventBus event.EventCoordinator

		runs          []*PipelineRun
		workerPool    *worker.WorkerPool
		toolSemaphore *semaphore.Weighted
		runContext    context.Context
	}
)

// New constructs the pipeline service, validating the configured working
// directory (created when missing) and applying sane concurrency defaults.
func New(
	config Config,
	resolver Resolver,
	extractor Extractor,
	normalizer Normalizer,
	packager Packager,
	tagger Tagger,
	eventBus event.EventCoordinator,
) (*pipelineService, error) {
	if info, err := os.Stat(config.WorkingDirPath); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("working directory path '%s' is not a directory", config.WorkingDirPath)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if mkErr := os.MkdirAll(config.WorkingDirPath, os.ModeDir|os.ModePerm); mkErr != nil {
			return nil, fmt.Errorf("working directory '%s' could not be created: %w", config.WorkingDirPath, mkErr)
		}
	} else {
		return nil, fmt.Errorf("working directory '%s' could not be accessed: %w", config.WorkingDirPath, err)
	}

	if config.RunWorkers <= 0 {
		config.RunWorkers = 1
	}
	if config.TrackThreads <= 0 {
		config.TrackThreads = 2
	}
	if config.MaxToolProcesses <= 0 {
		config.MaxToolProcesses = 4
	}

	service := &pipelineService{
		Mutex:         &sync.Mutex{},
		config:        config,
		resolver:      resolver,
		extractor:     extractor,
		normalizer:    normalizer,
		packager:      packager,
		tagger:        tagger,
		eventBus:      eventBus,
		runs:          make([]*PipelineRun, 0),
		workerPool:    worker.NewWorkerPool(),
		toolSemaphore: semaphore.NewWeighted(config.MaxToolProcesses),
	}

	for i := 0; i < config.RunWorkers; i++ {
		label := fmt.Sprintf("pipeline-worker-%d", i)
		service.workerPool.PushWorker(worker.NewWorker(label, service.executeNextRun))
	}

	return service, nil
}

// Run is the main entry point of this service; it blocks until the provided
// context is cancelled. Cancelling the context also cancels every in-flight
// run (their contexts derive from it), and Run waits for the run workers to
// finish their cleanup before returning.
func (service *pipelineService) Run(ctx context.Context) error {
	service.Lock()
	service.runContext = ctx
	service.Unlock()

	if err := service.workerPool.Start(); err != nil {
		return err
	}

	// Work submitted before the pool came up would otherwise sit queued
	// until the next submission wakes a worker.
	service.workerPool.WakeupWorkers()

	<-ctx.Done()
	log.Emit(logger.STOP, "Shutting down (context cancelled). Waiting for pipeline runs to cancel.\n")
	service.workerPool.Close()
	return nil
}

// SubmitRun queues a new pipeline run for the provided request and wakes a
// worker to claim it. The returned ID is the handle for all subsequent
// queries against the run.
func (service *pipelineService) SubmitRun(request SourceRequest) (uuid.UUID, error) {
	if strings.TrimSpace(request.URL) == "" {
		return uuid.Nil, errors.New("cannot submit run: no URL provided")
	}

	run := NewPipelineRun(request)
	service.Lock()
	service.runs = append(service.runs, run)
	service.Unlock()

	log.Emit(logger.NEW, "Queued run %s for URL '%s'\n", run, request.URL)
	service.eventBus.Dispatch(event.RunUpdateEvent, run.ID())
	service.workerPool.WakeupWorkers()

	return run.ID(), nil
}

// CancelRun aborts the run with the given ID. A queued run is cancelled
// immediately; a claimed run has it's context cancelled, which stops
// in-flight extractions and triggers it's cleanup.
func (service *pipelineService) CancelRun(id uuid.UUID) error {
	run := service.GetRun(id)
	if run == nil {
		return ErrRunNotFound
	}

	run.Cancel()
	service.eventBus.Dispatch(event.RunUpdateEvent, run.ID())
	return nil
}

// GetRun returns the run matching the ID provided, or nil if no such
// run is known to this service.
func (service *pipelineService) GetRun(id uuid.UUID) *PipelineRun {
	service.Lock()
	defer service.Unlock()

	for _, run := range service.runs {
		if run.ID() == id {
			return run
		}
	}

	return nil
}

// GetAllRuns returns a snapshot of every run known to this service, in
// submission order.
func (service *pipelineService) GetAllRuns() []*PipelineRun {
	service.Lock()
	defer service.Unlock()

	runs := make([]*PipelineRun, len(service.runs))
	copy(runs, service.runs)
	return runs
}

// executeNextRun is the worker task for this service: it claims the oldest
// queued run (if any) and drives it to a terminal state.
func (service *pipelineService) executeNextRun(w worker.Worker) (bool, error) {
	run := service.claimQueuedRun()
	if run == nil {
		return false, nil
	}

	service.Lock()
	parent := service.runContext
	service.Unlock()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	run.attachCancel(cancel)

	log.Emit(logger.INFO, "Worker %s claimed run %s\n", w.Label(), run)
	run.execute(ctx, runDependencies{
		resolver:       service.resolver,
		extractor:      service.extractor,
		normalizer:     service.normalizer,
		packager:       service.packager,
		tagger:         service.tagger,
		workingDirPath: service.config.WorkingDirPath,
		trackThreads:   service.config.TrackThreads,
		acquireTool:    func(ctx context.Context) error { return service.toolSemaphore.Acquire(ctx, 1) },
		releaseTool:    func() { service.toolSemaphore.Release(1) },
		onProgress:     func(r *PipelineRun) { service.eventBus.Dispatch(event.RunProgressEvent, r.ID()) },
	})

	switch run.Status() {
	case COMPLETE:
		result := run.Result()
		log.Emit(logger.SUCCESS, "Run %s complete: %s output at %s (%d tracks, %d skipped)\n",
			run, result.Kind, result.OutputPath, result.TrackCount, len(result.SkippedTracks))
	case CANCELLED:
		log.Emit(logger.STOP, "Run %s cancelled\n", run)
	default:
		log.Emit(logger.ERROR, "Run %s failed: %v\n", run, run.Error())
	}

	service.eventBus.Dispatch(event.RunCompleteEvent, run.ID())
	return true, nil
}

// claimQueuedRun finds the oldest QUEUED run and atomically moves it to
// RESOLVING so no other worker can claim it once the lock is released.
func (service *pipelineService) claimQueuedRun() *PipelineRun {
	service.Lock()
	defer service.Unlock()

	for _, run := range service.runs {
		if run.claim() {
			return run
		}
	}

	return nil
}
