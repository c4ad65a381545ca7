package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fjmorton/trackforge/internal/media"
	"github.com/fjmorton/trackforge/internal/packaging"
	"github.com/fjmorton/trackforge/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type RunStatus int

const (
	QUEUED RunStatus = iota
	RESOLVING
	PROCESSING
	PACKAGING
	COMPLETE
	CANCELLED
	FAILED
)

func (status RunStatus) String() string {
	return []string{
		"QUEUED",
		"RESOLVING",
		"PROCESSING",
		"PACKAGING",
		"COMPLETE",
		"CANCELLED",
		"FAILED",
	}[status]
}

type TrackStatus int

const (
	TrackPending TrackStatus = iota
	TrackExtracting
	TrackNormalizing
	TrackDone
	TrackSkipped
)

func (status TrackStatus) String() string {
	return []string{
		"PENDING",
		"EXTRACTING",
		"NORMALIZING",
		"DONE",
		"SKIPPED",
	}[status]
}

// ErrRunCancelled is the terminal error of a run which was aborted by the
// caller before it reached packaging.
var ErrRunCancelled = errors.New("pipeline run cancelled")

type (
	// SourceRequest is the callers submission: the URL to acquire audio from.
	SourceRequest struct {
		URL string
	}

	// Result is what a completed run hands back to the caller. Ownership of
	// OutputPath transfers with it; every other file the run created has been
	// deleted by the time the result is observable.
	Result struct {
		Kind          packaging.ResultKind
		OutputPath    string
		TrackCount    int
		SkippedTracks []int
	}

	// TrackState is a snapshot of one tracks progress through the run,
	// exposed for activity reporting.
	TrackState struct {
		Index   int
		Title   string
		Status  TrackStatus
		Message string
	}

	// PipelineRun carries one URL through
	// resolve -> extract -> normalize -> package.
	// All intermediate files it creates are scoped to a dedicated working
	// directory which is removed on every exit path; runs share no mutable
	// state with each other.
	PipelineRun struct {
		mutex sync.Mutex

		id        uuid.UUID
		request   SourceRequest
		createdAt time.Time

		status          RunStatus
		source          *media.Source
		trackStates     map[int]*TrackState
		result          *Result
		runErr          error
		cancel          context.CancelFunc
		cancelRequested bool
	}
)

func NewPipelineRun(request SourceRequest) *PipelineRun {
	return &PipelineRun{
		id:          uuid.New(),
		request:     request,
		createdAt:   time.Now(),
		status:      QUEUED,
		trackStates: make(map[int]*TrackState),
	}
}

func (run *PipelineRun) ID() uuid.UUID        { return run.id }
func (run *PipelineRun) URL() string          { return run.request.URL }
func (run *PipelineRun) CreatedAt() time.Time { return run.createdAt }

func (run *PipelineRun) Status() RunStatus {
	run.mutex.Lock()
	defer run.mutex.Unlock()
	return run.status
}

func (run *PipelineRun) Result() *Result {
	run.mutex.Lock()
	defer run.mutex.Unlock()
	return run.result
}

func (run *PipelineRun) Error() error {
	run.mutex.Lock()
	defer run.mutex.Unlock()
	return run.runErr
}

// TrackStates returns a snapshot of every known tracks progress, ordered
// by track index.
func (run *PipelineRun) TrackStates() []TrackState {
	run.mutex.Lock()
	defer run.mutex.Unlock()

	states := make([]TrackState, 0, len(run.trackStates))
	for _, state := range run.trackStates {
		states = append(states, *state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Index < states[j].Index })

	return states
}

// Cancel signals the runs in-flight work to stop. Cancelling a run which has
// already reached a terminal state is a no-op.
func (run *PipelineRun) Cancel() {
	run.mutex.Lock()
	run.cancelRequested = true
	cancel := run.cancel
	if run.status == QUEUED {
		// Never started, so there is no context to cancel; a claiming
		// worker will observe the terminal state and skip the run.
		run.status = CANCELLED
		run.runErr = ErrRunCancelled
	}
	run.mutex.Unlock()

	if cancel != nil {
		cancel()
	}
}

// claim transitions a QUEUED run to RESOLVING, returning whether the
// transition happened. Only one caller can ever win the claim.
func (run *PipelineRun) claim() bool {
	run.mutex.Lock()
	defer run.mutex.Unlock()

	if run.status != QUEUED {
		return false
	}

	run.status = RESOLVING
	return true
}

func (run *PipelineRun) attachCancel(cancel context.CancelFunc) {
	run.mutex.Lock()
	run.cancel = cancel
	requested := run.cancelRequested
	run.mutex.Unlock()

	// Covers a cancellation which raced with the worker claiming this run.
	if requested {
		cancel()
	}
}

func (run *PipelineRun) setStatus(status RunStatus) {
	run.mutex.Lock()
	defer run.mutex.Unlock()
	run.status = status
}

func (run *PipelineRun) setTrackStatus(index int, status TrackStatus, message string) {
	run.mutex.Lock()
	defer run.mutex.Unlock()
	if state, ok := run.trackStates[index]; ok {
		state.Status = status
		state.Message = message
	}
}

func (run *PipelineRun) String() string {
	return run.id.String()
}

// runDependencies carries the collaborators a run needs to execute. They are
// injected by the service so orchestration can be tested against mocks.
type runDependencies struct {
	resolver   Resolver
	extractor  Extractor
	normalizer Normalizer
	packager   Packager
	tagger     Tagger

	workingDirPath string
	trackThreads   int
	acquireTool    func(context.Context) error
	releaseTool    func()
	onProgress     func(*PipelineRun)
}

// execute drives the run to a terminal state. The chosen partial-failure
// policy is skip-and-continue: a track whose extraction or normalization
// fails is recorded as skipped and the remaining tracks still proceed; the
// run only fails outright when resolution fails, packaging fails, every
// track is skipped, or the run is cancelled.
func (run *PipelineRun) execute(ctx context.Context, deps runDependencies) {
	workDir := filepath.Join(deps.workingDirPath, run.id.String())
	if err := os.MkdirAll(workDir, os.ModeDir|os.ModePerm); err != nil {
		run.fail(err)
		return
	}

	// Every intermediate file lives under workDir; removing it on exit is
	// what guarantees the no-leaked-state invariant for success, failure
	// and cancellation alike.
	defer os.RemoveAll(workDir)

	source, err := run.resolve(ctx, deps)
	if err != nil {
		run.finishWithError(ctx, err)
		return
	}

	artifacts, skipped, firstTrackErr := run.processTracks(ctx, deps, source, workDir)
	if ctx.Err() != nil {
		run.finishWithError(ctx, ctx.Err())
		return
	}

	if len(artifacts) == 0 {
		// The skip policy only tolerates partial failure.
		run.fail(firstTrackErr)
		return
	}

	run.setStatus(PACKAGING)
	deps.onProgress(run)

	for _, artifact := range artifacts {
		if err := deps.tagger.TagArtifact(artifact, source.Title); err != nil {
			log.Emit(logger.WARNING, "Failed to tag artifact for track %d of run %s: %v\n", artifact.Track.Index, run, err)
		}
	}

	packaged, err := deps.packager.Package(source, artifacts)
	if err != nil {
		run.fail(err)
		return
	}

	run.mutex.Lock()
	run.status = COMPLETE
	run.result = &Result{
		Kind:          packaged.Kind,
		OutputPath:    packaged.OutputPath,
		TrackCount:    packaged.TrackCount,
		SkippedTracks: skipped,
	}
	run.mutex.Unlock()
}

func (run *PipelineRun) resolve(ctx context.Context, deps runDependencies) (*media.Source, error) {
	run.setStatus(RESOLVING)
	deps.onProgress(run)

	source, err := deps.resolver.Resolve(ctx, run.request.URL)
	if err != nil {
		return nil, err
	}

	run.mutex.Lock()
	run.source = source
	run.status = PROCESSING
	for _, track := range source.Tracks {
		run.trackStates[track.Index] = &TrackState{Index: track.Index, Title: track.Title, Status: TrackPending}
	}
	run.mutex.Unlock()
	deps.onProgress(run)

	return source, nil
}

// processTracks runs extraction and normalization for each track of the
// source. Distinct tracks have no ordering dependency on one another and are
// processed concurrently, bounded per-run by trackThreads and globally by the
// services external-tool limiter. Packaging must not begin until every track
// reaches a terminal state, so this method joins on all of them.
func (run *PipelineRun) processTracks(
	ctx context.Context,
	deps runDependencies,
	source *media.Source,
	workDir string,
) ([]*media.AudioArtifact, []int, error) {
	var (
		mutex         sync.Mutex
		skipped       []int
		firstTrackErr error
	)

	completed := make([]*media.AudioArtifact, len(source.Tracks))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(deps.trackThreads)

	for position, track := range source.Tracks {
		position, track := position, track
		group.Go(func() error {
			artifact, err := run.processTrack(groupCtx, deps, track, workDir)
			if err != nil {
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}

				log.Emit(logger.WARNING, "Skipping track %d (%s) of run %s: %v\n", track.Index, track.Title, run, err)
				run.setTrackStatus(track.Index, TrackSkipped, err.Error())
				deps.onProgress(run)

				mutex.Lock()
				skipped = append(skipped, track.Index)
				if firstTrackErr == nil {
					firstTrackErr = err
				}
				mutex.Unlock()
				return nil
			}

			completed[position] = artifact
			run.setTrackStatus(track.Index, TrackDone, "")
			deps.onProgress(run)
			return nil
		})
	}

	// Join point: all tracks are terminal (done or skipped) past here.
	groupErr := group.Wait()

	artifacts := make([]*media.AudioArtifact, 0, len(completed))
	for _, artifact := range completed {
		if artifact != nil {
			artifacts = append(artifacts, artifact)
		}
	}
	sort.Ints(skipped)

	if groupErr != nil {
		return artifacts, skipped, groupErr
	}

	return artifacts, skipped, firstTrackErr
}

func (run *PipelineRun) processTrack(
	ctx context.Context,
	deps runDependencies,
	track media.TrackDescriptor,
	workDir string,
) (*media.AudioArtifact, error) {
	// The external-tool limiter is the only resource shared between runs.
	if err := deps.acquireTool(ctx); err != nil {
		return nil, err
	}
	defer deps.releaseTool()

	run.setTrackStatus(track.Index, TrackExtracting, "")
	deps.onProgress(run)

	artifact, err := deps.extractor.Extract(ctx, track, workDir)
	if err != nil {
		return nil, err
	}

	run.setTrackStatus(track.Index, TrackNormalizing, "")
	deps.onProgress(run)

	if err := deps.normalizer.Normalize(ctx, artifact); err != nil {
		// The artifact is inside workDir and will be swept with it, but
		// remove it eagerly so a long run doesn't accumulate dead files.
		os.Remove(artifact.Path)
		return nil, err
	}

	return artifact, nil
}

func (run *PipelineRun) finishWithError(ctx context.Context, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		run.mutex.Lock()
		run.status = CANCELLED
		run.runErr = ErrRunCancelled
		run.mutex.Unlock()
		return
	}

	run.fail(err)
}

func (run *PipelineRun) fail(err error) {
	run.mutex.Lock()
	run.status = FAILED
	run.runErr = err
	run.mutex.Unlock()
}
