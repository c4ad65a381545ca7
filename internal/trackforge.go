package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/fjmorton/trackforge/internal/api"
	"github.com/fjmorton/trackforge/internal/event"
	"github.com/fjmorton/trackforge/internal/ffmpeg"
	"github.com/fjmorton/trackforge/internal/gain"
	"github.com/fjmorton/trackforge/internal/packaging"
	"github.com/fjmorton/trackforge/internal/pipeline"
	"github.com/fjmorton/trackforge/internal/tool"
	"github.com/fjmorton/trackforge/internal/ytdlp"
	"github.com/fjmorton/trackforge/pkg/logger"
	"github.com/google/uuid"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	RestGateway interface {
		RunnableService
		BroadcastRunUpdate(runID uuid.UUID) error
	}

	PipelineService interface {
		RunnableService
		SubmitRun(request pipeline.SourceRequest) (uuid.UUID, error)
		CancelRun(id uuid.UUID) error
		GetRun(id uuid.UUID) *pipeline.PipelineRun
		GetAllRuns() []*pipeline.PipelineRun
	}
)

// trackforgeImpl represents the top-level object for the server, and is
// responsible for constructing the pipeline components, wiring them to the
// event bus, and running the services until stopped.
type trackforgeImpl struct {
	eventBus event.EventCoordinator
	config   TrackforgeConfig

	pipelineService PipelineService
	restGateway     RestGateway
}

func New(config TrackforgeConfig) *trackforgeImpl {
	log.Emit(logger.DEBUG, "Bootstrapping trackforge services using config: %#v\n", config)
	forge := &trackforgeImpl{
		eventBus: event.New(),
		config:   config,
	}

	if serv, err := NewPipelineService(config, forge.eventBus); err == nil {
		forge.pipelineService = serv
	} else {
		panic(fmt.Sprintf("failed to construct pipeline service due to error: %s", err.Error()))
	}

	forge.restGateway = api.NewRestGateway(&config.RestConfig, forge.pipelineService)
	forge.registerEventHandlers()

	return forge
}

// NewPipelineService constructs a fully-wired pipeline service from the user
// configuration: the yt-dlp resolver/extractor, mp3gain normalizer and zip
// packager are all assembled here. Used directly by the one-shot CLI, which
// has no need of the REST gateway.
func NewPipelineService(config TrackforgeConfig, eventBus event.EventCoordinator) (PipelineService, error) {
	runner := tool.NewRunner()
	ffmpegConfig := &ffmpeg.Config{
		FfmpegBinPath:  config.Tools.FfmpegBinPath,
		FfprobeBinPath: config.Tools.FfprobeBinPath,
	}
	ytdlpConfig := ytdlp.Config{BinaryPath: config.Tools.YtdlpBinPath}

	pipelineConfig := pipeline.Config{
		WorkingDirPath:   config.getWorkingDir(),
		RunWorkers:       config.Concurrency.RunWorkers,
		TrackThreads:     config.Concurrency.TrackThreads,
		MaxToolProcesses: config.Concurrency.MaxToolProcesses,
	}

	serv, err := pipeline.New(
		pipelineConfig,
		ytdlp.NewResolver(ytdlpConfig, runner),
		ytdlp.NewExtractor(ytdlpConfig, ffmpegConfig, runner),
		gain.NewNormalizer(gain.Config{BinaryPath: config.Tools.Mp3gainBinPath}, runner),
		packaging.NewPackager(packaging.Config{OutputPath: config.getOutputDir()}),
		packaging.NewTagger(),
		eventBus,
	)
	if err != nil {
		return nil, err
	}

	return serv, nil
}

// Run will start trackforge by bringing up the pipeline service and the REST
// gateway. This function will not return until trackforge is stopped; to stop
// it, the provided context must be cancelled. Errors from which trackforge
// cannot recover will also cause it to stop.
func (forge *trackforgeImpl) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	wg := &sync.WaitGroup{}
	forge.spawnAsyncService(ctx, wg, forge.pipelineService, "pipeline-service", crashHandler)
	forge.spawnAsyncService(ctx, wg, forge.restGateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "trackforge services spawned!\n")

	wg.Wait()
	return nil
}

func (forge *trackforgeImpl) Pipeline() PipelineService { return forge.pipelineService }

func (forge *trackforgeImpl) EventBus() event.EventCoordinator { return forge.eventBus }

// registerEventHandlers forwards run lifecycle events from the event bus to
// the REST gateways activity socket.
func (forge *trackforgeImpl) registerEventHandlers() {
	handler := func(ev event.Event, payload event.Payload) {
		if runID, ok := payload.(uuid.UUID); ok {
			forge.restGateway.BroadcastRunUpdate(runID)
		} else {
			log.Emit(logger.ERROR, "failed to extract UUID from %s event (payload %#v)\n", ev, payload)
		}
	}

	forge.eventBus.RegisterAsyncHandlerFunction(event.RunUpdateEvent, handler)
	forge.eventBus.RegisterAsyncHandlerFunction(event.RunProgressEvent, handler)
	forge.eventBus.RegisterAsyncHandlerFunction(event.RunCompleteEvent, handler)
}

// spawnAsyncService will run the provided function/service as it's own
// go-routine, ensuring that the service waitgroup is updated correctly.
func (forge *trackforgeImpl) spawnAsyncService(context context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(context); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
