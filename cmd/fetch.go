package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fjmorton/trackforge/internal"
	"github.com/fjmorton/trackforge/internal/event"
	"github.com/fjmorton/trackforge/internal/pipeline"
	"github.com/fjmorton/trackforge/pkg/logger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetch, normalize and package a single URL without starting the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return fetchOneShot(ctx, config, args[0])
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

// fetchOneShot runs the full pipeline for a single URL and blocks until the
// run completes, is cancelled via signal, or the pipeline service stops.
func fetchOneShot(ctx context.Context, config internal.TrackforgeConfig, url string) error {
	eventBus := event.New()
	service, err := internal.NewPipelineService(config, eventBus)
	if err != nil {
		return fmt.Errorf("failed to construct pipeline: %w", err)
	}

	completions := make(event.HandlerChannel, 2)
	eventBus.RegisterHandlerChannel(completions, event.RunCompleteEvent)

	serviceDone := make(chan error, 1)
	go func() { serviceDone <- service.Run(ctx) }()

	runID, err := service.SubmitRun(pipeline.SourceRequest{URL: url})
	if err != nil {
		return fmt.Errorf("failed to submit run: %w", err)
	}
	log.Emit(logger.INFO, "Submitted run %s for %s\n", runID, url)

	for {
		select {
		case message := <-completions:
			if id, ok := message.Payload.(uuid.UUID); !ok || id != runID {
				continue
			}

			return reportRunOutcome(service.GetRun(runID))
		case err := <-serviceDone:
			if err != nil {
				return fmt.Errorf("pipeline service stopped: %w", err)
			}

			return ctx.Err()
		}
	}
}

func reportRunOutcome(run *pipeline.PipelineRun) error {
	if run == nil {
		return fmt.Errorf("run disappeared before completion could be reported")
	}

	switch run.Status() {
	case pipeline.COMPLETE:
		result := run.Result()
		for _, track := range run.TrackStates() {
			if track.Status == pipeline.TrackSkipped {
				log.Emit(logger.WARNING, "Track #%d (%s) was skipped: %s\n", track.Index, track.Title, track.Message)
			}
		}

		fmt.Println(result.OutputPath)
		return nil
	case pipeline.CANCELLED:
		return pipeline.ErrRunCancelled
	default:
		return fmt.Errorf("run failed: %w", run.Error())
	}
}
