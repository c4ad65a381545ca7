package runs

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fjmorton/trackforge/internal/packaging"
	"github.com/fjmorton/trackforge/internal/pipeline"
	"github.com/google/uuid"
)

type (
	RunStatusDto   string
	TrackStatusDto string
	ResultKindDto  string

	TrackDto struct {
		Index   int            `json:"index"`
		Title   string         `json:"title"`
		Status  TrackStatusDto `json:"status"`
		Message string         `json:"message,omitempty"`
	}

	ResultDto struct {
		Kind          ResultKindDto `json:"kind"`
		FileName      string        `json:"file_name"`
		TrackCount    int           `json:"track_count"`
		SkippedTracks []int         `json:"skipped_tracks"`
	}

	// RunDto is the response used by endpoints that return pipeline
	// runs (e.g., list, get).
	RunDto struct {
		Id        uuid.UUID    `json:"id"`
		URL       string       `json:"url"`
		Status    RunStatusDto `json:"status"`
		CreatedAt time.Time    `json:"created_at"`
		Tracks    []TrackDto   `json:"tracks"`
		Result    *ResultDto   `json:"result"`
		Error     string       `json:"error,omitempty"`
	}
)

const (
	QUEUED     RunStatusDto = "QUEUED"
	RESOLVING  RunStatusDto = "RESOLVING"
	PROCESSING RunStatusDto = "PROCESSING"
	PACKAGING  RunStatusDto = "PACKAGING"
	COMPLETE   RunStatusDto = "COMPLETE"
	CANCELLED  RunStatusDto = "CANCELLED"
	FAILED     RunStatusDto = "FAILED"

	SINGLE  ResultKindDto = "SINGLE"
	ARCHIVE ResultKindDto = "ARCHIVE"
)

func runStatusModelToDto(status pipeline.RunStatus) RunStatusDto {
	switch status {
	case pipeline.QUEUED:
		return QUEUED
	case pipeline.RESOLVING:
		return RESOLVING
	case pipeline.PROCESSING:
		return PROCESSING
	case pipeline.PACKAGING:
		return PACKAGING
	case pipeline.COMPLETE:
		return COMPLETE
	case pipeline.CANCELLED:
		return CANCELLED
	case pipeline.FAILED:
		return FAILED
	}

	panic("invalid run status")
}

func resultKindModelToDto(kind packaging.ResultKind) ResultKindDto {
	if kind == packaging.Archive {
		return ARCHIVE
	}

	return SINGLE
}

// NewDto creates a RunDto using the PipelineRun model.
func NewDto(run *pipeline.PipelineRun) *RunDto {
	states := run.TrackStates()
	tracks := make([]TrackDto, len(states))
	for k, v := range states {
		tracks[k] = TrackDto{
			Index:   v.Index,
			Title:   v.Title,
			Status:  TrackStatusDto(v.Status.String()),
			Message: v.Message,
		}
	}

	var result *ResultDto = nil
	if model := run.Result(); model != nil {
		result = &ResultDto{
			Kind:          resultKindModelToDto(model.Kind),
			FileName:      filepath.Base(model.OutputPath),
			TrackCount:    model.TrackCount,
			SkippedTracks: model.SkippedTracks,
		}
	}

	errMessage := ""
	if err := run.Error(); err != nil {
		errMessage = fmt.Sprintf("%v", err)
	}

	return &RunDto{
		Id:        run.ID(),
		URL:       run.URL(),
		Status:    runStatusModelToDto(run.Status()),
		CreatedAt: run.CreatedAt(),
		Tracks:    tracks,
		Result:    result,
		Error:     errMessage,
	}
}
