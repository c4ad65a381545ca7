package runs

import (
	"net/http"
	"path/filepath"

	"github.com/fjmorton/trackforge/internal/pipeline"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type (
	SubmitRunRequest struct {
		URL string `json:"url" validate:"required,url"`
	}

	SubmitRunResponse struct {
		Id uuid.UUID `json:"id"`
	}

	PipelineService interface {
		SubmitRun(request pipeline.SourceRequest) (uuid.UUID, error)
		CancelRun(id uuid.UUID) error
		GetRun(id uuid.UUID) *pipeline.PipelineRun
		GetAllRuns() []*pipeline.PipelineRun
	}

	// Controller defines the HTTP routes for submitting, inspecting,
	// cancelling and downloading the output of pipeline runs.
	Controller struct {
		validate *validator.Validate
		service  PipelineService
	}
)

func New(validate *validator.Validate, service PipelineService) *Controller {
	return &Controller{validate: validate, service: service}
}

// SetRoutes accepts the Echo group for the run endpoints and sets the
// routes on it.
func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/", controller.submit)
	eg.GET("/", controller.list)
	eg.GET("/:id/", controller.get)
	eg.DELETE("/:id/", controller.cancel)
	eg.GET("/:id/download/", controller.download)
}

// submit accepts a URL from the caller and queues a new pipeline run for
// it, returning the runs ID for subsequent polling.
func (controller *Controller) submit(ec echo.Context) error {
	var request SubmitRunRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Request body is not valid JSON")
	}

	if err := controller.validate.Struct(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "A valid 'url' field is required")
	}

	id, err := controller.service.SubmitRun(pipeline.SourceRequest{URL: request.URL})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return ec.JSON(http.StatusCreated, SubmitRunResponse{Id: id})
}

// list returns all the runs known to the service, represented as DTOs.
func (controller *Controller) list(ec echo.Context) error {
	runs := controller.service.GetAllRuns()
	dtos := make([]*RunDto, len(runs))
	for k, v := range runs {
		dtos[k] = NewDto(v)
	}

	return ec.JSON(http.StatusOK, dtos)
}

// get uses the 'id' path param from the context and retrieves the matching
// run. If found, a DTO representing the run is returned.
func (controller *Controller) get(ec echo.Context) error {
	run, err := controller.lookupRun(ec)
	if err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, NewDto(run))
}

// cancel aborts the run matching the 'id' path param. In-flight work is
// signalled to stop and the runs intermediate files are cleaned up.
func (controller *Controller) cancel(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Run ID is not a valid UUID")
	}

	if err := controller.service.CancelRun(id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	return ec.NoContent(http.StatusOK)
}

// download serves the output of a completed run: a direct audio file for a
// single-track result, or the zip archive for a multi-track result.
func (controller *Controller) download(ec echo.Context) error {
	run, err := controller.lookupRun(ec)
	if err != nil {
		return err
	}

	result := run.Result()
	if run.Status() != pipeline.COMPLETE || result == nil {
		return echo.NewHTTPError(http.StatusConflict, "Run has not completed")
	}

	return ec.Attachment(result.OutputPath, attachmentName(result))
}

// attachmentName is the file name suggested to the downloading client; the
// output path on disk already carries the sanitized collection title.
func attachmentName(result *pipeline.Result) string {
	return filepath.Base(result.OutputPath)
}

func (controller *Controller) lookupRun(ec echo.Context) (*pipeline.PipelineRun, error) {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Run ID is not a valid UUID")
	}

	run := controller.service.GetRun(id)
	if run == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound)
	}

	return run, nil
}
