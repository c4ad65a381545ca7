package runs_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fjmorton/trackforge/internal/api/runs"
	"github.com/fjmorton/trackforge/internal/pipeline"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockService struct {
	mock.Mock
}

func (service *mockService) SubmitRun(request pipeline.SourceRequest) (uuid.UUID, error) {
	args := service.Called(request)
	//nolint:forcetypeassert
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (service *mockService) CancelRun(id uuid.UUID) error {
	args := service.Called(id)
	return args.Error(0)
}

func (service *mockService) GetRun(id uuid.UUID) *pipeline.PipelineRun {
	args := service.Called(id)
	if run, ok := args.Get(0).(*pipeline.PipelineRun); ok {
		return run
	}

	return nil
}

func (service *mockService) GetAllRuns() []*pipeline.PipelineRun {
	args := service.Called()
	//nolint:forcetypeassert
	return args.Get(0).([]*pipeline.PipelineRun)
}

func newTestServer(service *mockService) *echo.Echo {
	server := echo.New()
	group := server.Group("/api/trackforge/v1/runs")
	runs.New(validator.New(), service).SetRoutes(group)
	return server
}

func performRequest(server *echo.Echo, method string, target string, body string) *httptest.ResponseRecorder {
	var request *http.Request
	if body != "" {
		request = httptest.NewRequest(method, target, strings.NewReader(body))
		request.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		request = httptest.NewRequest(method, target, nil)
	}

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, request)
	return recorder
}

func Test_Submit_QueuesRunAndReturnsItsID(t *testing.T) {
	t.Parallel()
	serviceMock := new(mockService)
	expectedID := uuid.New()
	serviceMock.On("SubmitRun", pipeline.SourceRequest{URL: "https://media.example/watch?v=abc"}).Return(expectedID, nil)

	recorder := performRequest(newTestServer(serviceMock), http.MethodPost,
		"/api/trackforge/v1/runs/", `{"url": "https://media.example/watch?v=abc"}`)

	assert.Equal(t, http.StatusCreated, recorder.Code)
	assert.Contains(t, recorder.Body.String(), expectedID.String())
	serviceMock.AssertExpectations(t)
}

func Test_Submit_RejectsMissingOrInvalidURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		summary string
		body    string
	}{
		{summary: "missing url field", body: `{}`},
		{summary: "url is not a url", body: `{"url": "not a url"}`},
		{summary: "body is not json", body: `not json at all`},
	}

	for _, tt := range tests {
		t.Run(tt.summary, func(t *testing.T) {
			serviceMock := new(mockService)
			recorder := performRequest(newTestServer(serviceMock), http.MethodPost, "/api/trackforge/v1/runs/", tt.body)

			assert.Equal(t, http.StatusBadRequest, recorder.Code)
			serviceMock.AssertNotCalled(t, "SubmitRun", mock.Anything)
		})
	}
}

func Test_Get_UnknownRunReturnsNotFound(t *testing.T) {
	t.Parallel()
	serviceMock := new(mockService)
	serviceMock.On("GetRun", mock.Anything).Return(nil)

	recorder := performRequest(newTestServer(serviceMock), http.MethodGet,
		"/api/trackforge/v1/runs/"+uuid.NewString()+"/", "")

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func Test_Get_MalformedIDReturnsBadRequest(t *testing.T) {
	t.Parallel()
	serviceMock := new(mockService)

	recorder := performRequest(newTestServer(serviceMock), http.MethodGet,
		"/api/trackforge/v1/runs/not-a-uuid/", "")

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	serviceMock.AssertNotCalled(t, "GetRun", mock.Anything)
}

func Test_Get_KnownRunReturnsDto(t *testing.T) {
	t.Parallel()
	run := pipeline.NewPipelineRun(pipeline.SourceRequest{URL: "https://media.example/watch?v=abc"})
	serviceMock := new(mockService)
	serviceMock.On("GetRun", run.ID()).Return(run)

	recorder := performRequest(newTestServer(serviceMock), http.MethodGet,
		"/api/trackforge/v1/runs/"+run.ID().String()+"/", "")

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), run.ID().String())
	assert.Contains(t, recorder.Body.String(), `"status":"QUEUED"`)
}

func Test_List_ReturnsAllRuns(t *testing.T) {
	t.Parallel()
	first := pipeline.NewPipelineRun(pipeline.SourceRequest{URL: "https://media.example/a"})
	second := pipeline.NewPipelineRun(pipeline.SourceRequest{URL: "https://media.example/b"})

	serviceMock := new(mockService)
	serviceMock.On("GetAllRuns").Return([]*pipeline.PipelineRun{first, second})

	recorder := performRequest(newTestServer(serviceMock), http.MethodGet, "/api/trackforge/v1/runs/", "")

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), first.ID().String())
	assert.Contains(t, recorder.Body.String(), second.ID().String())
}

func Test_Cancel_UnknownRunReturnsNotFound(t *testing.T) {
	t.Parallel()
	serviceMock := new(mockService)
	serviceMock.On("CancelRun", mock.Anything).Return(pipeline.ErrRunNotFound)

	recorder := performRequest(newTestServer(serviceMock), http.MethodDelete,
		"/api/trackforge/v1/runs/"+uuid.NewString()+"/", "")

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func Test_Download_IncompleteRunReturnsConflict(t *testing.T) {
	t.Parallel()
	run := pipeline.NewPipelineRun(pipeline.SourceRequest{URL: "https://media.example/watch?v=abc"})
	serviceMock := new(mockService)
	serviceMock.On("GetRun", run.ID()).Return(run)

	recorder := performRequest(newTestServer(serviceMock), http.MethodGet,
		"/api/trackforge/v1/runs/"+run.ID().String()+"/download/", "")

	assert.Equal(t, http.StatusConflict, recorder.Code)
}
