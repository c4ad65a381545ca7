package api

import (
	"context"
	"sync"

	"github.com/fjmorton/trackforge/internal/api/runs"
	"github.com/fjmorton/trackforge/internal/http/websocket"
	"github.com/fjmorton/trackforge/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr string `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// The RestGateway is a thin-wrapper around the Echo HTTP router. It's sole
	// responsibility is to create the routes trackforge exposes to the
	// front-end, and to manage the activity socket over which ongoing run
	// updates are pushed.
	RestGateway struct {
		*broadcaster
		config         *RestConfig
		ec             *echo.Echo
		socket         *websocket.SocketHub
		runsController controller
	}
)

// NewRestGateway constructs the Echo router and populates it with the routes
// defined by the runs controller, plus the activity websocket.
func NewRestGateway(config *RestConfig, pipelineService runs.PipelineService) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true

	validate := validator.New()
	socket := websocket.New()
	gateway := &RestGateway{
		broadcaster:    newBroadcaster(socket, pipelineService),
		config:         config,
		ec:             ec,
		socket:         socket,
		runsController: runs.New(validate, pipelineService),
	}

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Pre(middleware.AddTrailingSlash())

	ec.GET("/api/trackforge/v1/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	runGroup := ec.Group("/api/trackforge/v1/runs")
	gateway.runsController.SetRoutes(runGroup)

	return gateway
}

// Run starts the HTTP router and the socket hub, blocking until the provided
// context is cancelled or the router fails.
func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil {
			ctxCancel(err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()

	<-ctx.Done()
	gateway.ec.Close()
	wg.Wait()

	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}
