package event_test

import (
	"sync"
	"testing"
	"time"

	"github.com/fjmorton/trackforge/internal/event"
	"github.com/fjmorton/trackforge/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

func Test_Dispatch_DeliversToChannelHandlers(t *testing.T) {
	t.Parallel()
	bus := event.New()
	runID := uuid.New()

	handlerChannel := make(event.HandlerChannel, 2)
	bus.RegisterHandlerChannel(handlerChannel, event.RunUpdateEvent, event.RunCompleteEvent)

	bus.Dispatch(event.RunUpdateEvent, runID)
	bus.Dispatch(event.RunCompleteEvent, runID)

	first := <-handlerChannel
	assert.Equal(t, event.RunUpdateEvent, first.Event)
	assert.Equal(t, runID, first.Payload)

	second := <-handlerChannel
	assert.Equal(t, event.RunCompleteEvent, second.Event)
}

func Test_Dispatch_DeliversToFunctionHandlers(t *testing.T) {
	t.Parallel()
	bus := event.New()
	runID := uuid.New()

	var received event.Payload
	bus.RegisterHandlerFunction(event.RunUpdateEvent, func(ev event.Event, payload event.Payload) {
		received = payload
	})

	bus.Dispatch(event.RunUpdateEvent, runID)
	assert.Equal(t, runID, received)
}

func Test_Dispatch_AsyncHandlersRunOutsideTheDispatchingThread(t *testing.T) {
	t.Parallel()
	bus := event.New()

	wg := sync.WaitGroup{}
	wg.Add(1)
	bus.RegisterAsyncHandlerFunction(event.RunCompleteEvent, func(ev event.Event, payload event.Payload) {
		wg.Done()
	})

	bus.Dispatch(event.RunCompleteEvent, uuid.New())

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("async handler was never invoked")
	}
}

func Test_Dispatch_RejectsIllegalPayloads(t *testing.T) {
	t.Parallel()
	bus := event.New()

	handlerChannel := make(event.HandlerChannel, 1)
	bus.RegisterHandlerChannel(handlerChannel, event.RunUpdateEvent)

	// Run events carry the run ID; anything else must not reach handlers.
	bus.Dispatch(event.RunUpdateEvent, "not-a-uuid")

	select {
	case message := <-handlerChannel:
		t.Fatalf("received message for illegal payload: %#v", message)
	default:
	}

	bus.Dispatch(event.RunUpdateEvent, uuid.New())
	require.Len(t, handlerChannel, 1)
}
