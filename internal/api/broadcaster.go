package api

import (
	"github.com/fjmorton/trackforge/internal/api/runs"
	"github.com/fjmorton/trackforge/internal/http/websocket"
	"github.com/google/uuid"
)

// broadcaster pushes run state over the activity socket whenever a service
// reports a change. The gateway embeds it so the app wiring can deliver
// event bus messages without touching the socket hub directly.
type broadcaster struct {
	socket          *websocket.SocketHub
	pipelineService runs.PipelineService
}

func newBroadcaster(socket *websocket.SocketHub, pipelineService runs.PipelineService) *broadcaster {
	bc := &broadcaster{socket: socket, pipelineService: pipelineService}
	socket.WithConnectionCallback(bc.connectionPayload)
	return bc
}

// connectionPayload furnishes a newly connected client with the current
// state of every known run.
func (bc *broadcaster) connectionPayload() map[string]interface{} {
	all := bc.pipelineService.GetAllRuns()
	dtos := make([]*runs.RunDto, len(all))
	for k, v := range all {
		dtos[k] = runs.NewDto(v)
	}

	return map[string]interface{}{"runs": dtos}
}

// BroadcastRunUpdate pushes the latest state of the identified run to all
// connected clients. Unknown IDs are ignored (the run may have been created
// and cancelled before the broadcast was serviced).
func (bc *broadcaster) BroadcastRunUpdate(runID uuid.UUID) error {
	run := bc.pipelineService.GetRun(runID)
	if run == nil {
		return nil
	}

	bc.socket.Send(&websocket.SocketMessage{
		Title: "RUN_UPDATE",
		Body:  map[string]interface{}{"run": runs.NewDto(run)},
	})

	return nil
}
