package worker

import (
	"github.com/spec-kit/ticket-orchestrator/internal/events"
	"github.com/spec-kit/ticket-orchestrator/internal/orchestrator"
)

// StartIntegrationWorker registers the orchestrator on the dispatcher so that
// lifecycle events fan out to the external integrations.
func StartIntegrationWorker(orch *orchestrator.Orchestrator, dispatcher events.Dispatcher) {
	if orch == nil || dispatcher == nil {
		return
	}
	orch.RegisterHandlers(dispatcher)
}
