package schema

import "github.com/cantina-os/core/bus"

// ServiceStatusPayload is the periodic heartbeat every Service emits.
// Sticky per topic.
type ServiceStatusPayload struct {
	bus.Base
	Status   ServiceState `json:"status"`
	Uptime   float64      `json:"uptime"`
	Message  string       `json:"message"`
	Severity Severity     `json:"severity"`
}

// StatusRequestPayload triggers every running service to re-emit its
// current status, bootstrapping late subscribers.
type StatusRequestPayload struct {
	bus.Base
	RequesterService string `json:"requester_service"`
}

// DashboardLogPayload is a single structured log record fanned out by the
// Logging Pipeline.
type DashboardLogPayload struct {
	bus.Base
	Level   string `json:"level"`
	Message string `json:"message"`
}
