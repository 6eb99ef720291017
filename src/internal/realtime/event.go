package realtime

// Event names shared with the client adapter.
const (
	EventReady           = "ready"
	EventNotificationNew = "notification:new"
)

// Event is the application-level frame written to push connections.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}
