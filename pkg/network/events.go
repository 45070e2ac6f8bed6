package network

// EventType defines the type of event being broadcast.
type EventType string

const (
	// EventStateChanged carries the new models.State.
	EventStateChanged EventType = "state_changed"
	// EventUnsupportedNetwork carries the models.NetworkInfo of the chain that
	// raised the warning.
	EventUnsupportedNetwork EventType = "unsupported_network"
	// EventSwitchRequested carries the target models.ChainID.
	EventSwitchRequested EventType = "switch_requested"
	// EventSwitchUnsupported is sent when the wallet cannot switch by itself.
	EventSwitchUnsupported EventType = "switch_unsupported"
	// EventSwitchFailed carries the error message of the rejected switch.
	EventSwitchFailed EventType = "switch_failed"
)

// Event represents a monitoring event.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Subscriber is a channel that receives events.
type Subscriber chan Event
