package domain

import "time"

// Event types emitted by the coordinator.
const (
	EventSessionStarted     = "session_started"
	EventRedirectIssued     = "redirect_issued"
	EventAttributesReceived = "attributes_received"
	EventAttributesFetched  = "attributes_fetched"
	EventCommStarted        = "comm_started"
	EventCompleted          = "completed"
	EventFailed             = "failed"
	EventExpiredSwept       = "expired_swept"
)

// Event is one session lifecycle event. Events never carry attribute values,
// only state-machine facts.
type Event struct {
	SessionID string    `json:"sessionId"`
	EventType string    `json:"eventType"`
	State     string    `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}
