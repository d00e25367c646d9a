package domain

import "time"

// DashboardEventKind discriminates the payload fanned out on the event bus
// that internal/state.SharedState exposes to dashboard subscribers.
type DashboardEventKind string

const (
	EventConnectionStateChanged DashboardEventKind = "ConnectionStateChanged"
	EventRequestForwarded       DashboardEventKind = "RequestForwarded"
	EventError                  DashboardEventKind = "Error"
	EventStats                  DashboardEventKind = "Stats"
	EventCustom                 DashboardEventKind = "Custom"
)

// DashboardEvent is published on SharedState's broadcast channel; slow
// dashboard subscribers drop events rather than block whichever component
// is publishing.
type DashboardEvent struct {
	Kind      DashboardEventKind
	At        time.Time
	Status    ConnectionStatus `json:"status,omitempty"`
	Summary   string           `json:"summary,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
	Method    string           `json:"method,omitempty"`
	Path      string           `json:"path,omitempty"`
	StatusCode int             `json:"status_code,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// RequestForwardedEvent builds the event C6 emits for every request whose
// response frame (relayed or synthetic 502) was queued; a request cancelled
// by session loss emits none.
func RequestForwardedEvent(requestID, method, path string, statusCode int) DashboardEvent {
	return DashboardEvent{
		Kind:       EventRequestForwarded,
		At:         time.Now(),
		RequestID:  requestID,
		Method:     method,
		Path:       path,
		StatusCode: statusCode,
		Summary:    method + " " + path,
	}
}

// ConnectionStateChangedEvent builds the event emitted whenever the shared
// connection status transitions.
func ConnectionStateChangedEvent(status ConnectionStatus) DashboardEvent {
	return DashboardEvent{
		Kind:   EventConnectionStateChanged,
		At:     time.Now(),
		Status: status,
	}
}

// ErrorEvent builds an informational error event for dashboard observers.
func ErrorEvent(message string) DashboardEvent {
	return DashboardEvent{
		Kind:    EventError,
		At:      time.Now(),
		Message: message,
	}
}
