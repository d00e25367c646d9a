package domain

import "encoding/json"

// The structs below mirror the wire envelope of spec §6 exactly:
//
//	{envelope:{tunnel_id?, client_id?},
//	 message:{metadata:{id, message_type, version, timestamp, correlation_id?},
//	          payload:{type: "Http"|"Auth"|"Control"|"Error"|"Stats", data: …}}}
//
// internal/adapter/codec translates between these and the in-process Frame.

const WireProtocolVersion = "1"

type PayloadType string

const (
	PayloadHTTP    PayloadType = "Http"
	PayloadAuth    PayloadType = "Auth"
	PayloadControl PayloadType = "Control"
	PayloadError   PayloadType = "Error"
	PayloadStats   PayloadType = "Stats"
)

type WireEnvelope struct {
	Envelope EnvelopeMeta `json:"envelope,omitempty"`
	Message  WireMessage  `json:"message"`
}

type EnvelopeMeta struct {
	TunnelID string `json:"tunnel_id,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

type WireMessage struct {
	Metadata MessageMetadata `json:"metadata"`
	Payload  WirePayload     `json:"payload"`
}

type MessageMetadata struct {
	ID            string `json:"id"`
	MessageType   string `json:"message_type"`
	Version       string `json:"version"`
	Timestamp     string `json:"timestamp"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type WirePayload struct {
	Type PayloadType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// HTTPRequestData is the payload.data shape for an HttpRequest frame.
type HTTPRequestData struct {
	RequestID string            `json:"request_id"`
	Method    string            `json:"method"`
	Target    string            `json:"target"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      string            `json:"body,omitempty"` // base64
}

// HTTPResponseData is the payload.data shape for an HttpResponse frame.
type HTTPResponseData struct {
	RequestID  string            `json:"request_id"`
	Status     int               `json:"status"`
	StatusText string            `json:"status_text,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"` // base64
}

// ControlData carries Ping/Pong payloads and the Shutdown notice.
type ControlData struct {
	Type    string `json:"type"` // "Ping" | "Pong" | "Shutdown"
	Payload string `json:"payload,omitempty"` // base64
}

// AuthData carries the server's rejection reason on an AuthFailure frame.
type AuthData struct {
	Reason string `json:"reason,omitempty"`
}

// ErrorData carries a free-text message on an Error frame.
type ErrorData struct {
	Message string `json:"message,omitempty"`
}

// StatsData describes the counter fields of a Stats payload. The codec keeps
// an inbound Stats payload as raw JSON in Frame.Payload without decoding it
// into this type, and the dashboard builds its own stats JSON.
type StatsData struct {
	RequestsProcessed  int64 `json:"requests_processed"`
	RequestsSuccessful int64 `json:"requests_successful"`
	RequestsFailed     int64 `json:"requests_failed"`
	BytesForwarded     int64 `json:"bytes_forwarded"`
}
