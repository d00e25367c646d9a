// Package ports declares the interfaces the core subsystems depend on, so
// that the forward engine, tunnel session and dashboard can be wired and
// tested against fakes without importing each other's concrete adapters.
package ports

import (
	"context"
	"time"

	"github.com/aduki-inc/pori/internal/core/domain"
)

// OriginClient is C1: it executes one HTTP(S) request against the
// configured local origin and returns a buffered response or a typed error.
type OriginClient interface {
	Forward(ctx context.Context, method, pathAndQuery string, headers map[string]string, body []byte, requestID string) (*ProxyResponse, error)
	Close()
}

// ProxyResponse is the result of a successful OriginClient.Forward call.
type ProxyResponse struct {
	Status     int
	StatusText string
	Headers    map[string]string
	Body       []byte
}

// Codec is C2: it translates between the wire envelope and the in-process
// Frame representation, and normalises request targets to origin-form paths.
type Codec interface {
	Encode(f domain.Frame) ([]byte, bool, error) // bool reports whether the payload is a text frame
	Decode(raw []byte, isText bool) (domain.Frame, error)
	NormalizeTarget(target string) (string, error)
}

// ReconnectPolicy is C3.
type ReconnectPolicy interface {
	ShouldAttempt() bool
	NextDelay() time.Duration
	Reset()
	Attempts() int
}

// Clock abstracts time.Now for deterministic tests of time-driven components.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock is the production Clock implementation.
var RealClock Clock = realClock{}
