// Package codec implements C2, the protocol codec: it translates between
// the wire envelope of spec §6 and the in-process domain.Frame, and
// normalizes HttpRequest targets to an origin-form path+query.
package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aduki-inc/pori/internal/core/domain"
)

// JSON is the default, and currently only, wire codec. It emits only text
// frames, and Decode rejects every binary frame with a CodecInvalid error.
type JSON struct {
	MaxFrameBytes int64
	TunnelID      string
	ClientID      string
}

// Encode serialises a Frame into the wrapper envelope of spec §6. It always
// returns a text frame (isText == true); JSON is this codec's only wire
// shape.
func (c *JSON) Encode(f domain.Frame) ([]byte, bool, error) {
	payload, payloadType, err := c.encodePayload(f)
	if err != nil {
		return nil, false, domain.NewCodecError(domain.CodecInvalid, err)
	}

	env := domain.WireEnvelope{
		Envelope: domain.EnvelopeMeta{
			TunnelID: c.TunnelID,
			ClientID: c.ClientID,
		},
		Message: domain.WireMessage{
			Metadata: domain.MessageMetadata{
				ID:          uuid.NewString(),
				MessageType: string(f.Kind),
				Version:     domain.WireProtocolVersion,
				Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
			},
			Payload: domain.WirePayload{
				Type: payloadType,
				Data: payload,
			},
		},
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, false, domain.NewCodecError(domain.CodecInvalid, err)
	}

	if c.MaxFrameBytes > 0 && int64(len(raw)) > c.MaxFrameBytes {
		return nil, false, domain.NewCodecError(domain.CodecTooLarge, fmt.Errorf("encoded frame is %d bytes, exceeds max_frame_bytes %d", len(raw), c.MaxFrameBytes))
	}

	return raw, true, nil
}

func (c *JSON) encodePayload(f domain.Frame) (json.RawMessage, domain.PayloadType, error) {
	switch f.Kind {
	case domain.KindHTTPRequest:
		data := domain.HTTPRequestData{
			RequestID: f.RequestID,
			Method:    f.Method,
			Target:    f.Target,
			Headers:   f.Headers,
			Body:      base64.StdEncoding.EncodeToString(f.Body),
		}
		raw, err := json.Marshal(data)
		return raw, domain.PayloadHTTP, err
	case domain.KindHTTPResponse:
		data := domain.HTTPResponseData{
			RequestID:  f.RequestID,
			Status:     f.Status,
			StatusText: f.StatusText,
			Headers:    f.Headers,
			Body:       base64.StdEncoding.EncodeToString(f.Body),
		}
		raw, err := json.Marshal(data)
		return raw, domain.PayloadHTTP, err
	case domain.KindPing, domain.KindPong:
		data := domain.ControlData{
			Payload: base64.StdEncoding.EncodeToString(f.Payload),
		}
		if f.Kind == domain.KindPing {
			data.Type = "Ping"
		} else {
			data.Type = "Pong"
		}
		raw, err := json.Marshal(data)
		return raw, domain.PayloadControl, err
	case domain.KindShutdown:
		data := domain.ControlData{Type: "Shutdown"}
		raw, err := json.Marshal(data)
		return raw, domain.PayloadControl, err
	case domain.KindAuthFailure:
		data := domain.AuthData{Reason: string(f.Payload)}
		raw, err := json.Marshal(data)
		return raw, domain.PayloadAuth, err
	case domain.KindError:
		data := domain.ErrorData{Message: string(f.Payload)}
		raw, err := json.Marshal(data)
		return raw, domain.PayloadError, err
	case domain.KindStats:
		raw, err := json.Marshal(f.Payload)
		return raw, domain.PayloadStats, err
	default:
		return nil, "", fmt.Errorf("%w: %s", domain.ErrUnknownFrameKind, f.Kind)
	}
}

// Decode parses a wire frame into a domain.Frame. Binary frames (isText ==
// false) are not decoded: they are rejected with a CodecInvalid error.
func (c *JSON) Decode(raw []byte, isText bool) (domain.Frame, error) {
	if c.MaxFrameBytes > 0 && int64(len(raw)) > c.MaxFrameBytes {
		return domain.Frame{}, domain.NewCodecError(domain.CodecTooLarge, fmt.Errorf("frame is %d bytes, exceeds max_frame_bytes %d", len(raw), c.MaxFrameBytes))
	}
	if !isText {
		return domain.Frame{}, domain.NewCodecError(domain.CodecInvalid, fmt.Errorf("binary frames are not supported by this codec"))
	}

	var env domain.WireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.Frame{}, domain.NewCodecError(domain.CodecInvalid, err)
	}

	return c.decodePayload(env.Message.Payload)
}

func (c *JSON) decodePayload(payload domain.WirePayload) (domain.Frame, error) {
	switch payload.Type {
	case domain.PayloadHTTP:
		return c.decodeHTTPPayload(payload.Data)
	case domain.PayloadControl:
		var data domain.ControlData
		if err := json.Unmarshal(payload.Data, &data); err != nil {
			return domain.Frame{}, domain.NewCodecError(domain.CodecInvalid, err)
		}
		body, err := base64.StdEncoding.DecodeString(data.Payload)
		if err != nil {
			body = nil
		}
		switch data.Type {
		case "Ping":
			return domain.Frame{Kind: domain.KindPing, Payload: body}, nil
		case "Pong":
			return domain.Frame{Kind: domain.KindPong, Payload: body}, nil
		case "Shutdown":
			return domain.Frame{Kind: domain.KindShutdown}, nil
		default:
			return domain.Frame{}, domain.NewCodecError(domain.CodecUnknownKind, fmt.Errorf("%w: control type %q", domain.ErrUnknownFrameKind, data.Type))
		}
	case domain.PayloadAuth:
		var data domain.AuthData
		if err := json.Unmarshal(payload.Data, &data); err != nil {
			return domain.Frame{}, domain.NewCodecError(domain.CodecInvalid, err)
		}
		return domain.Frame{Kind: domain.KindAuthFailure, Payload: []byte(data.Reason)}, nil
	case domain.PayloadError:
		var data domain.ErrorData
		if err := json.Unmarshal(payload.Data, &data); err != nil {
			return domain.Frame{}, domain.NewCodecError(domain.CodecInvalid, err)
		}
		return domain.Frame{Kind: domain.KindError, Payload: []byte(data.Message)}, nil
	case domain.PayloadStats:
		return domain.Frame{Kind: domain.KindStats, Payload: payload.Data}, nil
	default:
		return domain.Frame{}, domain.NewCodecError(domain.CodecUnknownKind, fmt.Errorf("%w: payload type %q", domain.ErrUnknownFrameKind, payload.Type))
	}
}

func (c *JSON) decodeHTTPPayload(raw json.RawMessage) (domain.Frame, error) {
	// HttpRequest and HttpResponse share the payload.type "Http"; the
	// presence of "method" distinguishes a request from a response.
	var probe struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return domain.Frame{}, domain.NewCodecError(domain.CodecInvalid, err)
	}

	if probe.Method != "" {
		var data domain.HTTPRequestData
		if err := json.Unmarshal(raw, &data); err != nil {
			return domain.Frame{}, domain.NewCodecError(domain.CodecInvalid, err)
		}
		body, _ := base64.StdEncoding.DecodeString(data.Body)
		target, err := NormalizeTarget(data.Target)
		if err != nil {
			return domain.Frame{}, domain.NewCodecError(domain.CodecInvalid, err)
		}
		return domain.Frame{
			Kind:      domain.KindHTTPRequest,
			RequestID: data.RequestID,
			Method:    data.Method,
			Target:    target,
			Headers:   data.Headers,
			Body:      body,
		}, nil
	}

	var data domain.HTTPResponseData
	if err := json.Unmarshal(raw, &data); err != nil {
		return domain.Frame{}, domain.NewCodecError(domain.CodecInvalid, err)
	}
	body, _ := base64.StdEncoding.DecodeString(data.Body)
	return domain.Frame{
		Kind:       domain.KindHTTPResponse,
		RequestID:  data.RequestID,
		Status:     data.Status,
		StatusText: data.StatusText,
		Headers:    data.Headers,
		Body:       body,
	}, nil
}

// NormalizeTarget implements spec §4.2's target normalization: an absolute
// URL, an origin-form path, or a bare path all collapse to origin-form
// path+query with the fragment dropped. Idempotent by construction.
func (c *JSON) NormalizeTarget(target string) (string, error) {
	return NormalizeTarget(target)
}

// NormalizeTarget is the free-function form used both by the codec and by
// the forward engine when re-deriving a target it already normalized.
func NormalizeTarget(target string) (string, error) {
	if target == "" {
		return "/", nil
	}

	if target[0] == '/' {
		return stripFragment(target), nil
	}

	if strings.Contains(target, "://") {
		u, err := url.Parse(target)
		if err != nil {
			return "", fmt.Errorf("invalid target URL %q: %w", target, err)
		}
		out := u.Path
		if out == "" {
			out = "/"
		}
		if u.RawQuery != "" {
			out += "?" + u.RawQuery
		}
		return out, nil
	}

	return stripFragment("/" + target), nil
}

func stripFragment(target string) string {
	if idx := strings.IndexByte(target, '#'); idx >= 0 {
		return target[:idx]
	}
	return target
}
