// Package origin implements C1, the local origin client: it executes
// outbound HTTP(S) requests against the configured local origin server and
// reports a ProxyResponse or a typed OriginError.
package origin

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aduki-inc/pori/internal/core/domain"
	"github.com/aduki-inc/pori/internal/core/ports"
	"github.com/aduki-inc/pori/internal/logger"
	"github.com/aduki-inc/pori/internal/util"
	"github.com/aduki-inc/pori/pkg/pool"
)

// bodyBufferPool reuses the *bytes.Buffer used to drain each origin
// response, avoiding a fresh allocation per forwarded request.
var bodyBufferPool = pool.NewBufferPool()

const (
	DefaultMaxIdleConnsPerHost = 10
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultTCPKeepAlive        = 30 * time.Second
	DefaultSetNoDelay          = true
)

// inboundStrip is the request-header strip list of spec §4.1.
var inboundStrip = map[string]struct{}{
	"host":                {},
	"connection":          {},
	"upgrade":             {},
	"proxy-connection":    {},
	"proxy-authorization": {},
	"te":                  {},
	"trailers":            {},
	"transfer-encoding":   {},
}

// outboundStrip is the response-header strip list of spec §4.1.
var outboundStrip = map[string]struct{}{
	"connection":        {},
	"upgrade":           {},
	"proxy-connection":  {},
	"transfer-encoding": {},
	"te":                {},
	"trailers":          {},
}

// Client is the production ports.OriginClient: one shared *http.Transport
// tuned per spec §4.1, reused across every forward engine worker.
type Client struct {
	baseURL        string
	requestTimeout time.Duration
	maxBodyBytes   int64

	httpClient *http.Client
	logger     *logger.StyledLogger
}

// Config carries the subset of Settings the origin client needs.
type Config struct {
	OriginURL       string
	VerifyTLSOrigin bool
	ConnectTimeout  time.Duration
	RequestTimeout  time.Duration
	MaxConnections  int
	MaxBodyBytes    int64
}

// New builds the shared transport and HTTP client per §4.1's construction
// contract: keep-alive, opportunistic HTTP/2, idle connections scaled to
// max_origin_connections, TCP keepalive, and Nagle disabled for
// latency-sensitive round trips.
func New(cfg Config, log *logger.StyledLogger) *Client {
	maxIdle := cfg.MaxConnections
	if maxIdle < DefaultMaxIdleConnsPerHost {
		maxIdle = DefaultMaxIdleConnsPerHost
	}

	transport := &http.Transport{
		MaxIdleConns:        maxIdle * 2,
		MaxIdleConnsPerHost: maxIdle,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{
				Timeout:   cfg.ConnectTimeout,
				KeepAlive: DefaultTCPKeepAlive,
			}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tcpConn, ok := conn.(*net.TCPConn); ok {
				_ = tcpConn.SetNoDelay(DefaultSetNoDelay)
			}
			return conn, nil
		},
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.VerifyTLSOrigin,
		},
	}

	return &Client{
		baseURL:        util.NormaliseBaseURL(cfg.OriginURL),
		requestTimeout: cfg.RequestTimeout,
		maxBodyBytes:   cfg.MaxBodyBytes,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		logger: log,
	}
}

// Forward executes one HTTP(S) request against the local origin, per C1
// (spec §4.1).
func (c *Client) Forward(ctx context.Context, method, pathAndQuery string, headers map[string]string, body []byte, requestID string) (*ports.ProxyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	fullURL := util.JoinURLPath(c.baseURL, pathAndQuery)

	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, domain.NewOriginError(domain.OriginBadResponse, method, pathAndQuery, requestID, err)
	}

	for name, value := range headers {
		if _, stripped := inboundStrip[strings.ToLower(name)]; stripped {
			continue
		}
		req.Header.Set(name, value)
	}
	req.Header.Set("x-forwarded-by", "pori")
	req.Header.Set("x-request-id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.NewOriginError(domain.OriginTimeout, method, pathAndQuery, requestID, err)
		}
		return nil, domain.NewOriginError(domain.OriginUnreachable, method, pathAndQuery, requestID, err)
	}
	defer resp.Body.Close()

	buf := bodyBufferPool.Get()
	defer bodyBufferPool.Put(buf)

	limited := io.LimitReader(resp.Body, c.maxBodyBytes+1)
	if _, err := buf.ReadFrom(limited); err != nil {
		return nil, domain.NewOriginError(domain.OriginBadResponse, method, pathAndQuery, requestID, err)
	}
	if int64(buf.Len()) > c.maxBodyBytes {
		return nil, domain.NewOriginError(domain.OriginPayloadTooLarge, method, pathAndQuery, requestID, errors.New("origin response body exceeds max_body_bytes"))
	}
	respBody := append([]byte(nil), buf.Bytes()...)

	respHeaders := make(map[string]string, len(resp.Header))
	for name, values := range resp.Header {
		if _, stripped := outboundStrip[strings.ToLower(name)]; stripped {
			continue
		}
		respHeaders[name] = strings.Join(values, ", ")
	}

	statusText := http.StatusText(resp.StatusCode)
	if statusText == "" {
		statusText = strconv.Itoa(resp.StatusCode)
	}

	return &ports.ProxyResponse{
		Status:     resp.StatusCode,
		StatusText: statusText,
		Headers:    respHeaders,
		Body:       respBody,
	}, nil
}

// Close releases idle connections held by the shared transport.
func (c *Client) Close() {
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
