package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"ai-interview-voice-service/internal/config"
)

// ErrUpstreamDial is returned when the upstream session service cannot be reached.
var ErrUpstreamDial = errors.New("upstream dial failed")

// Dialer opens websocket connections to the upstream realtime service.
type Dialer struct {
	endpoint string
	apiKey   string
	dialer   *websocket.Dialer
}

// NewDialer builds a Dialer from the relay configuration.
func NewDialer(cfg config.RelayConfig) (*Dialer, error) {
	u, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if cfg.Model != "" {
		q := u.Query()
		q.Set("model", cfg.Model)
		u.RawQuery = q.Encode()
	}

	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Dialer{
		endpoint: u.String(),
		apiKey:   cfg.APIKey,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
	}, nil
}

// Endpoint returns the upstream URL including the model parameter.
func (d *Dialer) Endpoint() string {
	return d.endpoint
}

// Header returns the handshake headers sent upstream.
func (d *Dialer) Header() http.Header {
	header := http.Header{}
	if d.apiKey != "" {
		header.Set("Authorization", "Bearer "+d.apiKey)
	}
	header.Set("OpenAI-Beta", "realtime=v1")
	return header
}

// Dial connects to the upstream service.
func (d *Dialer) Dial(ctx context.Context) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.endpoint, d.Header())
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %v (status %d)", ErrUpstreamDial, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamDial, err)
	}
	return conn, nil
}
