package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tlcp-protocol/tlcp-go/pkg/session"
	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

// Default timeouts.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
)

const endpointPath = "/lightstreamer"

// Errors.
var (
	ErrInvalidAddress = errors.New("invalid server address")
	ErrUnsupported    = errors.New("unsupported connection kind")
	ErrNotOpen        = errors.New("connection not open")
	ErrClosed         = errors.New("connection closed")
	ErrHTTPStatus     = errors.New("unexpected HTTP status")
)

// Config configures a Dialer.
type Config struct {
	// ServerAddress is the http or https base URL of the server.
	ServerAddress string

	// TLS configures https and wss connections. Nil uses the defaults.
	TLS *TLSConfig

	// HTTPClient overrides the client used for HTTP connections.
	HTTPClient *http.Client

	// HandshakeTimeout bounds the WebSocket upgrade.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each WebSocket write.
	WriteTimeout time.Duration

	// Logger receives connection diagnostics. Nil disables logging.
	Logger *slog.Logger
}

// Dialer opens WebSocket and HTTP connections to one server.
type Dialer struct {
	config Config
	base   *url.URL
	ws     *websocket.Dialer
	http   *http.Client
	logger *slog.Logger
}

var _ session.Dialer = (*Dialer)(nil)

// NewDialer creates a Dialer for cfg.ServerAddress.
func NewDialer(cfg Config) (*Dialer, error) {
	base, err := url.Parse(cfg.ServerAddress)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, cfg.ServerAddress)
	}
	base.Path = strings.TrimRight(base.Path, "/")
	base.RawQuery = ""
	base.Fragment = ""

	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	tlsConfig := NewClientTLSConfig(cfg.TLS)
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: tlsConfig,
		}}
	}

	return &Dialer{
		config: cfg,
		base:   base,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			TLSClientConfig:  tlsConfig,
			Subprotocols:     []string{wire.WSSubprotocol},
		},
		http:   client,
		logger: cfg.Logger,
	}, nil
}

// Dial starts opening a connection of the given kind. The connection opens
// in the background and reports to h.
func (d *Dialer) Dial(kind session.Kind, h session.Handler) (session.Conn, error) {
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	defer close(ready)

	switch kind {
	case session.KindWS:
		c := &wsConn{d: d, h: h, ctx: ctx, cancel: cancel}
		go c.run(ready)
		return c, nil
	case session.KindHTTPStreaming, session.KindHTTPPolling:
		c := newHTTPConn(d, h, ctx, cancel)
		go c.run(ready)
		return c, nil
	default:
		cancel()
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}
}

// WebSocketURL returns the WebSocket endpoint.
func (d *Dialer) WebSocketURL() string {
	u := *d.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += endpointPath
	return u.String()
}

// RequestURL returns the HTTP endpoint of a request.
func (d *Dialer) RequestURL(name string) string {
	u := *d.base
	return u.Scheme + "://" + u.Host + u.Path + endpointPath + "/" + wire.HTTPPath(name)
}

func (d *Dialer) debugLog(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, args...)
	}
}

// splitLines splits one server chunk into lines without their CRLF.
func splitLines(chunk string) []string {
	var lines []string
	for _, line := range strings.Split(chunk, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
