package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tlcp-protocol/tlcp-go/pkg/connection"
	"github.com/tlcp-protocol/tlcp-go/pkg/log"
)

// Default timeouts.
const (
	DefaultStalledTimeout         = 2 * time.Second
	DefaultReconnectTimeout       = 3 * time.Second
	DefaultSessionRecoveryTimeout = 15 * time.Second
	DefaultConnectTimeout         = 4 * time.Second
)

// Session errors.
var (
	ErrInvalidConfig    = errors.New("invalid session configuration")
	ErrConnectTimeout   = errors.New("connect timeout")
	ErrStalled          = errors.New("connection stalled")
	ErrConnectionClosed = errors.New("connection closed by server")
	ErrRecoveryTimeout  = errors.New("session recovery timeout")
	ErrProgressMismatch = errors.New("server progressive ahead of client")
)

// Config configures a Session.
type Config struct {
	// AdapterSet is sent as LS_adapter_set when set.
	AdapterSet string

	// User and Password are sent as LS_user and LS_password when set.
	User     string
	Password string

	// ClientID is sent as LS_cid.
	ClientID string

	// Transport restricts the transports used.
	Transport TransportPolicy

	// KeepaliveHint is sent as LS_keepalive_millis when positive.
	KeepaliveHint time.Duration

	// StalledTimeout is added to the server keepalive interval to decide
	// that a connection is stalled.
	StalledTimeout time.Duration

	// ReconnectTimeout is how long a stalled connection is kept before it
	// is treated as failed.
	ReconnectTimeout time.Duration

	// SessionRecoveryTimeout bounds the recovery of a session after a
	// connection failure. Zero disables recovery.
	SessionRecoveryTimeout time.Duration

	// ConnectTimeout bounds the wait for CONOK after a request is opened.
	ConnectTimeout time.Duration

	// Retry is the delay policy between failed session creations.
	Retry connection.BackoffConfig

	// Logger receives diagnostic logs. May be nil.
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events. May be nil.
	ProtocolLogger log.Logger
}

// DefaultConfig returns a configuration with default timeouts.
func DefaultConfig() Config {
	return Config{
		Transport:              TransportAuto,
		StalledTimeout:         DefaultStalledTimeout,
		ReconnectTimeout:       DefaultReconnectTimeout,
		SessionRecoveryTimeout: DefaultSessionRecoveryTimeout,
		ConnectTimeout:         DefaultConnectTimeout,
		Retry:                  connection.DefaultBackoffConfig(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("%w: client id is required", ErrInvalidConfig)
	}
	if c.Transport > TransportHTTPPolling {
		return fmt.Errorf("%w: unknown transport %d", ErrInvalidConfig, c.Transport)
	}
	if c.KeepaliveHint < 0 || c.SessionRecoveryTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	if c.StalledTimeout <= 0 || c.ReconnectTimeout <= 0 || c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	return nil
}
