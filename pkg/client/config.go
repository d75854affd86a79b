package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/tlcp-protocol/tlcp-go/pkg/connection"
	"github.com/tlcp-protocol/tlcp-go/pkg/log"
	"github.com/tlcp-protocol/tlcp-go/pkg/mpn"
	"github.com/tlcp-protocol/tlcp-go/pkg/session"
	"github.com/tlcp-protocol/tlcp-go/pkg/timer"
	"github.com/tlcp-protocol/tlcp-go/pkg/transport"
)

// DefaultClientID is sent as LS_cid when no client id is configured.
const DefaultClientID = "tlcp-go"

// ErrInvalidConfig is returned for an unusable configuration.
var ErrInvalidConfig = errors.New("invalid client configuration")

// Config configures a Client.
type Config struct {
	// ServerAddress is the http or https base URL of the server.
	// Required unless Dialer is set.
	ServerAddress string

	// AdapterSet is the adapter set of the session.
	AdapterSet string

	// User and Password authenticate the session.
	User     string
	Password string

	// ClientID identifies the client library to the server.
	ClientID string

	// Transport restricts the transports used.
	Transport session.TransportPolicy

	// KeepaliveHint asks the server for a keepalive interval. Zero lets
	// the server choose.
	KeepaliveHint time.Duration

	// StalledTimeout is added to the keepalive interval before a
	// connection is considered stalled.
	StalledTimeout time.Duration

	// ReconnectTimeout is how long a stalled connection is kept.
	ReconnectTimeout time.Duration

	// SessionRecoveryTimeout bounds session recovery. Zero disables it.
	SessionRecoveryTimeout time.Duration

	// ConnectTimeout bounds the wait for the server to accept a session.
	ConnectTimeout time.Duration

	// Retry is the delay policy between failed connection attempts.
	Retry connection.BackoffConfig

	// TLS configures https and wss connections.
	TLS *transport.TLSConfig

	// Executor runs listener callbacks. Nil uses a SerialExecutor owned
	// by the client.
	Executor Executor

	// Logger receives operational logs. Nil disables logging.
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events. May be nil.
	ProtocolLogger log.Logger

	// Preferences stores push notification device tokens. May be nil.
	Preferences mpn.Preferences

	// Dialer overrides the transports. Used by tests and embedders.
	Dialer session.Dialer

	// Scheduler overrides the timers. Its callbacks must run on the
	// engine loop.
	Scheduler timer.Scheduler
}

// DefaultConfig returns a configuration with default timeouts.
func DefaultConfig() Config {
	s := session.DefaultConfig()
	return Config{
		ClientID:               DefaultClientID,
		Transport:              s.Transport,
		StalledTimeout:         s.StalledTimeout,
		ReconnectTimeout:       s.ReconnectTimeout,
		SessionRecoveryTimeout: s.SessionRecoveryTimeout,
		ConnectTimeout:         s.ConnectTimeout,
		Retry:                  s.Retry,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Dialer == nil {
		if c.ServerAddress == "" {
			return fmt.Errorf("%w: server address is required", ErrInvalidConfig)
		}
		u, err := url.Parse(c.ServerAddress)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: server address %q must be an http or https URL", ErrInvalidConfig, c.ServerAddress)
		}
	}
	if c.Password != "" && c.User == "" {
		return fmt.Errorf("%w: password without user", ErrInvalidConfig)
	}
	if c.Retry.Initial <= 0 || c.Retry.Max < c.Retry.Initial {
		return fmt.Errorf("%w: invalid retry delays", ErrInvalidConfig)
	}
	sc := c.sessionConfig()
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) sessionConfig() session.Config {
	return session.Config{
		AdapterSet:             c.AdapterSet,
		User:                   c.User,
		Password:               c.Password,
		ClientID:               c.ClientID,
		Transport:              c.Transport,
		KeepaliveHint:          c.KeepaliveHint,
		StalledTimeout:         c.StalledTimeout,
		ReconnectTimeout:       c.ReconnectTimeout,
		SessionRecoveryTimeout: c.SessionRecoveryTimeout,
		ConnectTimeout:         c.ConnectTimeout,
		Retry:                  c.Retry,
		Logger:                 c.Logger,
		ProtocolLogger:         c.ProtocolLogger,
	}
}
