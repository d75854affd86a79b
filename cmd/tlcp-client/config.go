package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tlcp-protocol/tlcp-go/pkg/client"
	"github.com/tlcp-protocol/tlcp-go/pkg/session"
	"github.com/tlcp-protocol/tlcp-go/pkg/subscription"
	"github.com/tlcp-protocol/tlcp-go/pkg/transport"
	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

// Config holds the client configuration. It is read from an optional
// YAML file; command-line flags override file values.
type Config struct {
	Server      string        `yaml:"server" validate:"required,url"`
	AdapterSet  string        `yaml:"adapter_set"`
	User        string        `yaml:"user"`
	Password    string        `yaml:"password"`
	Transport   string        `yaml:"transport" validate:"omitempty,oneof=AUTO WS HTTP-STREAMING HTTP-POLLING"`
	Keepalive   time.Duration `yaml:"keepalive"`
	LogLevel    string        `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	ProtocolLog string        `yaml:"protocol_log"`
	Preferences string        `yaml:"preferences"`

	// Executor selects how listener callbacks run: serial or pool.
	Executor string `yaml:"executor" validate:"omitempty,oneof=serial pool"`
	PoolSize int    `yaml:"pool_size" validate:"gte=0"`

	CACert             string `yaml:"ca_cert" validate:"omitempty,file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`

	// Subscriptions are activated at startup.
	Subscriptions []SubscriptionConfig `yaml:"subscriptions" validate:"dive"`
}

// SubscriptionConfig describes a subscription in the configuration file.
type SubscriptionConfig struct {
	Mode         string   `yaml:"mode" validate:"required,oneof=MERGE DISTINCT RAW COMMAND"`
	Items        []string `yaml:"items" validate:"required,min=1"`
	Fields       []string `yaml:"fields" validate:"required,min=1"`
	DataAdapter  string   `yaml:"data_adapter"`
	Snapshot     string   `yaml:"snapshot" validate:"omitempty,oneof=yes no"`
	MaxFrequency string   `yaml:"max_frequency"`

	// SecondLevelFields and SecondLevelAdapter enable two-level COMMAND
	// subscriptions.
	SecondLevelFields  []string `yaml:"second_level_fields"`
	SecondLevelAdapter string   `yaml:"second_level_adapter"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// loadConfigFile reads a YAML configuration file. Validation happens after
// flags are applied.
func loadConfigFile(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// merge overrides c with the non-zero values of flags.
func (c *Config) merge(flags Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Server, flags.Server)
	set(&c.AdapterSet, flags.AdapterSet)
	set(&c.User, flags.User)
	set(&c.Password, flags.Password)
	set(&c.Transport, flags.Transport)
	set(&c.LogLevel, flags.LogLevel)
	set(&c.ProtocolLog, flags.ProtocolLog)
	set(&c.Preferences, flags.Preferences)
	set(&c.Executor, flags.Executor)
	set(&c.CACert, flags.CACert)
	if flags.Keepalive != 0 {
		c.Keepalive = flags.Keepalive
	}
	if flags.PoolSize != 0 {
		c.PoolSize = flags.PoolSize
	}
	if flags.InsecureSkipVerify {
		c.InsecureSkipVerify = true
	}
}

// Validate checks the configuration struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// clientConfig builds the library configuration. Executor, loggers and
// preferences are set by the caller.
func (c *Config) clientConfig() (client.Config, error) {
	cfg := client.DefaultConfig()
	cfg.ServerAddress = c.Server
	cfg.AdapterSet = c.AdapterSet
	cfg.User = c.User
	cfg.Password = c.Password
	cfg.KeepaliveHint = c.Keepalive

	policy, ok := session.ParseTransportPolicy(c.Transport)
	if !ok {
		return cfg, fmt.Errorf("unknown transport %q", c.Transport)
	}
	cfg.Transport = policy

	if c.CACert != "" || c.InsecureSkipVerify {
		tlsCfg := &transport.TLSConfig{InsecureSkipVerify: c.InsecureSkipVerify}
		if c.CACert != "" {
			pool, err := transport.LoadCertPool(c.CACert)
			if err != nil {
				return cfg, fmt.Errorf("load CA certificate: %w", err)
			}
			tlsCfg.RootCAs = pool
		}
		cfg.TLS = tlsCfg
	}
	return cfg, nil
}

// build creates the subscription described by s.
func (s SubscriptionConfig) build() (*subscription.Subscription, error) {
	sub := subscription.New(wire.Mode(s.Mode), s.Items, s.Fields)
	if s.DataAdapter != "" {
		if err := sub.SetDataAdapter(s.DataAdapter); err != nil {
			return nil, err
		}
	}
	switch s.Snapshot {
	case "yes":
		if err := sub.SetRequestedSnapshot(subscription.SnapshotYes); err != nil {
			return nil, err
		}
	case "no":
		if err := sub.SetRequestedSnapshot(subscription.SnapshotNo); err != nil {
			return nil, err
		}
	}
	if s.MaxFrequency != "" {
		if err := sub.SetRequestedMaxFrequency(subscription.MaxFrequency(s.MaxFrequency)); err != nil {
			return nil, err
		}
	}
	if len(s.SecondLevelFields) > 0 {
		if err := sub.SetCommandSecondLevelFields(s.SecondLevelFields); err != nil {
			return nil, err
		}
		if s.SecondLevelAdapter != "" {
			if err := sub.SetCommandSecondLevelDataAdapter(s.SecondLevelAdapter); err != nil {
				return nil, err
			}
		}
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	return sub, nil
}

// parseLogLevel maps a -log-level value to a slog level.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
