// Command tlcp-client is a command-line TLCP client.
//
// It opens a session, activates the subscriptions listed in its
// configuration file and prints every update. In interactive mode
// subscriptions and push notifications are managed from a prompt.
//
// Usage:
//
//	tlcp-client [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-server string        Server address (http or https URL)
//	-adapter-set string   Adapter set
//	-user string          User name
//	-password string      Password
//	-transport string     Transport: AUTO, WS, HTTP-STREAMING, HTTP-POLLING
//	-keepalive duration   Requested keepalive interval
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Protocol capture file (.tlog)
//	-prefs string         Preferences file for push device tokens
//	-executor string      Listener executor: serial, pool
//	-ca-cert string       CA certificate file for https servers
//	-insecure             Skip server certificate verification
//	-interactive          Enable interactive command mode
//
// Examples:
//
//	# Subscribe to the items of a configuration file
//	tlcp-client -config quotes.yaml
//
//	# Interactive session over HTTP streaming with protocol capture
//	tlcp-client -server https://push.example.com -adapter-set DEMO \
//	    -transport HTTP-STREAMING -protocol-log client.tlog -interactive
//
// Interactive Commands:
//
//	subscribe <mode> <items> <fields> - Subscribe
//	unsubscribe <n>                   - Unsubscribe
//	list                              - List subscriptions
//	connect / disconnect / status     - Session control
//	mpn register|subscribe|unsubscribe|list|badge - Push notifications
//	quit                              - Exit
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/tlcp-protocol/tlcp-go/cmd/tlcp-client/interactive"
	"github.com/tlcp-protocol/tlcp-go/pkg/client"
	"github.com/tlcp-protocol/tlcp-go/pkg/log"
	"github.com/tlcp-protocol/tlcp-go/pkg/persistence"
)

var (
	configFile   string
	flags        Config
	interactMode bool
)

func init() {
	flag.StringVar(&configFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.Server, "server", "", "Server address (http or https URL)")
	flag.StringVar(&flags.AdapterSet, "adapter-set", "", "Adapter set")
	flag.StringVar(&flags.User, "user", "", "User name")
	flag.StringVar(&flags.Password, "password", "", "Password")
	flag.StringVar(&flags.Transport, "transport", "", "Transport: AUTO, WS, HTTP-STREAMING, HTTP-POLLING")
	flag.DurationVar(&flags.Keepalive, "keepalive", 0, "Requested keepalive interval")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error (default info)")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Protocol capture file (.tlog)")
	flag.StringVar(&flags.Preferences, "prefs", "", "Preferences file for push device tokens")
	flag.StringVar(&flags.Executor, "executor", "", "Listener executor: serial, pool")
	flag.StringVar(&flags.CACert, "ca-cert", "", "CA certificate file for https servers")
	flag.BoolVar(&flags.InsecureSkipVerify, "insecure", false, "Skip server certificate verification")
	flag.BoolVar(&interactMode, "interactive", false, "Enable interactive command mode")
}

func main() {
	flag.Parse()

	var cfg Config
	if configFile != "" {
		var err error
		if cfg, err = loadConfigFile(configFile); err != nil {
			fatal(err)
		}
	}
	cfg.merge(flags)
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	logOut := &switchWriter{w: os.Stderr}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	clientCfg, err := cfg.clientConfig()
	if err != nil {
		fatal(err)
	}
	clientCfg.Logger = logger

	if cfg.ProtocolLog != "" {
		pl, err := log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			fatal(fmt.Errorf("open protocol log: %w", err))
		}
		defer pl.Close()
		clientCfg.ProtocolLogger = pl
		logger.Info("protocol capture enabled", "file", cfg.ProtocolLog)
	}

	if cfg.Preferences != "" {
		clientCfg.Preferences = persistence.NewPreferencesStore(cfg.Preferences)
	}

	if cfg.Executor == "pool" {
		size := cfg.PoolSize
		if size == 0 {
			size = client.DefaultPoolSize
		}
		pool, err := client.NewPoolExecutor(size, logger)
		if err != nil {
			fatal(err)
		}
		defer pool.Close()
		clientCfg.Executor = pool
	}

	c, err := client.New(clientCfg)
	if err != nil {
		fatal(err)
	}

	printer := interactive.NewPrinter(os.Stdout)
	c.AddListener(printer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var console *interactive.Console
	if interactMode {
		console, err = interactive.New(c, printer)
		if err != nil {
			fatal(err)
		}
		// Redirect log output through readline to avoid interfering with input
		logOut.set(console.Stdout())
	}

	for _, sc := range cfg.Subscriptions {
		sub, err := sc.build()
		if err != nil {
			fatal(err)
		}
		sub.AddListener(printer)
		if err := c.Subscribe(sub); err != nil {
			fatal(err)
		}
		if console != nil {
			console.Track(sub)
		}
	}

	if err := c.Connect(); err != nil {
		fatal(err)
	}

	if console != nil {
		go console.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := c.Close(); err != nil {
		logger.Warn("close client", "error", err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// switchWriter is an io.Writer whose destination can change after the
// logger using it was created.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *switchWriter) set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}
