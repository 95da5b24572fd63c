// Command sila-client connects to SiLA servers, inspects their features and
// runs commands.
//
// This command demonstrates a complete client with:
//   - Server discovery via mDNS
//   - Connecting by address or by server UUID
//   - Automatic reconnection with exponential backoff
//   - Interactive command interface
//
// Usage:
//
//	sila-client [flags]
//
// Flags:
//
//	-connect string         Server address or UUID to connect to on start
//	-discover               List servers on the local network and exit
//	-exec string            Run commands separated by ';' and exit
//	-tls                    Connect with TLS
//	-ca string              PEM file with the CA certificates to trust
//	-insecure               Do not verify the server certificate
//	-interface string       Network interface for mDNS (all if empty)
//	-browse-timeout duration How long discovery listens (default 3s)
//	-no-reconnect           Do not reconnect when the connection drops
//	-log-level string       Log level: debug, info, warn, error (default "info")
//	-protocol-log string    Write a CBOR protocol log to this file
//
// Examples:
//
//	# Find servers
//	sila-client -discover
//
//	# Connect by UUID and explore interactively
//	sila-client -connect 2a4c5e6f-1b3d-4f5a-8b9c-0d1e2f3a4b5c
//
//	# Run a command from a script
//	sila-client -connect localhost:50052 -exec "call GreetingProvider/SayHello Name=Lab"
//
// Interactive Commands:
//
//	discover                - Find servers on the local network
//	connect <address|uuid>  - Connect to a server
//	features [path]         - List features
//	get <path>              - Read a property
//	watch <path> [count]    - Print updates of an observable property
//	call <path> [k=v ...]   - Run a command
//	status                  - Show the connection state
//	quit                    - Exit the client
package main

import (
	"context"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sila-protocol/sila-go/cmd/sila-client/interactive"
	"github.com/sila-protocol/sila-go/pkg/connection"
	"github.com/sila-protocol/sila-go/pkg/discovery"
	silalog "github.com/sila-protocol/sila-go/pkg/log"
	"github.com/sila-protocol/sila-go/pkg/service"
	"github.com/sila-protocol/sila-go/pkg/transport"
)

// Config holds the client configuration.
type Config struct {
	Connect       string
	Discover      bool
	Exec          string
	TLS           bool
	CAFile        string
	Insecure      bool
	Interface     string
	BrowseTimeout time.Duration
	NoReconnect   bool
	LogLevel      string
	ProtocolLog   string
}

var config Config

func init() {
	flag.StringVar(&config.Connect, "connect", "", "Server address or UUID to connect to on start")
	flag.BoolVar(&config.Discover, "discover", false, "List servers on the local network and exit")
	flag.StringVar(&config.Exec, "exec", "", "Run commands separated by ';' and exit")
	flag.BoolVar(&config.TLS, "tls", false, "Connect with TLS")
	flag.StringVar(&config.CAFile, "ca", "", "PEM file with the CA certificates to trust")
	flag.BoolVar(&config.Insecure, "insecure", false, "Do not verify the server certificate")
	flag.StringVar(&config.Interface, "interface", "", "Network interface for mDNS (all if empty)")
	flag.DurationVar(&config.BrowseTimeout, "browse-timeout", 3*time.Second, "How long discovery listens")
	flag.BoolVar(&config.NoReconnect, "no-reconnect", false, "Do not reconnect when the connection drops")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "Write a CBOR protocol log to this file")
}

func main() {
	flag.Parse()

	level, err := parseLogLevel(config.LogLevel)
	if err != nil {
		fatal("invalid configuration", err)
	}
	if config.Exec != "" && config.Connect == "" {
		fatal("invalid configuration", errors.New("-exec requires -connect"))
	}
	logOutput := &switchWriter{w: os.Stderr}
	logger := slog.New(slog.NewTextHandler(logOutput, &slog.HandlerOptions{Level: level}))

	consoleConfig, err := buildConfig(&config, logger)
	if err != nil {
		fatal("invalid configuration", err)
	}
	if config.ProtocolLog != "" {
		fileLogger, err := silalog.NewFileLogger(config.ProtocolLog, silalog.WithRole(silalog.RoleClient))
		if err != nil {
			fatal("open protocol log", err)
		}
		defer fileLogger.Close()
		consoleConfig.Client.ProtocolLogger = fileLogger
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.Discover {
		browseCtx, browseCancel := context.WithTimeout(ctx, config.BrowseTimeout)
		servers, err := interactive.Discover(browseCtx, consoleConfig.Browser)
		browseCancel()
		if err != nil {
			fatal("discovery", err)
		}
		for _, s := range servers {
			fmt.Print(interactive.FormatServer(s))
		}
		if len(servers) == 0 {
			fmt.Println("No servers found")
		}
		return
	}

	if config.Exec != "" {
		console := interactive.NewWithOutput(consoleConfig, os.Stdout)
		defer console.Close()
		console.Execute(ctx, "connect "+config.Connect)
		for _, line := range strings.Split(config.Exec, ";") {
			if !console.Execute(ctx, line) {
				break
			}
		}
		return
	}

	console, err := interactive.New(consoleConfig)
	if err != nil {
		fatal("create console", err)
	}
	defer console.Close()
	logOutput.set(console.Stdout())
	defer logOutput.set(os.Stderr)

	if config.Connect != "" {
		console.Execute(ctx, "connect "+config.Connect)
	}
	go console.Run(ctx, cancel)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig)
	case <-ctx.Done():
	}
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

// buildConfig translates the command line configuration.
func buildConfig(cfg *Config, logger *slog.Logger) (interactive.Config, error) {
	cc := interactive.Config{
		Client:        service.DefaultClientConfig(),
		Connection:    connection.DefaultConfig(),
		BrowseTimeout: cfg.BrowseTimeout,
		Logger:        logger,
	}
	cc.Client.Logger = logger
	cc.Connection.Logger = logger
	cc.Connection.AutoReconnect = !cfg.NoReconnect

	tlsConfig, err := clientTLS(cfg)
	if err != nil {
		return cc, err
	}
	cc.Client.TLS = tlsConfig

	browser := discovery.DefaultBrowserConfig()
	browser.Interface = cfg.Interface
	cc.Browser = discovery.NewMDNSBrowser(browser)
	return cc, nil
}

func clientTLS(cfg *Config) (*transport.TLSConfig, error) {
	if !cfg.TLS {
		if cfg.CAFile != "" || cfg.Insecure {
			return nil, errors.New("-ca and -insecure require -tls")
		}
		return nil, nil
	}
	tc := &transport.TLSConfig{InsecureSkipVerify: cfg.Insecure}
	if cfg.CAFile != "" {
		data, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("no certificates in %s", cfg.CAFile)
		}
		tc.RootCAs = pool
	}
	return tc, nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}

// switchWriter lets log output move to the console once it is running.
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
