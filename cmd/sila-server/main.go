// Command sila-server runs a SiLA server with the example features.
//
// This command demonstrates a complete server with:
//   - CLI argument parsing
//   - Configuration file support
//   - Optional TLS with a generated or supplied certificate
//   - mDNS discovery advertising
//   - Prometheus metrics endpoint
//   - Interactive console
//
// Usage:
//
//	sila-server [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-address string       Listen address (default ":50052")
//	-name string          Server name (default "SiLA Server")
//	-tls                  Serve TLS with a self-signed certificate
//	-cert, -key string    PEM certificate and key to serve TLS with
//	-discovery            Advertise the server via mDNS
//	-metrics string       Address of the Prometheus /metrics endpoint
//	-log-level string     Log level: debug, info, warn, error (default "info");
//	                      debug also prints protocol events
//	-protocol-log string  Write a CBOR protocol log to this file
//	-interactive          Start the interactive console
//	-state string         Keep the server UUID and name in this file
//	-reset                Clear the state file before starting
//
// Examples:
//
//	# Start a plain server with discovery
//	sila-server -discovery
//
//	# Start with TLS, metrics and a console
//	sila-server -tls -metrics :9090 -interactive
//
//	# Start with a config file
//	sila-server -config /etc/sila/server.yaml
//
//	# Keep the same UUID across restarts
//	sila-server -state /var/lib/sila-server/state.json
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sila-protocol/sila-go/cmd/sila-server/interactive"
	"github.com/sila-protocol/sila-go/pkg/examples"
	silalog "github.com/sila-protocol/sila-go/pkg/log"
	"github.com/sila-protocol/sila-go/pkg/persistence"
	"github.com/sila-protocol/sila-go/pkg/service"
	"github.com/sila-protocol/sila-go/pkg/transport"
)

var config Config

func init() {
	defaults := service.DefaultConfig()

	flag.StringVar(&config.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&config.Address, "address", defaults.Address, "Listen address")
	flag.StringVar(&config.Name, "name", defaults.Info.Name, "Server name")
	flag.StringVar(&config.Type, "type", defaults.Info.Type, "Server type")
	flag.StringVar(&config.UUID, "uuid", "", "Server UUID (random if empty)")
	flag.StringVar(&config.Description, "description", "SiLA example server", "Server description")
	flag.BoolVar(&config.TLS, "tls", false, "Serve TLS with a self-signed certificate")
	flag.StringVar(&config.CertFile, "cert", "", "PEM certificate file")
	flag.StringVar(&config.KeyFile, "key", "", "PEM private key file")
	flag.BoolVar(&config.Discovery, "discovery", false, "Advertise the server via mDNS")
	flag.StringVar(&config.Interface, "interface", "", "Network interface for mDNS (all if empty)")
	flag.StringVar(&config.MetricsAddress, "metrics", "", "Address of the Prometheus /metrics endpoint (disabled if empty)")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "Write a CBOR protocol log to this file")
	flag.BoolVar(&config.Interactive, "interactive", false, "Start the interactive console")
	flag.StringVar(&config.StateFile, "state", "", "File that keeps the server UUID and name across restarts")
	flag.BoolVar(&config.Reset, "reset", false, "Clear the state file before starting")
}

func main() {
	flag.Parse()

	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	if config.ConfigFile != "" {
		data, err := os.ReadFile(config.ConfigFile)
		if err != nil {
			fatal("read config file", err)
		}
		if err := loadConfigFile(&config, data, setFlags); err != nil {
			fatal("load config file", err)
		}
	}
	if err := validateConfig(&config); err != nil {
		fatal("invalid configuration", err)
	}

	logOutput := &switchWriter{w: os.Stderr}
	level, _ := parseLogLevel(config.LogLevel)
	logger := slog.New(slog.NewTextHandler(logOutput, &slog.HandlerOptions{Level: level}))

	svcConfig, err := serviceConfig(&config)
	if err != nil {
		fatal("invalid configuration", err)
	}
	svcConfig.Logger = logger

	var stateStore *persistence.ServerStateStore
	if config.StateFile != "" {
		stateStore = persistence.NewServerStateStore(config.StateFile)
		if config.Reset {
			logger.Info("resetting persisted state", "path", config.StateFile)
			if err := stateStore.Clear(); err != nil {
				fatal("clear state", err)
			}
		}
		state, err := stateStore.LoadOrCreate(svcConfig.Info.Name)
		if err != nil {
			fatal("load state", err)
		}
		restoreIdentity(&svcConfig, state, setFlags)
		logger.Debug("restored server identity", "uuid", svcConfig.Info.UUID, "name", svcConfig.Info.Name)
	}

	if svcConfig.Info.UUID == uuid.Nil {
		svcConfig.Info.UUID = uuid.New()
	}

	var capture silalog.Logger
	if config.ProtocolLog != "" {
		fileLogger, err := silalog.NewFileLogger(config.ProtocolLog,
			silalog.WithRole(silalog.RoleServer),
			silalog.WithServerID(svcConfig.Info.UUID.String()))
		if err != nil {
			fatal("open protocol log", err)
		}
		defer fileLogger.Close()
		capture = fileLogger
		logger.Info("protocol log enabled", "path", config.ProtocolLog)
	}
	var trace silalog.Logger
	if level <= slog.LevelDebug {
		trace = silalog.NewSlogAdapter(logger)
	}
	svcConfig.ProtocolLogger = silalog.Multi(capture, trace)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svcConfig.Registerer = registry

	features := examples.All()
	list := make([]service.Feature, len(features))
	for i, f := range features {
		list[i] = f
	}

	svc, err := service.New(svcConfig, list...)
	if err != nil {
		fatal("create server", err)
	}
	svc.OnEvent(func(event service.Event) { logEvent(logger, event) })
	if stateStore != nil {
		svc.OnEvent(func(event service.Event) {
			if event.Type != service.EventRenamed {
				return
			}
			if err := stateStore.SetName(event.Name); err != nil {
				logger.Warn("failed to save server name", "error", err)
			}
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		fatal("start server", err)
	}
	info := svc.Core().Info()
	logger.Info("server started",
		"name", info.Name,
		"uuid", info.UUID,
		"address", svc.Addr().String(),
		"tls", svcConfig.TLS != nil,
		"discovery", svcConfig.Discovery)

	var metricsServer *http.Server
	if config.MetricsAddress != "" {
		metricsServer = serveMetrics(config.MetricsAddress, registry, logger)
	}

	if config.Interactive {
		client, err := service.Dial(ctx, loopback(svc.Addr()), consoleClientConfig(svcConfig))
		if err != nil {
			fatal("connect console", err)
		}
		console, err := interactive.New(svc, client)
		if err != nil {
			fatal("create console", err)
		}
		logOutput.set(console.Stdout())
		go console.Run(ctx, cancel)
		defer client.Close()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig)
	case <-ctx.Done():
	}
	logOutput.set(os.Stderr)

	logger.Info("shutting down")
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	if err := svc.Stop(); err != nil {
		logger.Error("stop server", "error", err)
	}
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

func consoleClientConfig(sc service.Config) service.ClientConfig {
	cc := service.DefaultClientConfig()
	cc.MaxMessageSize = sc.MaxMessageSize
	if sc.TLS != nil {
		// The console dials its own listener.
		cc.TLS = &transport.TLSConfig{InsecureSkipVerify: true}
	}
	return cc
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("metrics endpoint listening", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint", "error", err)
		}
	}()
	return srv
}

func logEvent(logger *slog.Logger, event service.Event) {
	switch event.Type {
	case service.EventConnected:
		logger.Info("client connected", "remote", event.RemoteAddr)
	case service.EventDisconnected:
		logger.Info("client disconnected", "remote", event.RemoteAddr)
	case service.EventRenamed:
		logger.Info("server renamed", "name", event.Name)
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
