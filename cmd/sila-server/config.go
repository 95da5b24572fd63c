package main

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sila-protocol/sila-go/pkg/persistence"
	"github.com/sila-protocol/sila-go/pkg/service"
	"github.com/sila-protocol/sila-go/pkg/transport"
)

// Config holds the server configuration.
type Config struct {
	ConfigFile string `yaml:"-"`

	Address     string `yaml:"address"`
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	UUID        string `yaml:"uuid"`
	Description string `yaml:"description"`

	// TLS serves with a generated self-signed certificate unless CertFile
	// and KeyFile name a key pair.
	TLS      bool   `yaml:"tls"`
	CertFile string `yaml:"cert"`
	KeyFile  string `yaml:"key"`

	Discovery bool   `yaml:"discovery"`
	Interface string `yaml:"interface"`

	MetricsAddress string `yaml:"metrics"`
	LogLevel       string `yaml:"logLevel"`
	ProtocolLog    string `yaml:"protocolLog"`
	Interactive    bool   `yaml:"interactive"`

	// StateFile keeps the server UUID and name across restarts.
	StateFile string `yaml:"state"`
	Reset     bool   `yaml:"-"`
}

// fileKeys maps flag names to the settings a config file may provide.
var fileKeys = map[string]func(dst, src *Config){
	"address":      func(dst, src *Config) { dst.Address = src.Address },
	"name":         func(dst, src *Config) { dst.Name = src.Name },
	"type":         func(dst, src *Config) { dst.Type = src.Type },
	"uuid":         func(dst, src *Config) { dst.UUID = src.UUID },
	"description":  func(dst, src *Config) { dst.Description = src.Description },
	"tls":          func(dst, src *Config) { dst.TLS = src.TLS },
	"cert":         func(dst, src *Config) { dst.CertFile = src.CertFile },
	"key":          func(dst, src *Config) { dst.KeyFile = src.KeyFile },
	"discovery":    func(dst, src *Config) { dst.Discovery = src.Discovery },
	"interface":    func(dst, src *Config) { dst.Interface = src.Interface },
	"metrics":      func(dst, src *Config) { dst.MetricsAddress = src.MetricsAddress },
	"log-level":    func(dst, src *Config) { dst.LogLevel = src.LogLevel },
	"protocol-log": func(dst, src *Config) { dst.ProtocolLog = src.ProtocolLog },
	"interactive":  func(dst, src *Config) { dst.Interactive = src.Interactive },
	"state":        func(dst, src *Config) { dst.StateFile = src.StateFile },
}

// loadConfigFile reads a YAML config file over cfg. Settings whose flag
// was given on the command line keep the flag value.
func loadConfigFile(cfg *Config, data []byte, setFlags map[string]bool) error {
	file := *cfg
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file: %w", err)
	}
	for key, apply := range fileKeys {
		if !setFlags[key] {
			apply(cfg, &file)
		}
	}
	return nil
}

func validateConfig(cfg *Config) error {
	if cfg.UUID != "" {
		if _, err := uuid.Parse(cfg.UUID); err != nil {
			return fmt.Errorf("invalid server UUID %q", cfg.UUID)
		}
	}
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return fmt.Errorf("-cert and -key must be given together")
	}
	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	if cfg.Name == "" {
		return fmt.Errorf("server name must not be empty")
	}
	if cfg.Reset && cfg.StateFile == "" {
		return fmt.Errorf("-reset requires -state")
	}
	return nil
}

// restoreIdentity applies a stored identity. A UUID or name given on the
// command line overrides the stored one; a name from SetServerName
// overrides the config file.
func restoreIdentity(sc *service.Config, state *persistence.ServerState, setFlags map[string]bool) {
	if !setFlags["uuid"] && state.UUID != uuid.Nil {
		sc.Info.UUID = state.UUID
	}
	if !setFlags["name"] && state.Name != "" {
		sc.Info.Name = state.Name
	}
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

// serviceConfig translates the command line configuration.
func serviceConfig(cfg *Config) (service.Config, error) {
	sc := service.DefaultConfig()
	sc.Address = cfg.Address
	sc.Info.Name = cfg.Name
	sc.Info.Type = cfg.Type
	sc.Info.Description = cfg.Description
	if cfg.UUID != "" {
		sc.Info.UUID = uuid.MustParse(cfg.UUID)
	}
	sc.Discovery = cfg.Discovery
	sc.DiscoveryInterface = cfg.Interface

	tlsConfig, err := serverTLS(cfg)
	if err != nil {
		return sc, err
	}
	sc.TLS = tlsConfig
	return sc, nil
}

func serverTLS(cfg *Config) (*transport.TLSConfig, error) {
	switch {
	case cfg.CertFile != "":
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load certificate: %w", err)
		}
		return &transport.TLSConfig{Certificate: cert}, nil
	case cfg.TLS:
		hosts := []string{"localhost", "127.0.0.1", "::1"}
		if h, err := os.Hostname(); err == nil {
			hosts = append(hosts, h)
		}
		cert, err := transport.GenerateSelfSigned(cfg.Name, hosts, transport.DefaultCertValidity)
		if err != nil {
			return nil, fmt.Errorf("generate certificate: %w", err)
		}
		return &transport.TLSConfig{Certificate: cert}, nil
	default:
		return nil, nil
	}
}

// loopback returns an address for dialing the server's own listener.
func loopback(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return addr.String()
	}
	if tcp.IP == nil || tcp.IP.IsUnspecified() {
		return net.JoinHostPort("127.0.0.1", fmt.Sprint(tcp.Port))
	}
	return tcp.String()
}
