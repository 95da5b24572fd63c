package main

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sila-protocol/sila-go/pkg/persistence"
	"github.com/sila-protocol/sila-go/pkg/service"
	"github.com/sila-protocol/sila-go/pkg/transport"
)

func TestLoadConfigFile(t *testing.T) {
	data := []byte(`
address: ":6000"
name: Incubator
discovery: true
logLevel: debug
metrics: ":9090"
`)

	t.Run("file values apply", func(t *testing.T) {
		cfg := Config{Address: ":50052", Name: "SiLA Server", LogLevel: "info"}
		require.NoError(t, loadConfigFile(&cfg, data, nil))
		assert.Equal(t, ":6000", cfg.Address)
		assert.Equal(t, "Incubator", cfg.Name)
		assert.True(t, cfg.Discovery)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, ":9090", cfg.MetricsAddress)
	})

	t.Run("flags win", func(t *testing.T) {
		cfg := Config{Address: ":7000", Name: "SiLA Server", LogLevel: "warn"}
		require.NoError(t, loadConfigFile(&cfg, data, map[string]bool{"address": true, "log-level": true}))
		assert.Equal(t, ":7000", cfg.Address)
		assert.Equal(t, "warn", cfg.LogLevel)
		assert.Equal(t, "Incubator", cfg.Name)
	})

	t.Run("missing keys keep defaults", func(t *testing.T) {
		cfg := Config{Address: ":50052", Type: "SiLAServer"}
		require.NoError(t, loadConfigFile(&cfg, []byte("name: Shaker\n"), nil))
		assert.Equal(t, ":50052", cfg.Address)
		assert.Equal(t, "SiLAServer", cfg.Type)
	})

	t.Run("empty file", func(t *testing.T) {
		cfg := Config{Name: "SiLA Server"}
		require.NoError(t, loadConfigFile(&cfg, nil, nil))
		assert.Equal(t, "SiLA Server", cfg.Name)
	})

	t.Run("unknown key", func(t *testing.T) {
		cfg := Config{}
		assert.Error(t, loadConfigFile(&cfg, []byte("port: 1\n"), nil))
	})
}

func TestValidateConfig(t *testing.T) {
	valid := Config{Name: "SiLA Server", LogLevel: "info"}
	assert.NoError(t, validateConfig(&valid))

	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad uuid", Config{Name: "x", UUID: "not-a-uuid"}},
		{"cert without key", Config{Name: "x", CertFile: "server.pem"}},
		{"bad log level", Config{Name: "x", LogLevel: "verbose"}},
		{"empty name", Config{}},
		{"reset without state", Config{Name: "x", Reset: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, validateConfig(&tt.cfg))
		})
	}
}

func TestServiceConfig(t *testing.T) {
	cfg := Config{
		Address:   "127.0.0.1:0",
		Name:      "Incubator",
		Type:      "Incubator",
		UUID:      "2a4c5e6f-1b3d-4f5a-8b9c-0d1e2f3a4b5c",
		Discovery: true,
		Interface: "eth0",
	}
	sc, err := serviceConfig(&cfg)
	require.NoError(t, err)
	assert.Equal(t, "Incubator", sc.Info.Name)
	assert.Equal(t, cfg.UUID, sc.Info.UUID.String())
	assert.True(t, sc.Discovery)
	assert.Equal(t, "eth0", sc.DiscoveryInterface)
	assert.Nil(t, sc.TLS)
}

func TestServerTLS(t *testing.T) {
	t.Run("self-signed", func(t *testing.T) {
		tlsConfig, err := serverTLS(&Config{Name: "Incubator", TLS: true})
		require.NoError(t, err)
		require.NotNil(t, tlsConfig)
		assert.NotEmpty(t, tlsConfig.Certificate.Certificate)
	})

	t.Run("key pair files", func(t *testing.T) {
		cert, err := transport.GenerateSelfSigned("Incubator", []string{"localhost"}, transport.DefaultCertValidity)
		require.NoError(t, err)
		certPEM, keyPEM, err := transport.EncodePEM(cert)
		require.NoError(t, err)

		dir := t.TempDir()
		certFile := filepath.Join(dir, "server.pem")
		keyFile := filepath.Join(dir, "server.key")
		require.NoError(t, os.WriteFile(certFile, certPEM, 0o600))
		require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))

		tlsConfig, err := serverTLS(&Config{CertFile: certFile, KeyFile: keyFile})
		require.NoError(t, err)
		assert.Equal(t, cert.Certificate[0], tlsConfig.Certificate.Certificate[0])

		_, err = serverTLS(&Config{CertFile: filepath.Join(dir, "missing.pem"), KeyFile: keyFile})
		assert.Error(t, err)
	})
}

func TestLoopback(t *testing.T) {
	assert.Equal(t, "127.0.0.1:50052", loopback(&net.TCPAddr{IP: net.IPv6zero, Port: 50052}))
	assert.Equal(t, "127.0.0.1:50052", loopback(&net.TCPAddr{Port: 50052}))
	assert.Equal(t, "10.0.0.5:6000", loopback(&net.TCPAddr{IP: net.ParseIP("10.0.0.5"), Port: 6000}))
}

func TestRestoreIdentity(t *testing.T) {
	stored := &persistence.ServerState{UUID: uuid.New(), Name: "Shaker 2"}

	t.Run("stored identity applies", func(t *testing.T) {
		sc := service.DefaultConfig()
		sc.Info.Name = "Shaker"
		restoreIdentity(&sc, stored, nil)
		assert.Equal(t, stored.UUID, sc.Info.UUID)
		assert.Equal(t, "Shaker 2", sc.Info.Name)
	})

	t.Run("flags win", func(t *testing.T) {
		sc := service.DefaultConfig()
		sc.Info.Name = "Shaker 3"
		explicit := uuid.New()
		sc.Info.UUID = explicit
		restoreIdentity(&sc, stored, map[string]bool{"uuid": true, "name": true})
		assert.Equal(t, explicit, sc.Info.UUID)
		assert.Equal(t, "Shaker 3", sc.Info.Name)
	})

	t.Run("empty stored name", func(t *testing.T) {
		sc := service.DefaultConfig()
		sc.Info.Name = "Shaker"
		restoreIdentity(&sc, &persistence.ServerState{UUID: stored.UUID}, nil)
		assert.Equal(t, "Shaker", sc.Info.Name)
	})
}
