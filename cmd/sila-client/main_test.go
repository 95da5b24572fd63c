package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sila-protocol/sila-go/pkg/transport"
)

func TestClientTLS(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		tc, err := clientTLS(&Config{})
		require.NoError(t, err)
		assert.Nil(t, tc)
	})

	t.Run("insecure without tls", func(t *testing.T) {
		_, err := clientTLS(&Config{Insecure: true})
		assert.Error(t, err)
	})

	t.Run("insecure", func(t *testing.T) {
		tc, err := clientTLS(&Config{TLS: true, Insecure: true})
		require.NoError(t, err)
		assert.True(t, tc.InsecureSkipVerify)
		assert.Nil(t, tc.RootCAs)
	})

	t.Run("ca file", func(t *testing.T) {
		cert, err := transport.GenerateSelfSigned("Incubator", []string{"localhost"}, transport.DefaultCertValidity)
		require.NoError(t, err)
		certPEM, _, err := transport.EncodePEM(cert)
		require.NoError(t, err)
		caFile := filepath.Join(t.TempDir(), "ca.pem")
		require.NoError(t, os.WriteFile(caFile, certPEM, 0o600))

		tc, err := clientTLS(&Config{TLS: true, CAFile: caFile})
		require.NoError(t, err)
		assert.NotNil(t, tc.RootCAs)
		assert.False(t, tc.InsecureSkipVerify)
	})

	t.Run("ca file without certificates", func(t *testing.T) {
		caFile := filepath.Join(t.TempDir(), "empty.pem")
		require.NoError(t, os.WriteFile(caFile, []byte("nothing here"), 0o600))
		_, err := clientTLS(&Config{TLS: true, CAFile: caFile})
		assert.Error(t, err)
	})
}

func TestBuildConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cc, err := buildConfig(&Config{BrowseTimeout: 2 * time.Second, NoReconnect: true}, logger)
	require.NoError(t, err)
	assert.False(t, cc.Connection.AutoReconnect)
	assert.Equal(t, 2*time.Second, cc.BrowseTimeout)
	assert.NotNil(t, cc.Browser)
	assert.Same(t, logger, cc.Client.Logger)
	assert.Nil(t, cc.Client.TLS)

	cc, err = buildConfig(&Config{}, logger)
	require.NoError(t, err)
	assert.True(t, cc.Connection.AutoReconnect)
}

func TestParseLogLevel(t *testing.T) {
	level, err := parseLogLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = parseLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)

	_, err = parseLogLevel("trace")
	assert.Error(t, err)
}
