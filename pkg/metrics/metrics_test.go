package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sila-protocol/sila-go/pkg/binary"
	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

func TestExecutionMetrics(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	cmd := fqi.MustParse("org.example/tests/Lab/v1/Command/Wait")
	c.CommandInvoked(cmd, true)
	c.CommandInvoked(cmd, true)
	c.ExecutionFinished(cmd, wire.ExecutionFinishedSuccessfully, 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.executionsStarted.WithLabelValues(cmd.String(), "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.executionsFinished.WithLabelValues(cmd.String(), "finishedSuccessfully")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.executionDuration))
}

func TestBinaryMetrics(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	c.BinaryCreated(binary.Upload)
	c.BinaryCreated(binary.Upload)
	c.BinaryCreated(binary.Download)
	c.ChunkTransferred(binary.Upload, 100)
	c.ChunkTransferred(binary.Upload, 28)
	c.BinaryRemoved(binary.Upload, "consumed")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.binariesActive.WithLabelValues("upload")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.binariesActive.WithLabelValues("download")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.binariesRemoved.WithLabelValues("upload", "consumed")))
	assert.Equal(t, 128.0, testutil.ToFloat64(c.bytesTotal.WithLabelValues("upload")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.chunksTotal.WithLabelValues("upload")))
}

func TestRequestMetrics(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	c.RequestHandled(wire.OpGetProperty, wire.StatusSuccess, time.Millisecond)
	c.RequestHandled(wire.OpGetProperty, wire.StatusInvalidIdentifier, time.Millisecond)
	c.RequestHandled(wire.OpInvoke, wire.StatusSuccess, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues("GetProperty", "SUCCESS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues("GetProperty", wire.StatusInvalidIdentifier.String())))
	assert.Equal(t, 2, testutil.CollectAndCount(c.requestDuration))
}

func TestConnectionMetrics(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connectionsActive))
}

func TestRegistration(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()

	c, err := New(reg)
	require.NoError(t, err)
	c.ConnectionOpened()

	err = testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP sila_transport_connections_active Open client connections.
# TYPE sila_transport_connections_active gauge
sila_transport_connections_active 1
`), "sila_transport_connections_active")
	assert.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}
