package inspect_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sila-protocol/sila-go/pkg/core"
	"github.com/sila-protocol/sila-go/pkg/examples"
	"github.com/sila-protocol/sila-go/pkg/inspect"
	"github.com/sila-protocol/sila-go/pkg/interaction"
	"github.com/sila-protocol/sila-go/pkg/service"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

func remote(t *testing.T) *inspect.RemoteInspector {
	t.Helper()
	config := service.DefaultConfig()
	config.Address = "127.0.0.1:0"
	server, err := service.New(config, examples.NewGreetingProvider(2024), examples.NewObservableCommandTest(), examples.NewBinaryTransferTest())
	require.NoError(t, err)
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(func() { _ = server.Stop() })

	client, err := service.Dial(context.Background(), server.Addr().String(), service.DefaultClientConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return inspect.NewRemoteInspector(client)
}

func TestReadProperty(t *testing.T) {
	r := remote(t)
	ctx := context.Background()

	year, err := r.ReadProperty(ctx, examples.GreetingProviderID.Property("StartYear"))
	require.NoError(t, err)
	assert.Equal(t, wire.Int(2024), year)

	large, err := r.ReadProperty(ctx, examples.BinaryTransferTestID.Property("BinaryValueDownload"))
	require.NoError(t, err)
	assert.Empty(t, large.BinaryRef)
	assert.True(t, bytes.Equal(examples.BinaryValueDownload, large.Bytes))

	_, err = r.ReadProperty(ctx, examples.GreetingProviderID.Command("SayHello"))
	assert.ErrorIs(t, err, inspect.ErrInvalidPath)
}

func TestCallUnobservable(t *testing.T) {
	r := remote(t)

	res, err := r.Call(context.Background(), examples.GreetingProviderID.Command("SayHello"),
		map[string]wire.Value{"Name": wire.Str("Lab")}, nil)
	require.NoError(t, err)
	assert.Equal(t, wire.Str("Hello SiLA 2 Lab"), res["Greeting"])
}

func TestCallObservable(t *testing.T) {
	r := remote(t)

	var updates []wire.ExecutionInfoPayload
	res, err := r.Call(context.Background(), examples.ObservableCommandTestID.Command("Count"),
		map[string]wire.Value{"N": wire.Int(3), "Delay": wire.Real(0.05)},
		func(info wire.ExecutionInfoPayload) { updates = append(updates, info) })
	require.NoError(t, err)
	assert.Equal(t, wire.Int(2), res["IterationResponse"])

	require.NotEmpty(t, updates)
	assert.Equal(t, wire.ExecutionFinishedSuccessfully, updates[len(updates)-1].Status)
}

func TestCallResolvesBinaryResponses(t *testing.T) {
	r := remote(t)
	data := bytes.Repeat([]byte("x"), 3<<20)

	res, err := r.Call(context.Background(), examples.BinaryTransferTestID.Command("EchoBinaryValue"),
		map[string]wire.Value{"BinaryValue": wire.Bytes(data)}, nil)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, res["ReceivedValue"].Bytes))
}

func TestCallErrors(t *testing.T) {
	r := remote(t)
	ctx := context.Background()

	_, err := r.Call(ctx, examples.GreetingProviderID.Property("StartYear"), nil, nil)
	assert.ErrorIs(t, err, inspect.ErrInvalidPath)

	_, err = r.Call(ctx, examples.ObservableCommandTestID.Command("Count"),
		map[string]wire.Value{"N": wire.Int(0), "Delay": wire.Real(0)}, nil)
	var se *interaction.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, wire.StatusValidationError, se.Status)
}

func TestFetchRegistry(t *testing.T) {
	r := remote(t)

	reg, err := r.FetchRegistry(context.Background())
	require.NoError(t, err)

	_, ok := reg.Feature(core.FeatureID)
	assert.True(t, ok, "core feature")

	count, ok := reg.Command(examples.ObservableCommandTestID.Command("Count"))
	require.True(t, ok)
	assert.True(t, count.Observable)
	assert.Nil(t, count.Handler)

	id, err := inspect.Resolve(reg, "GreetingProvider/SayHello")
	require.NoError(t, err)
	assert.Equal(t, examples.GreetingProviderID.Command("SayHello").String(), id.String())

	cmd, err := inspect.NewInspector(reg).Command(id)
	require.NoError(t, err)
	params, err := inspect.ParseParameters(cmd, []string{"Name=Lab"})
	require.NoError(t, err)
	assert.Equal(t, wire.Str("Lab"), params["Name"])
}
