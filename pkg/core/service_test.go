package core

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sila-protocol/sila-go/pkg/execution"
	"github.com/sila-protocol/sila-go/pkg/featuredef"
	"github.com/sila-protocol/sila-go/pkg/model"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

func newService(t *testing.T) (*Service, *model.Registry, *execution.Engine) {
	t.Helper()
	s := New(Info{
		Name:      "Incubator",
		Type:      "TestServer",
		Version:   "1.0",
		VendorURL: "https://example.org",
	})
	b := model.NewBuilder()
	s.Register(b)
	reg, err := b.Build()
	require.NoError(t, err)
	s.Attach(reg)

	e := execution.NewEngine(execution.DefaultConfig(), nil)
	t.Cleanup(e.Close)
	return s, reg, e
}

func TestDefinitionParses(t *testing.T) {
	def := Definition()
	assert.Equal(t, "SiLAService", def.Identifier)
	assert.Len(t, def.Properties, 7)
}

func TestProperties(t *testing.T) {
	s, reg, _ := newService(t)
	assert.NotEqual(t, uuid.Nil, s.Info().UUID)

	p, ok := reg.Property(FeatureID.Property("ServerUUID"))
	require.True(t, ok)
	v, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, s.Info().UUID.String(), v)

	p, ok = reg.Property(FeatureID.Property("ImplementedFeatures"))
	require.True(t, ok)
	v, err = p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{FeatureID.String()}, v)
}

func TestGetFeatureDefinition(t *testing.T) {
	_, reg, e := newService(t)
	cmd, ok := reg.Command(FeatureID.Command("GetFeatureDefinition"))
	require.True(t, ok)

	params := wire.Struct(map[string]wire.Value{"FeatureIdentifier": wire.Str(FeatureID.String())})
	res, err := e.Invoke(context.Background(), cmd, params)
	require.NoError(t, err)

	def, err := featuredef.Parse([]byte(res.Responses.Fields["FeatureDefinition"].String))
	require.NoError(t, err)
	assert.Equal(t, "SiLAService", def.Identifier)

	params = wire.Struct(map[string]wire.Value{"FeatureIdentifier": wire.Str("org.example/tests/Missing/v1")})
	_, err = e.Invoke(context.Background(), cmd, params)
	var de *execution.DefinedError
	require.ErrorAs(t, err, &de)
	assert.True(t, de.ID.Equal(UnimplementedFeature))
}

func TestSetServerName(t *testing.T) {
	s, reg, e := newService(t)
	var renamed string
	s.OnRename(func(name string) { renamed = name })

	cmd, _ := reg.Command(FeatureID.Command("SetServerName"))
	_, err := e.Invoke(context.Background(), cmd, wire.Struct(map[string]wire.Value{"ServerName": wire.Str("Shaker")}))
	require.NoError(t, err)
	assert.Equal(t, "Shaker", s.Info().Name)
	assert.Equal(t, "Shaker", renamed)
}
