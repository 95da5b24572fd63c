// Package core implements the SiLAService feature every server carries: the
// server's identity, the list of implemented features and their definitions.
package core

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sila-protocol/sila-go/pkg/execution"
	"github.com/sila-protocol/sila-go/pkg/featuredef"
	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/model"
)

//go:embed features/SiLAService.yaml
var definition []byte

// Identifiers of the core feature.
var (
	FeatureID            = fqi.MustParse("org.silastandard/core/SiLAService/v1")
	UnimplementedFeature = FeatureID.DefinedExecutionError("UnimplementedFeature")
)

// Definition returns a fresh copy of the SiLAService feature definition.
func Definition() *featuredef.Feature {
	def, err := featuredef.Parse(definition)
	if err != nil {
		panic(fmt.Sprintf("core: embedded definition: %v", err))
	}
	return def
}

// Info identifies a server.
type Info struct {
	Name        string
	Type        string
	UUID        uuid.UUID
	Description string
	Version     string
	VendorURL   string
}

// Service serves the SiLAService feature.
type Service struct {
	mu       sync.RWMutex
	info     Info
	onRename func(name string)

	registry atomic.Pointer[model.Registry]
}

// New creates the service. A nil UUID is replaced by a random one.
func New(info Info) *Service {
	if info.UUID == uuid.Nil {
		info.UUID = uuid.New()
	}
	return &Service{info: info}
}

// Info returns the current server identity.
func (s *Service) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// OnRename registers a callback invoked after SetServerName succeeds.
func (s *Service) OnRename(fn func(name string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRename = fn
}

// Register adds the feature and its handlers to b.
func (s *Service) Register(b *model.Builder) {
	b.AddFeature(Definition())
	b.HandleCommand(FeatureID.Command("GetFeatureDefinition"), s.getFeatureDefinition)
	b.HandleCommand(FeatureID.Command("SetServerName"), s.setServerName)

	b.HandleProperty(FeatureID.Property("ServerName"), s.field(func(i Info) string { return i.Name }))
	b.HandleProperty(FeatureID.Property("ServerType"), s.field(func(i Info) string { return i.Type }))
	b.HandleProperty(FeatureID.Property("ServerUUID"), s.field(func(i Info) string { return i.UUID.String() }))
	b.HandleProperty(FeatureID.Property("ServerDescription"), s.field(func(i Info) string { return i.Description }))
	b.HandleProperty(FeatureID.Property("ServerVersion"), s.field(func(i Info) string { return i.Version }))
	b.HandleProperty(FeatureID.Property("ServerVendorURL"), s.field(func(i Info) string { return i.VendorURL }))
	b.HandleProperty(FeatureID.Property("ImplementedFeatures"), s.implementedFeatures)
}

// Attach gives the service the registry it is part of.
func (s *Service) Attach(reg *model.Registry) {
	s.registry.Store(reg)
}

func (s *Service) field(get func(Info) string) model.PropertyGetter {
	return func(ctx context.Context) (any, error) {
		return get(s.Info()), nil
	}
}

func (s *Service) implementedFeatures(ctx context.Context) (any, error) {
	reg := s.registry.Load()
	if reg == nil {
		return []any{}, nil
	}
	features := reg.Features()
	out := make([]any, len(features))
	for i, f := range features {
		out[i] = f.ID.String()
	}
	return out, nil
}

func (s *Service) getFeatureDefinition(ctx context.Context, params map[string]any) (map[string]any, error) {
	text := params["FeatureIdentifier"].(string)
	id, err := fqi.Parse(text)
	if err != nil {
		return nil, execution.NewDefinedError(UnimplementedFeature, "%q is not a feature identifier", text)
	}
	reg := s.registry.Load()
	if reg == nil {
		return nil, execution.NewDefinedError(UnimplementedFeature, "%s is not implemented", id)
	}
	f, ok := reg.Feature(id)
	if !ok {
		return nil, execution.NewDefinedError(UnimplementedFeature, "%s is not implemented", id)
	}
	doc, err := featuredef.Marshal(f.Definition)
	if err != nil {
		return nil, err
	}
	return map[string]any{"FeatureDefinition": string(doc)}, nil
}

func (s *Service) setServerName(ctx context.Context, params map[string]any) (map[string]any, error) {
	name := params["ServerName"].(string)

	s.mu.Lock()
	s.info.Name = name
	fn := s.onRename
	s.mu.Unlock()

	if fn != nil {
		fn(name)
	}
	return map[string]any{}, nil
}
