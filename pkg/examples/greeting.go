package examples

import (
	"context"

	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/model"
)

// GreetingProviderID identifies the GreetingProvider feature.
var GreetingProviderID = fqi.MustParse("org.silastandard/examples/GreetingProvider/v1")

// GreetingProvider greets callers and reports the server's start year.
type GreetingProvider struct {
	startYear int64
}

// NewGreetingProvider creates the feature.
func NewGreetingProvider(startYear int) *GreetingProvider {
	return &GreetingProvider{startYear: int64(startYear)}
}

// Register adds the feature and its handlers to b.
func (g *GreetingProvider) Register(b *model.Builder) {
	b.AddFeature(mustDefinition("GreetingProvider"))
	b.HandleCommand(GreetingProviderID.Command("SayHello"), g.sayHello)
	b.HandleProperty(GreetingProviderID.Property("StartYear"), func(ctx context.Context) (any, error) {
		return g.startYear, nil
	})
}

func (g *GreetingProvider) sayHello(ctx context.Context, params map[string]any) (map[string]any, error) {
	return map[string]any{"Greeting": "Hello SiLA 2 " + params["Name"].(string)}, nil
}
