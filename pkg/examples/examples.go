package examples

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/sila-protocol/sila-go/pkg/featuredef"
	"github.com/sila-protocol/sila-go/pkg/model"
)

//go:embed features/*.yaml
var definitions embed.FS

// Feature is an example feature that can register itself.
type Feature interface {
	Register(b *model.Builder)
}

// All returns fresh instances of every example feature.
func All() []Feature {
	return []Feature{
		NewGreetingProvider(time.Now().Year()),
		NewObservableCommandTest(),
		NewBinaryTransferTest(),
		NewObservablePropertyTest(),
	}
}

// Definition returns the parsed definition of the named example feature.
func Definition(identifier string) (*featuredef.Feature, error) {
	data, err := definitions.ReadFile("features/" + identifier + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown example feature %q", identifier)
	}
	return featuredef.Parse(data)
}

func mustDefinition(identifier string) *featuredef.Feature {
	def, err := Definition(identifier)
	if err != nil {
		panic(fmt.Sprintf("examples: embedded definition: %v", err))
	}
	return def
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
