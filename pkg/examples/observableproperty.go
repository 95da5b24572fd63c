package examples

import (
	"context"

	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/model"
)

// ObservablePropertyTestID identifies the ObservablePropertyTest feature.
var ObservablePropertyTestID = fqi.MustParse("org.silastandard/test/ObservablePropertyTest/v1")

// ObservablePropertyTest serves observable properties.
type ObservablePropertyTest struct {
	fixed    *model.ObservableValue
	editable *model.ObservableValue
}

// NewObservablePropertyTest creates the feature.
func NewObservablePropertyTest() *ObservablePropertyTest {
	return &ObservablePropertyTest{
		fixed:    model.NewObservableValue(int64(42)),
		editable: model.NewObservableValue(int64(0)),
	}
}

// Register adds the feature and its handlers to b.
func (o *ObservablePropertyTest) Register(b *model.Builder) {
	b.AddFeature(mustDefinition("ObservablePropertyTest"))
	b.HandleCommand(ObservablePropertyTestID.Command("SetValue"), o.setValue)
	b.HandleObservableProperty(ObservablePropertyTestID.Property("FixedValue"), o.fixed)
	b.HandleObservableProperty(ObservablePropertyTestID.Property("Editable"), o.editable)
}

// Editable returns the current value of the Editable property.
func (o *ObservablePropertyTest) Editable() int64 {
	return o.editable.Value().(int64)
}

func (o *ObservablePropertyTest) setValue(ctx context.Context, params map[string]any) (map[string]any, error) {
	o.editable.Set(params["Value"].(int64))
	return map[string]any{}, nil
}
