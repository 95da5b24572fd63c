package examples

import (
	"context"
	"time"

	"github.com/sila-protocol/sila-go/pkg/execution"
	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/model"
)

// ObservableCommandTestID identifies the ObservableCommandTest feature.
var ObservableCommandTestID = fqi.MustParse("org.silastandard/test/ObservableCommandTest/v1")

// ObservableCommandTest runs commands that report their progress.
type ObservableCommandTest struct {
	// tick is how often EchoValueAfterDelay refreshes the remaining time.
	tick time.Duration
}

// NewObservableCommandTest creates the feature.
func NewObservableCommandTest() *ObservableCommandTest {
	return &ObservableCommandTest{tick: 100 * time.Millisecond}
}

// Register adds the feature and its handlers to b.
func (o *ObservableCommandTest) Register(b *model.Builder) {
	b.AddFeature(mustDefinition("ObservableCommandTest"))
	b.HandleCommand(ObservableCommandTestID.Command("Count"), o.count)
	b.HandleCommand(ObservableCommandTestID.Command("EchoValueAfterDelay"), o.echoValueAfterDelay)
}

func (o *ObservableCommandTest) count(ctx context.Context, params map[string]any) (map[string]any, error) {
	inst, _ := execution.FromContext(ctx)
	n := params["N"].(int64)
	delay := seconds(params["Delay"].(float64))

	for i := int64(0); i < n; i++ {
		if inst != nil {
			if err := inst.SendIntermediate(map[string]any{"CurrentIteration": i}); err != nil {
				return nil, err
			}
			_ = inst.SetProgress(float64(i+1) / float64(n))
			_ = inst.SetEstimatedRemaining(time.Duration(n-i-1) * delay)
		}
		if i < n-1 {
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}
	return map[string]any{"IterationResponse": n - 1}, nil
}

func (o *ObservableCommandTest) echoValueAfterDelay(ctx context.Context, params map[string]any) (map[string]any, error) {
	inst, _ := execution.FromContext(ctx)
	delay := seconds(params["Delay"].(float64))
	deadline := time.Now().Add(delay)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if inst != nil {
			_ = inst.SetEstimatedRemaining(remaining)
			_ = inst.SetProgress(1 - float64(remaining)/float64(delay))
		}
		if err := sleep(ctx, min(o.tick, remaining)); err != nil {
			return nil, err
		}
	}
	if inst != nil {
		_ = inst.SetProgress(1)
	}
	return map[string]any{"ReceivedValue": params["Value"].(int64)}, nil
}
