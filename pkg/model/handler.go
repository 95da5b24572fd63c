package model

import (
	"context"
	"sync"
)

// CommandHandler is the function signature for command handlers.
// The parameters map is keyed by parameter identifier and holds native
// values. Returns a result map keyed by response identifier, or an error.
//
// Observable commands receive the running execution through the context
// and may report progress and intermediate responses there.
type CommandHandler func(ctx context.Context, params map[string]any) (map[string]any, error)

// PropertyGetter returns the current native value of a property.
type PropertyGetter func(ctx context.Context) (any, error)

// PropertyWatcher streams the values of an observable property. The first
// value is the current one. The channel is closed when ctx is done.
type PropertyWatcher func(ctx context.Context) (<-chan any, error)

// ObservableValue holds a property value and pushes every change to its
// subscribers. Slow subscribers skip intermediate values and always see
// the latest one.
type ObservableValue struct {
	mu    sync.Mutex
	value any
	subs  map[uint64]chan any
	next  uint64
}

// NewObservableValue creates an observable value with an initial value.
func NewObservableValue(initial any) *ObservableValue {
	return &ObservableValue{
		value: initial,
		subs:  make(map[uint64]chan any),
	}
}

// Value returns the current value.
func (o *ObservableValue) Value() any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// Get implements PropertyGetter.
func (o *ObservableValue) Get(ctx context.Context) (any, error) {
	return o.Value(), nil
}

// Set stores v and notifies subscribers.
func (o *ObservableValue) Set(v any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.value = v
	for _, ch := range o.subs {
		offer(ch, v)
	}
}

// Subscribe implements PropertyWatcher.
func (o *ObservableValue) Subscribe(ctx context.Context) (<-chan any, error) {
	ch := make(chan any, 1)

	o.mu.Lock()
	id := o.next
	o.next++
	o.subs[id] = ch
	ch <- o.value
	o.mu.Unlock()

	go func() {
		<-ctx.Done()
		o.mu.Lock()
		delete(o.subs, id)
		close(ch)
		o.mu.Unlock()
	}()
	return ch, nil
}

// Subscribers returns the number of active subscriptions.
func (o *ObservableValue) Subscribers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}

// offer replaces a pending unread value with v. Must hold o.mu.
func offer(ch chan any, v any) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- v
}
