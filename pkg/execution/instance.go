package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

type instanceKey struct{}

// Instance is the running execution of an observable command, as seen by
// its handler.
type Instance struct {
	engine *Engine
	x      *execution
}

func withInstance(ctx context.Context, inst *Instance) context.Context {
	return context.WithValue(ctx, instanceKey{}, inst)
}

// FromContext returns the execution a handler runs in. Handlers of
// unobservable commands have none.
func FromContext(ctx context.Context) (*Instance, bool) {
	inst, ok := ctx.Value(instanceKey{}).(*Instance)
	return inst, ok
}

// ID returns the execution UUID.
func (i *Instance) ID() uuid.UUID { return i.x.id }

// SetProgress reports progress in [0, 1]. Progress never decreases.
func (i *Instance) SetProgress(p float64) error {
	if p < 0 || p > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidProgress, p)
	}
	x := i.x
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.status.IsTerminal() {
		return ErrFinished
	}
	if x.progress != nil && p < *x.progress {
		return fmt.Errorf("%w: %v after %v", ErrProgressRegressed, p, *x.progress)
	}
	x.progress = &p
	x.broadcast()
	return nil
}

// SetEstimatedRemaining reports the estimated time until completion.
func (i *Instance) SetEstimatedRemaining(d time.Duration) error {
	if d < 0 {
		d = 0
	}
	x := i.x
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.status.IsTerminal() {
		return ErrFinished
	}
	x.remaining = &d
	x.broadcast()
	return nil
}

// SendIntermediate encodes responses as an intermediate response and
// queues it for every watcher.
func (i *Instance) SendIntermediate(responses map[string]any) error {
	x := i.x
	if !x.cmd.HasIntermediateResponses() {
		return fmt.Errorf("%w: %s", ErrNoIntermediateResponses, x.cmd.ID)
	}
	v, err := i.engine.codec.ToMessage(context.Background(), x.cmd.IntermediateResponses, responses)
	if err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.status.IsTerminal() {
		return ErrFinished
	}
	for _, ch := range x.intermediates {
		queue(ch, v)
	}
	return nil
}

// queue appends v, dropping the oldest queued value when ch is full.
func queue(ch chan wire.Value, v wire.Value) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
