package interaction

import (
	"context"
	"sync/atomic"
	"time"
)

// SubscriptionKind is what a subscription streams.
type SubscriptionKind uint8

const (
	SubscriptionProperty SubscriptionKind = iota + 1
	SubscriptionExecution
	SubscriptionIntermediate
)

// String returns the kind name.
func (k SubscriptionKind) String() string {
	switch k {
	case SubscriptionProperty:
		return "property"
	case SubscriptionExecution:
		return "execution"
	case SubscriptionIntermediate:
		return "intermediate"
	default:
		return "unknown"
	}
}

// Subscription is an active server push stream of a session.
type Subscription struct {
	// ID is the session-unique subscription identifier.
	ID uint32

	// Kind is what the subscription streams.
	Kind SubscriptionKind

	// Target is the property FQI or the execution UUID.
	Target string

	// Created is when the subscription started.
	Created time.Time

	sent   atomic.Uint64
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Sent returns the number of notifications sent so far.
func (s *Subscription) Sent() uint64 {
	return s.sent.Load()
}

// Done is closed once the subscription has sent its final notification.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}
