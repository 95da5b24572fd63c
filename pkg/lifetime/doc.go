// Package lifetime manages expiry timers for server-side resources that a
// client addresses by UUID: finished command executions and binary
// transfers.
//
// # Timer Lifecycle
//
// A timer starts when Set is called and is replaced by a later Set or Touch
// for the same UUID. There is no stacking or accumulation. When a timer
// fires the entry is removed and the expiry callback runs outside the lock.
//
// # Accuracy
//
// Timers use time.AfterFunc and therefore the monotonic clock; wall clock
// adjustments do not shorten or extend a lifetime.
package lifetime
