package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sila-protocol/sila-go/pkg/datatype"
	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/lifetime"
	"github.com/sila-protocol/sila-go/pkg/log"
	"github.com/sila-protocol/sila-go/pkg/model"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

// Observer receives execution events, e.g. for metrics.
type Observer interface {
	CommandInvoked(cmd fqi.FQI, observable bool)
	ExecutionFinished(cmd fqi.FQI, status wire.ExecutionStatus, elapsed time.Duration)
}

// Config configures an Engine.
type Config struct {
	// Retention is how long a finished execution stays queryable.
	Retention time.Duration

	// IntermediateBuffer bounds queued intermediate responses per watcher.
	// When full, the oldest queued response is dropped.
	IntermediateBuffer int

	// Logger receives operational logs. Nil disables logging.
	Logger *slog.Logger

	// ProtocolLogger receives execution state changes. Nil disables.
	ProtocolLogger log.Logger

	// Observer receives execution events. Nil disables.
	Observer Observer
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Retention:          10 * time.Minute,
		IntermediateBuffer: 16,
	}
}

// Info is a snapshot of an execution.
type Info struct {
	ID      uuid.UUID
	Command fqi.FQI
	Status  wire.ExecutionStatus

	// Progress is nil until the handler reports it.
	Progress *float64

	// EstimatedRemaining is nil until the handler reports it.
	EstimatedRemaining *time.Duration

	// Lifetime is the remaining retention of a finished execution.
	Lifetime time.Duration

	Created  time.Time
	Finished time.Time
}

// Result is the outcome of Invoke: responses of an unobservable command, or
// the UUID of an observable command's execution.
type Result struct {
	Responses   wire.Value
	ExecutionID uuid.UUID
}

// Observable reports whether the result refers to an execution.
func (r Result) Observable() bool {
	return r.ExecutionID != uuid.Nil
}

// Engine invokes commands and holds the table of observable executions.
type Engine struct {
	config Config
	codec  *datatype.Codec

	mu         sync.RWMutex
	executions map[uuid.UUID]*execution

	timers *lifetime.Manager
}

// NewEngine creates an engine. The codec decodes parameters and encodes
// responses; it may publish large binary responses.
func NewEngine(config Config, codec *datatype.Codec) *Engine {
	def := DefaultConfig()
	if config.Retention <= 0 {
		config.Retention = def.Retention
	}
	if config.IntermediateBuffer <= 0 {
		config.IntermediateBuffer = def.IntermediateBuffer
	}
	if codec == nil {
		codec = datatype.NewCodec(nil)
	}
	e := &Engine{
		config:     config,
		codec:      codec,
		executions: make(map[uuid.UUID]*execution),
		timers:     lifetime.NewManager(),
	}
	e.timers.OnExpiry(e.forget)
	return e
}

// Invoke decodes params and runs cmd. Decoding failures are returned
// without running anything. Unobservable commands return their encoded
// responses or a *DefinedError or *UndefinedError; observable commands
// return the UUID of a running execution.
func (e *Engine) Invoke(ctx context.Context, cmd *model.Command, params wire.Value) (Result, error) {
	decoded, err := e.codec.ToNative(datatype.WithParameters(ctx, cmd.ID), cmd.Parameters, params)
	if err != nil {
		return Result{}, err
	}
	in, _ := decoded.(map[string]any)

	if e.config.Observer != nil {
		e.config.Observer.CommandInvoked(cmd.ID, cmd.Observable)
	}

	if !cmd.Observable {
		start := time.Now()
		responses, err := e.run(ctx, cmd, in)
		status := wire.ExecutionFinishedSuccessfully
		if err != nil {
			status = wire.ExecutionFinishedWithError
		}
		if e.config.Observer != nil {
			e.config.Observer.ExecutionFinished(cmd.ID, status, time.Since(start))
		}
		return Result{Responses: responses}, err
	}

	x := e.start(ctx, cmd, in)
	return Result{ExecutionID: x.id}, nil
}

// run calls the handler and encodes its responses. Failures of any kind,
// panics included, come back as *DefinedError or *UndefinedError.
func (e *Engine) run(ctx context.Context, cmd *model.Command, params map[string]any) (wire.Value, error) {
	if cmd.Handler == nil {
		return wire.Value{}, undefined(ErrNotImplemented, "%s is not implemented", cmd.ID.Identifier())
	}
	out, err := call(ctx, cmd.Handler, params)
	if err != nil {
		return wire.Value{}, classify(cmd, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	responses, err := e.codec.ToMessage(ctx, cmd.Responses, out)
	if err != nil {
		return wire.Value{}, undefined(err, "invalid responses: %v", err)
	}
	return responses, nil
}

func call(ctx context.Context, h model.CommandHandler, params map[string]any) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = undefined(nil, "handler panicked: %v", r)
		}
	}()
	return h(ctx, params)
}

// classify maps a handler error onto the execution error taxonomy.
// Defined errors the command does not declare become undefined.
func classify(cmd *model.Command, err error) error {
	var de *DefinedError
	if errors.As(err, &de) {
		if cmd.AllowsError(de.ID) {
			return de
		}
		return undefined(nil, "undeclared error %s: %s", de.ID, de.Message)
	}
	var ue *UndefinedError
	if errors.As(err, &ue) {
		return ue
	}
	return undefined(err, "%v", err)
}

// start launches an observable execution. The handler keeps the values of
// parent, such as call metadata, but not its cancellation.
func (e *Engine) start(parent context.Context, cmd *model.Command, params map[string]any) *execution {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	x := &execution{
		id:            uuid.New(),
		cmd:           cmd,
		cancel:        cancel,
		status:        wire.ExecutionRunning,
		created:       time.Now(),
		watchers:      make(map[uint64]chan Info),
		intermediates: make(map[uint64]chan wire.Value),
		done:          make(chan struct{}),
	}

	e.mu.Lock()
	e.executions[x.id] = x
	e.mu.Unlock()

	e.logState(x, "", wire.ExecutionRunning, "invoked")
	if e.config.Logger != nil {
		e.config.Logger.Debug("execution started", slog.String("execution", x.id.String()), slog.String("command", cmd.ID.String()))
	}

	inst := &Instance{engine: e, x: x}
	go func() {
		defer cancel()
		responses, err := e.run(withInstance(ctx, inst), cmd, params)
		e.finish(x, responses, err)
	}()
	return x
}

// finish records the terminal result unless the execution is already
// terminal. It reports whether this call decided the outcome.
func (e *Engine) finish(x *execution, responses wire.Value, err error) bool {
	x.mu.Lock()
	if x.status.IsTerminal() {
		x.mu.Unlock()
		return false
	}
	old := x.status
	x.status = wire.ExecutionFinishedSuccessfully
	if err != nil {
		x.status = wire.ExecutionFinishedWithError
	}
	x.finished = time.Now()
	x.responses = responses
	x.err = err
	final := x.snapshot()
	final.Lifetime = e.config.Retention
	for id, ch := range x.watchers {
		offer(ch, final)
		close(ch)
		delete(x.watchers, id)
	}
	for id, ch := range x.intermediates {
		close(ch)
		delete(x.intermediates, id)
	}
	close(x.done)
	x.mu.Unlock()

	_ = e.timers.Set(x.id, e.config.Retention)

	reason := "completed"
	if err != nil {
		reason = err.Error()
	}
	e.logState(x, old.String(), final.Status, reason)
	if e.config.Logger != nil {
		e.config.Logger.Debug("execution finished",
			slog.String("execution", x.id.String()),
			slog.String("status", final.Status.String()),
			slog.Duration("elapsed", final.Finished.Sub(final.Created)))
	}
	if e.config.Observer != nil {
		e.config.Observer.ExecutionFinished(x.cmd.ID, final.Status, final.Finished.Sub(final.Created))
	}
	return true
}

func (e *Engine) lookup(id uuid.UUID) (*execution, error) {
	e.mu.RLock()
	x, ok := e.executions[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidExecutionUUID, id)
	}
	return x, nil
}

func (e *Engine) forget(id uuid.UUID) {
	e.mu.Lock()
	delete(e.executions, id)
	e.mu.Unlock()
	if e.config.Logger != nil {
		e.config.Logger.Debug("execution expired", slog.String("execution", id.String()))
	}
}

// Status returns a snapshot of an execution. It never blocks on the handler.
func (e *Engine) Status(id uuid.UUID) (Info, error) {
	x, err := e.lookup(id)
	if err != nil {
		return Info{}, err
	}
	x.mu.Lock()
	info := x.snapshot()
	x.mu.Unlock()
	if info.Status.IsTerminal() {
		info.Lifetime, _ = e.timers.Remaining(id)
	}
	return info, nil
}

// Responses returns the encoded responses of a finished execution, or the
// error it finished with.
func (e *Engine) Responses(id uuid.UUID) (wire.Value, error) {
	x, err := e.lookup(id)
	if err != nil {
		return wire.Value{}, err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.status.IsTerminal() {
		return wire.Value{}, fmt.Errorf("%w: %s", ErrCommandExecutionNotFinished, id)
	}
	if x.err != nil {
		return wire.Value{}, x.err
	}
	return x.responses, nil
}

// Command returns the command an execution runs.
func (e *Engine) Command(id uuid.UUID) (*model.Command, error) {
	x, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	return x.cmd, nil
}

// TryCancel asks a running execution to stop. It reports whether the
// cancellation decided the outcome; false means the execution had already
// finished.
func (e *Engine) TryCancel(id uuid.UUID) (bool, error) {
	x, err := e.lookup(id)
	if err != nil {
		return false, err
	}
	if !e.finish(x, wire.Value{}, undefined(ErrCancelled, "cancelled by client")) {
		return false, nil
	}
	x.cancel()
	return true, nil
}

// Watch streams snapshots of an execution, starting with the current one.
// Slow readers skip intermediate snapshots. The last value is the terminal
// snapshot, after which the channel is closed. It is also closed when ctx
// is done.
func (e *Engine) Watch(ctx context.Context, id uuid.UUID) (<-chan Info, error) {
	x, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	ch := make(chan Info, 1)

	x.mu.Lock()
	info := x.snapshot()
	if info.Status.IsTerminal() {
		x.mu.Unlock()
		info.Lifetime, _ = e.timers.Remaining(id)
		ch <- info
		close(ch)
		return ch, nil
	}
	ch <- info
	wid := x.nextWatcher
	x.nextWatcher++
	x.watchers[wid] = ch
	x.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-x.done:
			return
		}
		x.mu.Lock()
		if _, ok := x.watchers[wid]; ok {
			delete(x.watchers, wid)
			close(ch)
		}
		x.mu.Unlock()
	}()
	return ch, nil
}

// WatchIntermediate streams the intermediate responses an execution sends
// from now on. The channel is closed when the execution finishes or ctx is
// done.
func (e *Engine) WatchIntermediate(ctx context.Context, id uuid.UUID) (<-chan wire.Value, error) {
	x, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	if !x.cmd.HasIntermediateResponses() {
		return nil, fmt.Errorf("%w: %s", ErrNoIntermediateResponses, x.cmd.ID)
	}
	ch := make(chan wire.Value, e.config.IntermediateBuffer)

	x.mu.Lock()
	if x.status.IsTerminal() {
		x.mu.Unlock()
		close(ch)
		return ch, nil
	}
	wid := x.nextWatcher
	x.nextWatcher++
	x.intermediates[wid] = ch
	x.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-x.done:
			return
		}
		x.mu.Lock()
		if _, ok := x.intermediates[wid]; ok {
			delete(x.intermediates, wid)
			close(ch)
		}
		x.mu.Unlock()
	}()
	return ch, nil
}

// Retention returns how long finished executions stay queryable.
func (e *Engine) Retention() time.Duration {
	return e.config.Retention
}

// Len returns the number of retained executions.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.executions)
}

// Close cancels running executions and drops all retained ones.
func (e *Engine) Close() {
	e.mu.RLock()
	all := make([]*execution, 0, len(e.executions))
	for _, x := range e.executions {
		all = append(all, x)
	}
	e.mu.RUnlock()

	for _, x := range all {
		if e.finish(x, wire.Value{}, undefined(ErrCancelled, "server shutting down")) {
			x.cancel()
		}
	}
	e.timers.CancelAll()

	e.mu.Lock()
	e.executions = make(map[uuid.UUID]*execution)
	e.mu.Unlock()
}

func (e *Engine) logState(x *execution, old string, status wire.ExecutionStatus, reason string) {
	if e.config.ProtocolLogger == nil {
		return
	}
	e.config.ProtocolLogger.Log(log.NewStateChange(log.StateEntityExecution, x.id.String(), old, status.String(), reason))
}

type execution struct {
	id      uuid.UUID
	cmd     *model.Command
	cancel  context.CancelFunc
	created time.Time

	mu          sync.Mutex
	status      wire.ExecutionStatus
	progress    *float64
	remaining   *time.Duration
	finished    time.Time
	responses   wire.Value
	err         error
	nextWatcher uint64
	watchers    map[uint64]chan Info
	// intermediates are queued for watchers; closed on finish.
	intermediates map[uint64]chan wire.Value

	done chan struct{}
}

// snapshot must be called with x.mu held.
func (x *execution) snapshot() Info {
	info := Info{
		ID:       x.id,
		Command:  x.cmd.ID,
		Status:   x.status,
		Created:  x.created,
		Finished: x.finished,
	}
	if x.progress != nil {
		p := *x.progress
		info.Progress = &p
	}
	if x.remaining != nil {
		r := *x.remaining
		info.EstimatedRemaining = &r
	}
	return info
}

// broadcast pushes the current snapshot to watchers. Must hold x.mu.
func (x *execution) broadcast() {
	info := x.snapshot()
	for _, ch := range x.watchers {
		offer(ch, info)
	}
}

// offer replaces a pending unread snapshot with info.
func offer(ch chan Info, info Info) {
	select {
	case ch <- info:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- info
}
