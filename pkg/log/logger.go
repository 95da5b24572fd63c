package log

// Logger receives protocol events. Log is called from the connection,
// execution and binary goroutines, so implementations must be safe for
// concurrent use and should not block.
type Logger interface {
	Log(event Event)
}

// NoopLogger discards every event.
type NoopLogger struct{}

// Log implements Logger.
func (NoopLogger) Log(Event) {}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(Event)

// Log implements Logger.
func (f LoggerFunc) Log(event Event) { f(event) }

// MultiLogger fans events out to several loggers in order.
type MultiLogger []Logger

// Log implements Logger.
func (m MultiLogger) Log(event Event) {
	for _, l := range m {
		l.Log(event)
	}
}

// Multi combines loggers, dropping nil ones. It returns nil when none is
// left and the logger itself when one is, so the result can go straight into
// a ProtocolLogger field.
func Multi(loggers ...Logger) Logger {
	var m MultiLogger
	for _, l := range loggers {
		if l != nil {
			m = append(m, l)
		}
	}
	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	default:
		return m
	}
}

var (
	_ Logger = NoopLogger{}
	_ Logger = LoggerFunc(nil)
	_ Logger = MultiLogger(nil)
)
