package logger

// LoggerInstance defines the interface for logging backends.
type LoggerInstance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

// Logger holds multiple logging backends and dispatches log calls to all of them.
type Logger struct {
	instances []LoggerInstance
}

var singleton *Logger

func getSingleton() *Logger {
	return singleton
}

// Init initializes the global logger with one or more logging backends.
// This must be called before using any logging functions.
func Init(instances ...LoggerInstance) {
	singleton = &Logger{
		instances: instances,
	}
}

func dispatch(fn func(LoggerInstance)) {
	logger := getSingleton()
	if logger == nil {
		return
	}

	for _, instance := range logger.instances {
		fn(instance)
	}
}

// Log writes a message at the default log level to all configured backends.
func Log(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Log(message, keyvals...) })
}

// Info writes a message at INFO level to all configured backends.
func Info(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Info(message, keyvals...) })
}

// Warn writes a message at WARN level to all configured backends.
func Warn(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Warn(message, keyvals...) })
}

// Error writes a message at ERROR level to all configured backends.
func Error(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Error(message, keyvals...) })
}

// Debug writes a message at DEBUG level to all configured backends.
func Debug(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Debug(message, keyvals...) })
}

// Fatal writes a message at FATAL level and terminates the program.
func Fatal(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Fatal(message, keyvals...) })
}

// Entry carries key/value pairs that are prepended to every call made through it.
// It is used to tag all log lines of one analysis with the same correlation id.
type Entry struct {
	keyvals []any
}

// With returns an Entry that prefixes keyvals to every message.
func With(keyvals ...any) Entry {
	return Entry{keyvals: keyvals}
}

// With returns a copy of the entry extended with keyvals.
func (e Entry) With(keyvals ...any) Entry {
	merged := make([]any, 0, len(e.keyvals)+len(keyvals))
	merged = append(merged, e.keyvals...)
	merged = append(merged, keyvals...)
	return Entry{keyvals: merged}
}

func (e Entry) merge(keyvals []any) []any {
	if len(e.keyvals) == 0 {
		return keyvals
	}
	out := make([]any, 0, len(e.keyvals)+len(keyvals))
	out = append(out, e.keyvals...)
	return append(out, keyvals...)
}

func (e Entry) Debug(message string, keyvals ...any) { Debug(message, e.merge(keyvals)...) }
func (e Entry) Info(message string, keyvals ...any)  { Info(message, e.merge(keyvals)...) }
func (e Entry) Warn(message string, keyvals ...any)  { Warn(message, e.merge(keyvals)...) }
func (e Entry) Error(message string, keyvals ...any) { Error(message, e.merge(keyvals)...) }
