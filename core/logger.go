package core

// Logger is the logging interface shared by every service.
// Implementations may inspect args to attach extra context (e.g. the current user).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
