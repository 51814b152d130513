package core

// Logger is any leveled logger the application can report to.
//
// Implementations may inspect args for known types (errors for stack traces,
// a logged-in user for error reporting context) in addition to printing them.
type Logger interface {
	Enable(enabled bool)
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
