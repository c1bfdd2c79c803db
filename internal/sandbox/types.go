package sandbox

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrClosed is returned for work posted to a closed runtime
	ErrClosed = errors.New("sandbox: runtime closed")
	// ErrBodyUsed is returned when a response body is read twice
	ErrBodyUsed = errors.New("sandbox: response body already used")
	// ErrNotResponse is returned when a module hands back something that
	// cannot be read as a response
	ErrNotResponse = errors.New("sandbox: value is not a response")
	// ErrMalformedForm is returned when a body cannot be parsed as form data
	ErrMalformedForm = errors.New("sandbox: malformed form body")
)

// Config defines runtime configuration
type Config struct {
	Name             string // runtime name used in logs and diagnostics
	Origin           string // origin of blob handles created in this runtime
	EnableConsole    bool   // route console.* to the logger
	MaxCallStackSize int    // 0 keeps the goja default
	QueueSize        int    // buffered job slots on the loop
	ConsoleHistory   int    // console entries kept for inspection
}

// DefaultConfig returns the configuration used for module runtimes
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		Origin:           "null",
		EnableConsole:    true,
		MaxCallStackSize: 1024,
		QueueSize:        256,
		ConsoleHistory:   100,
	}
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    // log, info, debug, warn, error
	Message string    // joined arguments
	Time    time.Time // timestamp
}

// Diagnostic is a structured report of a fault inside a runtime
type Diagnostic struct {
	Module  string
	Message string
	Stack   string
	Time    time.Time
}

// FaultError wraps a Diagnostic as an error
type FaultError struct {
	Diagnostic Diagnostic
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s: fault: %s", e.Diagnostic.Module, e.Diagnostic.Message)
}

// JSError is an exception or rejection raised by module code
type JSError struct {
	Name    string
	Message string
	Stack   string
}

func (e *JSError) Error() string {
	switch {
	case e.Name == "":
		return e.Message
	case e.Message == "":
		return e.Name
	default:
		return e.Name + ": " + e.Message
	}
}

// IsJSError reports whether err carries a JS error with the given name
func IsJSError(err error, name string) bool {
	var jsErr *JSError
	return errors.As(err, &jsErr) && jsErr.Name == name
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}
