package rpc

import (
	"errors"
	"fmt"
)

var (
	ErrNotReady       = errors.New("rpc: sandbox not ready")
	ErrSession        = errors.New("rpc: mixnet session failure")
	ErrDisconnected   = errors.New("rpc: session disconnected")
	ErrBadRequest     = errors.New("rpc: bad request")
	ErrMethodNotFound = errors.New("rpc: method not found")
	ErrModule         = errors.New("rpc: module fault")
	ErrInternal       = errors.New("rpc: internal error")
	ErrClosed         = errors.New("rpc: transport closed")
	ErrBadFrame       = errors.New("rpc: malformed frame")
)

// ErrorCode classifies an error on the wire
type ErrorCode string

const (
	CodeNotReady       ErrorCode = "not_ready"
	CodeSession        ErrorCode = "session_failure"
	CodeDisconnected   ErrorCode = "disconnected"
	CodeBadRequest     ErrorCode = "bad_request"
	CodeMethodNotFound ErrorCode = "method_not_found"
	CodeModule         ErrorCode = "module_fault"
	CodeInternal       ErrorCode = "internal"
)

var codeErrors = []struct {
	code ErrorCode
	err  error
}{
	{CodeNotReady, ErrNotReady},
	{CodeSession, ErrSession},
	{CodeDisconnected, ErrDisconnected},
	{CodeBadRequest, ErrBadRequest},
	{CodeMethodNotFound, ErrMethodNotFound},
	{CodeModule, ErrModule},
	{CodeInternal, ErrInternal},
}

// CodeOf returns the wire code for err. Errors wrapping none of the
// package sentinels are internal.
func CodeOf(err error) ErrorCode {
	for _, ce := range codeErrors {
		if errors.Is(err, ce.err) {
			return ce.code
		}
	}
	return CodeInternal
}

// Err returns the sentinel for c
func (c ErrorCode) Err() error {
	for _, ce := range codeErrors {
		if ce.code == c {
			return ce.err
		}
	}
	return ErrInternal
}

// WireError is the error member of a response frame
type WireError struct {
	Code    ErrorCode `cbor:"code"`
	Message string    `cbor:"message"`
}

// RemoteError is an error returned by the far side of a call. It matches
// the sentinel of its code with errors.Is.
type RemoteError struct {
	Code    ErrorCode
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *RemoteError) Unwrap() error {
	return e.Code.Err()
}

func toWire(err error) *WireError {
	return &WireError{Code: CodeOf(err), Message: err.Error()}
}

func fromWire(w *WireError) error {
	return &RemoteError{Code: w.Code, Message: w.Message}
}
