// Unified error handling for the mirror surface pipeline
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// ErrMalformedTable is a LUT whose ruler is not strictly increasing.
	ErrMalformedTable ErrorCode = "MALFORMED_TABLE"

	// ErrDataShape is a reference table or field whose dimensions do not
	// match the expected sample count.
	ErrDataShape ErrorCode = "DATA_SHAPE"

	// ErrConfiguration is an invalid request parameter (basis order, grid
	// size, radii, axis map).
	ErrConfiguration ErrorCode = "CONFIGURATION"

	// ErrIO is a missing, unreadable or unwritable file.
	ErrIO ErrorCode = "IO"

	// ErrNumeric is a singular or otherwise unsolvable linear system.
	ErrNumeric ErrorCode = "NUMERIC"

	// ErrRuntime is a cancelled request or an unexpected internal failure.
	ErrRuntime ErrorCode = "RUNTIME"
)

// MirrorError is the unified error type for the pipeline
type MirrorError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the offending file (if any)
	Path string

	// Err wraps the underlying error
	Err error

	// Context provides additional key/value detail
	Context map[string]interface{}
}

// Error implements the error interface
func (e *MirrorError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Path != "" {
		msg = fmt.Sprintf("[%s] %s: %s", e.Code, e.Path, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *MirrorError) Unwrap() error {
	return e.Err
}

// SetPath sets the offending file path
func (e *MirrorError) SetPath(path string) *MirrorError {
	e.Path = path
	return e
}

// SetContext adds additional context
func (e *MirrorError) SetContext(key string, value interface{}) *MirrorError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new MirrorError
func New(code ErrorCode, message string) *MirrorError {
	return &MirrorError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a code and message
func Wrap(err error, code ErrorCode, message string) *MirrorError {
	return &MirrorError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// MalformedTableError reports a look-up table whose ruler is not strictly
// increasing at the given column.
func MalformedTableError(column int, prev, next float64) *MirrorError {
	return New(ErrMalformedTable,
		fmt.Sprintf("ruler not strictly increasing at column %d (%g -> %g)", column, prev, next)).
		SetContext("column", column)
}

// DataShapeError reports a dimension mismatch.
func DataShapeError(what string, got, want int) *MirrorError {
	return New(ErrDataShape, fmt.Sprintf("%s: got %d, want %d", what, got, want)).
		SetContext("got", got).
		SetContext("want", want)
}

// DataShapeErrorf reports a malformed table or field with a free-form reason.
func DataShapeErrorf(format string, args ...interface{}) *MirrorError {
	return New(ErrDataShape, fmt.Sprintf(format, args...))
}

// ConfigurationError reports an invalid request parameter.
func ConfigurationError(param string, reason string) *MirrorError {
	return New(ErrConfiguration, fmt.Sprintf("%s: %s", param, reason)).
		SetContext("param", param)
}

// IOError reports a file that could not be read or written.
func IOError(path string, err error) *MirrorError {
	return Wrap(err, ErrIO, "file access failed").SetPath(path)
}

// NumericError reports a failed numeric solve.
func NumericError(operation string, err error) *MirrorError {
	return Wrap(err, ErrNumeric, operation+" failed")
}

// RuntimeError creates a general runtime error
func RuntimeError(message string) *MirrorError {
	return New(ErrRuntime, message)
}

// RecoverPanic converts a recovered panic value into a runtime error. It
// must be called from a deferred function.
func RecoverPanic(r interface{}) *MirrorError {
	if r == nil {
		return nil
	}
	switch x := r.(type) {
	case string:
		return RuntimeError("panic: " + x)
	case runtime.Error:
		return RuntimeError(x.Error())
	case error:
		return RuntimeError(x.Error())
	default:
		return RuntimeError(fmt.Sprintf("panic: %v", x))
	}
}

// Is checks if err, or any error it wraps, is a MirrorError with the given
// code.
func Is(err error, code ErrorCode) bool {
	var me *MirrorError
	if stderrors.As(err, &me) {
		return me.Code == code
	}
	return false
}

// CodeOf returns the code of the first MirrorError in err's chain, or the
// empty code.
func CodeOf(err error) ErrorCode {
	var me *MirrorError
	if stderrors.As(err, &me) {
		return me.Code
	}
	return ""
}

// IsMalformedTable checks if error is a malformed look-up table
func IsMalformedTable(err error) bool {
	return Is(err, ErrMalformedTable)
}

// IsDataShape checks if error is a dimension mismatch
func IsDataShape(err error) bool {
	return Is(err, ErrDataShape)
}

// IsConfiguration checks if error is a configuration error
func IsConfiguration(err error) bool {
	return Is(err, ErrConfiguration)
}

// IsIO checks if error is a file access error
func IsIO(err error) bool {
	return Is(err, ErrIO)
}
