// Package aierr defines the SDK's tagged error model. Every fallible
// operation in the SDK returns a *Error (or nil) instead of relying on
// exception-style control flow.
package aierr

import (
	"errors"
	"fmt"
)

// Kind tags the category of failure. Names are stable across the public
// boundary of the SDK.
type Kind string

const (
	InvalidInputNullPointer              Kind = "InvalidInputNullPointer"
	InvalidInputParameterValue           Kind = "InvalidInputParameterValue"
	InvalidInputAudioFormat              Kind = "InvalidInputAudioFormat"
	InvalidInputModelHandle              Kind = "InvalidInputModelHandle"
	InvalidInputConfiguration            Kind = "InvalidInputConfiguration"
	InvalidInputEmptyString              Kind = "InvalidInputEmptyString"
	ModelFileNotFound                    Kind = "ModelFileNotFound"
	ModelFileCorrupted                   Kind = "ModelFileCorrupted"
	ModelNotFoundInRegistry              Kind = "ModelNotFoundInRegistry"
	InferenceModelNotLoaded              Kind = "InferenceModelNotLoaded"
	InferenceInvalidInput                Kind = "InferenceInvalidInput"
	InferenceContextWindowExceeded       Kind = "InferenceContextWindowExceeded"
	InferenceHardwareAccelerationFailure Kind = "InferenceHardwareAccelerationFailure"
	ResourceOutOfMemory                  Kind = "ResourceOutOfMemory"
	ResourceThreadPoolExhausted          Kind = "ResourceThreadPoolExhausted"
	ResourceGPUMemoryExhausted           Kind = "ResourceGPUMemoryExhausted"
	StorageInsufficientSpace             Kind = "StorageInsufficientSpace"
	StorageReadError                     Kind = "StorageReadError"
	NetworkUnreachable                   Kind = "NetworkUnreachable"
	NetworkConnectionTimeout             Kind = "NetworkConnectionTimeout"
	NetworkHTTPError                     Kind = "NetworkHTTPError"
	NetworkDNSFailure                    Kind = "NetworkDNSFailure"
	NetworkSSLError                      Kind = "NetworkSSLError"
	OperationCancelled                   Kind = "OperationCancelled"
	Unknown                              Kind = "Unknown"
)

// Error is the single tagged error shape surfaced across the SDK boundary.
type Error struct {
	Code               Kind
	Message            string
	Details            string
	RecoverySuggestion string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
}

// New builds an Error. message must describe the failure in more than ten
// characters per the SDK's user-visible-error contract.
func New(code Kind, message, details string) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// WithRecovery attaches a recovery suggestion and returns the receiver for chaining.
func (e *Error) WithRecovery(hint string) *Error {
	e.RecoverySuggestion = hint
	return e
}

// Is supports errors.Is comparisons against a Kind-only sentinel built with New(code, "", "").
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Retryable classifies whether an error kind is retryable under C2's policy.
func Retryable(code Kind) bool {
	switch code {
	case NetworkUnreachable, NetworkConnectionTimeout, NetworkDNSFailure,
		ResourceOutOfMemory, ResourceThreadPoolExhausted, ResourceGPUMemoryExhausted:
		return true
	default:
		return false
	}
}

// CodeOf extracts the Kind from an error, returning Unknown if err is not an *Error.
func CodeOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Unknown
}
