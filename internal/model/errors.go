package model

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes failures across the sync, matching and allocation
// subsystems.
type ErrorCode string

const (
	// ErrCodeNotFound: unknown household or entity ID. Not retried.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeValidation: malformed request or record, rejected before any
	// store write.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeConflict: a record failed to apply during a push. Collected,
	// the batch continues.
	ErrCodeConflict ErrorCode = "CONFLICT"

	// ErrCodeStale: the incoming record is older than the stored copy.
	ErrCodeStale ErrorCode = "STALE"

	// ErrCodeConnectivity: DNS failure, timeout or refused connection.
	ErrCodeConnectivity ErrorCode = "CONNECTIVITY"

	// ErrCodeServer: the remote tier answered with an error.
	ErrCodeServer ErrorCode = "SERVER"

	// ErrCodeAuthExpired: the cached bearer credential was rejected.
	ErrCodeAuthExpired ErrorCode = "AUTH_EXPIRED"

	// ErrCodeNoConnectivity: the client knows it is offline and did not try.
	ErrCodeNoConnectivity ErrorCode = "NO_CONNECTIVITY"

	// ErrCodeAlreadyInProgress: a push from this client is still running.
	ErrCodeAlreadyInProgress ErrorCode = "ALREADY_IN_PROGRESS"

	// ErrCodeUnauthorized: missing, malformed or rejected credentials.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// ErrCodeForbidden: the credential's role may not call the operation.
	ErrCodeForbidden ErrorCode = "FORBIDDEN"
)

// Error is the structured error returned by the core packages.
type Error struct {
	Code       ErrorCode
	Message    string
	EntityType EntityType
	EntityID   string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.EntityType != "" && e.EntityID != "" {
		msg = fmt.Sprintf("%s (%s=%s)", msg, e.EntityType, e.EntityID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsNotFound(err error) bool          { return CodeOf(err) == ErrCodeNotFound }
func IsValidation(err error) bool        { return CodeOf(err) == ErrCodeValidation }
func IsConflict(err error) bool          { return CodeOf(err) == ErrCodeConflict }
func IsStale(err error) bool             { return CodeOf(err) == ErrCodeStale }
func IsConnectivity(err error) bool      { return CodeOf(err) == ErrCodeConnectivity }
func IsServer(err error) bool            { return CodeOf(err) == ErrCodeServer }
func IsAuthExpired(err error) bool       { return CodeOf(err) == ErrCodeAuthExpired }
func IsNoConnectivity(err error) bool    { return CodeOf(err) == ErrCodeNoConnectivity }
func IsAlreadyInProgress(err error) bool { return CodeOf(err) == ErrCodeAlreadyInProgress }
func IsUnauthorized(err error) bool      { return CodeOf(err) == ErrCodeUnauthorized }
func IsForbidden(err error) bool         { return CodeOf(err) == ErrCodeForbidden }

// NotFound builds an ErrCodeNotFound error for an entity.
func NotFound(entity EntityType, id string) *Error {
	return &Error{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		EntityType: entity,
		EntityID:   id,
	}
}

// Validationf builds an ErrCodeValidation error.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ConflictError wraps the cause of a per-record apply failure.
func ConflictError(entity EntityType, id string, cause error) *Error {
	return &Error{
		Code:       ErrCodeConflict,
		Message:    "record could not be applied",
		EntityType: entity,
		EntityID:   id,
		Err:        cause,
	}
}

// Stale reports an incoming record older than the stored copy.
func Stale(entity EntityType, id string) *Error {
	return &Error{
		Code:       ErrCodeStale,
		Message:    "stored copy is newer",
		EntityType: entity,
		EntityID:   id,
	}
}

// Errorf builds an error with an arbitrary code.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to cause.
func Wrap(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}
