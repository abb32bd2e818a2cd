// Package cloudkit contains the core domain types and capability interfaces
// shared by every subsystem: the request engine, the auth state machine, the
// provider adapters, and the VFS layer. Concrete implementations live in
// subpackages; this package only carries value types and contracts.
package cloudkit

import "fmt"

// Code is the stable numeric contract of an [Error]. Positive values below
// 600 reuse HTTP status semantics; negative values are internal sentinels.
type Code int

// Sentinel codes reused across providers. HTTP status codes (200, 401, 404,
// 429, 500, ...) are valid Code values too and are not enumerated here.
const (
	CodeUnknown                  Code = 0
	CodeAborted                  Code = -1
	CodeFailure                  Code = -2
	CodeNotFound                 Code = -3
	CodeUnauthorized             Code = -4
	CodeBandwidth                Code = -5
	CodeInvalidCredentials       Code = -6
	CodeInvalidAuthorizationCode Code = -7
	CodeNodeNotFound             Code = -8
	CodeInvalidRange             Code = -9
	CodeInvalidArgument          Code = -10
	CodeInternal                 Code = -11
	CodeExists                   Code = -12
	CodeForbidden                Code = 403
)

// Kind buckets a Code into the taxonomy from the error model: transport,
// http, auth, semantic, resource, cancelled, internal.
type Kind string

const (
	KindTransport Kind = "transport"
	KindHTTP      Kind = "http"
	KindAuth      Kind = "auth"
	KindSemantic  Kind = "semantic"
	KindResource  Kind = "resource"
	KindCancelled Kind = "cancelled"
	KindInternal  Kind = "internal"
)

// Error is the sole failure value used across public API boundaries. The
// engine never rethrows: panics on worker goroutines are recovered and
// folded into an Error with CodeInternal.
type Error struct {
	Code        Code
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cloudkit: [%d] %s", e.Code, e.Description)
}

// NewError builds an Error with the given code and description.
func NewError(code Code, description string) *Error {
	return &Error{Code: code, Description: description}
}

// Kind classifies the error's Code into one of the taxonomy buckets.
func (e *Error) Kind() Kind {
	switch {
	case e.Code == CodeAborted:
		return KindCancelled
	case e.Code == CodeInternal || e.Code == CodeFailure:
		return KindInternal
	case e.Code == CodeUnauthorized || e.Code == CodeInvalidCredentials ||
		e.Code == CodeInvalidAuthorizationCode || int(e.Code) == 401 || int(e.Code) == 403:
		return KindAuth
	case e.Code == CodeNotFound || e.Code == CodeNodeNotFound ||
		e.Code == CodeInvalidArgument || e.Code == CodeInvalidRange || e.Code == CodeExists:
		return KindSemantic
	case e.Code == CodeBandwidth || int(e.Code) == 429:
		return KindResource
	case int(e.Code) >= 100 && int(e.Code) < 600:
		return KindHTTP
	default:
		return KindInternal
	}
}

// Retryable reports whether the failure is the "try_again" kind the engine's
// backoff policy should retry: rate limiting or a 5xx response.
func (e *Error) Retryable() bool {
	c := int(e.Code)
	return c == 429 || (c >= 500 && c < 600)
}

// EitherError is the sum type every user-facing operation resolves to:
// exactly one of Value or Err is set.
type EitherError[T any] struct {
	Value T
	Err   *Error
}

// Ok wraps a successful value.
func Ok[T any](v T) EitherError[T] {
	return EitherError[T]{Value: v}
}

// Err wraps a failure.
func Err[T any](e *Error) EitherError[T] {
	return EitherError[T]{Err: e}
}

// IsOk reports whether the result carries a value rather than an error.
func (r EitherError[T]) IsOk() bool {
	return r.Err == nil
}
