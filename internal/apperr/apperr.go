// Package apperr carries the error taxonomy shared by the daemon and its
// clients, and maps it to gRPC status codes at the API edge.
package apperr

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code string

const (
	CodeUnknown            Code = "UNKNOWN"
	CodeValidation         Code = "VALIDATION"
	CodeFailedPrecondition Code = "FAILED_PRECONDITION"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeUnavailable        Code = "UNAVAILABLE"
	CodeNotFound           Code = "NOT_FOUND"
	CodeInternal           Code = "INTERNAL"
)

// Error is a classified error. Field names the offending input for
// validation errors.
type Error struct {
	Code    Code
	Field   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error with the same code and field, so sentinels built
// with these constructors work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Field == e.Field && t.Message == e.Message
}

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Validation builds a field-level validation error.
func Validation(field, message string) error {
	return &Error{Code: CodeValidation, Field: field, Message: message}
}

func FailedPrecondition(message string) error {
	return New(CodeFailedPrecondition, message)
}

func Unavailable(message string, cause error) error {
	return Wrap(CodeUnavailable, message, cause)
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// FieldOf returns the offending field of a validation error, if any.
func FieldOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Field
	}
	return ""
}

// ToStatus converts err to a gRPC status error. Errors that already carry a
// status pass through.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var ae *Error
	if !errors.As(err, &ae) {
		return status.Error(codes.Internal, err.Error())
	}
	return status.Error(grpcCode(ae.Code), ae.Error())
}

// FromStatus rebuilds an *Error from a status returned by the daemon. The
// field survives the round trip because Error() prefixes it.
func FromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok || st.Code() == codes.OK {
		return err
	}
	code := CodeUnknown
	for c, g := range grpcCodes {
		if g == st.Code() {
			code = c
			break
		}
	}
	return &Error{Code: code, Message: st.Message()}
}

var grpcCodes = map[Code]codes.Code{
	CodeValidation:         codes.InvalidArgument,
	CodeFailedPrecondition: codes.FailedPrecondition,
	CodeUnauthenticated:    codes.Unauthenticated,
	CodeUnavailable:        codes.Unavailable,
	CodeNotFound:           codes.NotFound,
	CodeInternal:           codes.Internal,
}

func grpcCode(c Code) codes.Code {
	if g, ok := grpcCodes[c]; ok {
		return g
	}
	return codes.Unknown
}
