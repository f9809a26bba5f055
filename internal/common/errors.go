package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes stored alongside failed jobs.
const (
	CodeConfig            = "CONFIG_ERROR"
	CodeSourceNotFound    = "SOURCE_NOT_FOUND"
	CodeDecode            = "DECODE_ERROR"
	CodeTransport         = "TRANSPORT_ERROR"
	CodeServiceRejected   = "SERVICE_REJECTED"
	CodeServiceFailed     = "SERVICE_FAILED"
	CodeUnknownStatus     = "UNKNOWN_STATUS"
	CodeTimeout           = "TIMEOUT"
	CodeMalformedResponse = "MALFORMED_RESPONSE"
)

// Recognition errors. Match with errors.Is.
var (
	ErrConfiguration          = errors.New("configuration error")
	ErrSourceNotFound         = errors.New("image source not found")
	ErrDecode                 = errors.New("image decode failed")
	ErrTransport              = errors.New("transport error")
	ErrServiceRejected        = errors.New("service rejected request")
	ErrMissingOperationHandle = fmt.Errorf("%w: missing Operation-Location header", ErrServiceRejected)
	ErrServiceFailed          = errors.New("remote operation failed")
	ErrUnknownStatus          = errors.New("unknown operation status")
	ErrTimeout                = errors.New("operation timed out")
	ErrMalformedResponse      = errors.New("malformed service response")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ConfigError reports a missing or invalid setting.
func ConfigError(message string) *AppError {
	return NewAppError(CodeConfig, message, ErrConfiguration)
}

// DecodeError keeps both ErrDecode and the original cause reachable through errors.Is.
func DecodeError(message string, cause error) *AppError {
	return NewAppError(CodeDecode, message, fmt.Errorf("%w: %w", ErrDecode, cause))
}

// TransportError wraps a network-level failure.
func TransportError(message string, cause error) *AppError {
	if cause == nil {
		return NewAppError(CodeTransport, message, ErrTransport)
	}
	return NewAppError(CodeTransport, message, fmt.Errorf("%w: %w", ErrTransport, cause))
}

// MalformedResponseError reports a payload that does not have the expected shape.
func MalformedResponseError(message string, cause error) *AppError {
	if cause == nil {
		return NewAppError(CodeMalformedResponse, message, ErrMalformedResponse)
	}
	return NewAppError(CodeMalformedResponse, message, fmt.Errorf("%w: %w", ErrMalformedResponse, cause))
}

// ServiceRejectedError is returned when the submission is not accepted.
// Code and Message come from the {"error":{...}} body; Body holds the raw text otherwise.
type ServiceRejectedError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *ServiceRejectedError) Error() string {
	if e.Code != "" || e.Message != "" {
		return fmt.Sprintf("service rejected request (HTTP %d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("service rejected request (HTTP %d): %s", e.StatusCode, e.Body)
}

func (e *ServiceRejectedError) Is(target error) bool { return target == ErrServiceRejected }

// ServiceFailedError is returned when the remote operation reports "failed".
type ServiceFailedError struct {
	Message string
}

func (e *ServiceFailedError) Error() string {
	return "remote operation failed: " + e.Message
}

func (e *ServiceFailedError) Is(target error) bool { return target == ErrServiceFailed }

// UnknownStatusError is returned for a status outside the known vocabulary.
type UnknownStatusError struct {
	Status string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown operation status %q", e.Status)
}

func (e *UnknownStatusError) Is(target error) bool { return target == ErrUnknownStatus }

// CodeOf returns the application error code for err, or "" when it is not a recognition error.
func CodeOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return CodeConfig
	case errors.Is(err, ErrSourceNotFound):
		return CodeSourceNotFound
	case errors.Is(err, ErrDecode):
		return CodeDecode
	case errors.Is(err, ErrTransport):
		return CodeTransport
	case errors.Is(err, ErrServiceRejected):
		return CodeServiceRejected
	case errors.Is(err, ErrServiceFailed):
		return CodeServiceFailed
	case errors.Is(err, ErrUnknownStatus):
		return CodeUnknownStatus
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, ErrMalformedResponse):
		return CodeMalformedResponse
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// GRPCCode maps err onto a gRPC status code.
func GRPCCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	var rejected *ServiceRejectedError
	if errors.As(err, &rejected) {
		switch rejected.StatusCode {
		case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
			return codes.InvalidArgument
		case http.StatusUnauthorized:
			return codes.Unauthenticated
		case http.StatusForbidden:
			return codes.PermissionDenied
		case http.StatusNotFound:
			return codes.NotFound
		case http.StatusTooManyRequests:
			return codes.ResourceExhausted
		}
		if rejected.StatusCode >= 500 {
			return codes.Unavailable
		}
		return codes.FailedPrecondition
	}
	switch CodeOf(err) {
	case CodeConfig:
		return codes.FailedPrecondition
	case CodeSourceNotFound:
		return codes.NotFound
	case CodeDecode:
		return codes.InvalidArgument
	case CodeTransport:
		return codes.Unavailable
	case CodeServiceRejected:
		return codes.FailedPrecondition
	case CodeServiceFailed:
		return codes.Aborted
	case CodeTimeout:
		return codes.DeadlineExceeded
	case CodeUnknownStatus, CodeMalformedResponse:
		return codes.Internal
	}
	if errors.Is(err, context.Canceled) {
		return codes.Canceled
	}
	return codes.Unknown
}

// ToStatus converts err into a gRPC status error carrying an ErrorInfo detail.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	st := status.New(GRPCCode(err), err.Error())
	reason := CodeOf(err)
	if reason == "" {
		return st.Err()
	}
	info := &errdetails.ErrorInfo{Reason: reason, Domain: "cardscan.vision"}
	var rejected *ServiceRejectedError
	if errors.As(err, &rejected) {
		info.Metadata = map[string]string{
			"http_status":  fmt.Sprintf("%d", rejected.StatusCode),
			"service_code": rejected.Code,
		}
	}
	if detailed, derr := st.WithDetails(info); derr == nil {
		return detailed.Err()
	}
	return st.Err()
}
