package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code classifies failures surfaced to the user.
type Code string

const (
	CodeValidation Code = "VALIDATION_ERROR"
	CodeConnection Code = "CONNECTION_ERROR"
	CodeProcessing Code = "PROCESSING_ERROR"
	CodeAPI        Code = "API_ERROR"
	CodeUnknown    Code = "UNKNOWN_ERROR"
)

var (
	ErrValidation = errors.New("validation error")
	ErrConnection = errors.New("connection error")
	ErrProcessing = errors.New("processing error")
	ErrAPI        = errors.New("api error")
	ErrUnknown    = errors.New("unknown error")
)

// Error is the classified error type every workflow component returns.
// Fields carries per-field validation messages keyed by field path.
type Error struct {
	Code    Code
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = string(e.Code)
	}
	if len(e.Fields) > 0 {
		msg = fmt.Sprintf("%s (%s)", msg, e.fieldSummary())
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the sentinel marker for the error code so callers can use
// errors.Is(err, services.ErrValidation).
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	return target == markerFor(e.Code)
}

// ErrorKind reports a lowercase classification used by status mapping.
func (e *Error) ErrorKind() string {
	switch e.Code {
	case CodeValidation:
		return "validation"
	case CodeConnection:
		return "connection"
	case CodeProcessing:
		return "processing"
	case CodeAPI:
		return "api"
	default:
		return "unknown"
	}
}

func (e *Error) fieldSummary() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", key, e.Fields[key]))
	}
	return strings.Join(parts, "; ")
}

// New builds a classified error.
func New(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Validation builds a VALIDATION_ERROR with optional field messages.
func Validation(message string, fields map[string]string) *Error {
	var copied map[string]string
	if len(fields) > 0 {
		copied = make(map[string]string, len(fields))
		for k, v := range fields {
			copied[k] = v
		}
	}
	return &Error{Code: CodeValidation, Message: message, Fields: copied}
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	return &Error{Code: codeFor(marker), Message: detail, Err: err}
}

// CodeOf returns the code carried by err, or CodeUnknown.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Code
	}
	for _, code := range []Code{CodeValidation, CodeConnection, CodeProcessing, CodeAPI} {
		if errors.Is(err, markerFor(code)) {
			return code
		}
	}
	return CodeUnknown
}

// StatusCoder is implemented by transport errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// Normalize maps any error into the taxonomy. Already classified errors pass
// through untouched; transport errors with a status become API errors;
// JSON decoding failures become validation errors.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	var coder StatusCoder
	if errors.As(err, &coder) {
		return &Error{Code: CodeAPI, Message: err.Error(), Err: err}
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &Error{Code: CodeValidation, Message: "Validation error: " + err.Error(), Err: err}
	}
	for _, code := range []Code{CodeValidation, CodeConnection, CodeProcessing, CodeAPI} {
		if errors.Is(err, markerFor(code)) {
			return &Error{Code: code, Message: err.Error(), Err: err}
		}
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		msg = "An unexpected error occurred"
	}
	return &Error{Code: CodeUnknown, Message: msg, Err: err}
}

func markerFor(code Code) error {
	switch code {
	case CodeValidation:
		return ErrValidation
	case CodeConnection:
		return ErrConnection
	case CodeProcessing:
		return ErrProcessing
	case CodeAPI:
		return ErrAPI
	default:
		return ErrUnknown
	}
}

func codeFor(marker error) Code {
	switch {
	case errors.Is(marker, ErrValidation):
		return CodeValidation
	case errors.Is(marker, ErrConnection):
		return CodeConnection
	case errors.Is(marker, ErrProcessing):
		return CodeProcessing
	case errors.Is(marker, ErrAPI):
		return CodeAPI
	default:
		return CodeUnknown
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
