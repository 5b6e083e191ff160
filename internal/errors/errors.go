package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code codes.Code

const (
	CodeInvalidArgument  = Code(codes.InvalidArgument)
	CodeNotFound         = Code(codes.NotFound)
	CodeAlreadyExists    = Code(codes.AlreadyExists)
	CodePermissionDenied = Code(codes.PermissionDenied)
	CodeFailedPrecond    = Code(codes.FailedPrecondition)
	CodeDeadlineExceeded = Code(codes.DeadlineExceeded)
	CodeUnavailable      = Code(codes.Unavailable)
	CodeInternal         = Code(codes.Internal)
	CodeUnauthenticated  = Code(codes.Unauthenticated)
)

var code2http = map[Code]int{
	CodeInvalidArgument:  http.StatusBadRequest,
	CodeNotFound:         http.StatusNotFound,
	CodeAlreadyExists:    http.StatusConflict,
	CodePermissionDenied: http.StatusForbidden,
	CodeFailedPrecond:    http.StatusPreconditionFailed,
	CodeDeadlineExceeded: http.StatusGatewayTimeout,
	CodeUnavailable:      http.StatusServiceUnavailable,
	CodeInternal:         http.StatusInternalServerError,
	CodeUnauthenticated:  http.StatusUnauthorized,
}

var http2code = map[int]Code{
	http.StatusBadRequest:          CodeInvalidArgument,
	http.StatusNotFound:            CodeNotFound,
	http.StatusConflict:            CodeAlreadyExists,
	http.StatusForbidden:           CodePermissionDenied,
	http.StatusPreconditionFailed:  CodeFailedPrecond,
	http.StatusGatewayTimeout:      CodeDeadlineExceeded,
	http.StatusServiceUnavailable:  CodeUnavailable,
	http.StatusInternalServerError: CodeInternal,
	http.StatusUnauthorized:        CodeUnauthenticated,
}

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) GRPCStatus() *status.Status {
	return status.New(codes.Code(e.Code), e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

// FromHTTPStatus maps a gateway response status to a coded error. Statuses
// without a dedicated mapping collapse to Internal.
func FromHTTPStatus(statusCode int, message string) *Error {
	code, ok := http2code[statusCode]
	if !ok {
		code = CodeInternal
	}

	opts := []Option{}
	if message != "" {
		opts = append(opts, WithMessagef("%s", message))
	}

	return New(code, opts...)
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}
