package errors_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesync/internal/errors"
)

func TestFromHTTPStatus(t *testing.T) {
	tests := map[string]struct {
		status   int
		wantCode errors.Code
	}{
		"401 maps to unauthenticated":    {http.StatusUnauthorized, errors.CodeUnauthenticated},
		"403 maps to permission denied":  {http.StatusForbidden, errors.CodePermissionDenied},
		"404 maps to not found":          {http.StatusNotFound, errors.CodeNotFound},
		"400 maps to invalid argument":   {http.StatusBadRequest, errors.CodeInvalidArgument},
		"409 maps to already exists":     {http.StatusConflict, errors.CodeAlreadyExists},
		"503 maps to unavailable":        {http.StatusServiceUnavailable, errors.CodeUnavailable},
		"unknown status maps to internal": {http.StatusTeapot, errors.CodeInternal},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			e := errors.FromHTTPStatus(tt.status, "boom")
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Equal(t, "boom", e.Message)
		})
	}
}

func TestConvert(t *testing.T) {
	cause := fmt.Errorf("broken pipe")

	e := errors.Convert(fmt.Errorf("wrap: %w", errors.New(errors.CodeNotFound, errors.WithCause(cause))))
	require.Equal(t, errors.CodeNotFound, e.Code)
	assert.Equal(t, cause, e.Unwrap())

	e = errors.Convert(cause)
	assert.Equal(t, errors.CodeInternal, e.Code)
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("call failed: %w", errors.New(errors.CodeUnauthenticated))
	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))
	assert.False(t, errors.Is(err, errors.CodeNotFound))
	assert.False(t, errors.Is(fmt.Errorf("plain"), errors.CodeInternal))
}

func TestHTTPStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, errors.New(errors.CodePermissionDenied).HTTPStatusCode())
	assert.Equal(t, http.StatusInternalServerError, errors.New(errors.Code(9999)).HTTPStatusCode())
}
