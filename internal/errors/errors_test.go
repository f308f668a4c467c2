package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	err := NewValidationError("no parameters to query", nil)
	if got := err.Error(); got != "validation: no parameters to query" {
		t.Errorf("Error() = %q", got)
	}

	cause := errors.New("lookup failed")
	wrapped := NewConnectionError("connection importer@server failed", cause)
	want := "connection: connection importer@server failed (caused by: lookup failed)"
	if got := wrapped.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("wrapped error does not unwrap to its cause")
	}
}

func TestIsType(t *testing.T) {
	err := NewTransportLostError("session expired", nil)
	if !IsType(err, ErrorTypeTransportLost) {
		t.Error("IsType missed matching type")
	}
	if IsType(err, ErrorTypeValidation) {
		t.Error("IsType matched wrong type")
	}
	if IsType(errors.New("plain"), ErrorTypeValidation) {
		t.Error("IsType matched plain error")
	}
}

func TestGetStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NewValidationError("bad", nil), http.StatusBadRequest},
		{NewNotFoundError("missing", nil), http.StatusNotFound},
		{NewConnectionError("down", nil), http.StatusBadGateway},
		{NewComputationError("nan", nil), http.StatusUnprocessableEntity},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := GetStatusCode(tt.err); got != tt.want {
			t.Errorf("GetStatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
