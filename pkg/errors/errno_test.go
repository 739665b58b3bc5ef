package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestMakeCode(t *testing.T) {
	tests := []struct {
		service  int
		category int
		sequence int
		expected int
	}{
		{0, 0, 0, 0},
		{0, 1, 1, 1001},
		{0, 4, 0, 4000},
		{10, 1, 1, 1001001},
		{20, 4, 0, 2004000},
		{90, 6, 0, 9006000},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%d_%d", tt.service, tt.category, tt.sequence), func(t *testing.T) {
			got := MakeCode(tt.service, tt.category, tt.sequence)
			if got != tt.expected {
				t.Errorf("MakeCode(%d, %d, %d) = %d, want %d",
					tt.service, tt.category, tt.sequence, got, tt.expected)
			}
		})
	}
}

func TestParseCode(t *testing.T) {
	tests := []struct {
		code             int
		expectedService  int
		expectedCategory int
		expectedSequence int
	}{
		{0, 0, 0, 0},
		{1001, 0, 1, 1},
		{1001001, 10, 1, 1},
		{2004000, 20, 4, 0},
		{9006000, 90, 6, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.code), func(t *testing.T) {
			service, category, sequence := ParseCode(tt.code)
			if service != tt.expectedService || category != tt.expectedCategory || sequence != tt.expectedSequence {
				t.Errorf("ParseCode(%d) = (%d, %d, %d), want (%d, %d, %d)",
					tt.code, service, category, sequence,
					tt.expectedService, tt.expectedCategory, tt.expectedSequence)
			}
		})
	}
}

func TestIsClientError(t *testing.T) {
	if !IsClientError(ErrInvalidInput.Code) {
		t.Error("IsClientError should be true for request errors")
	}
	if !IsClientError(ErrRateLimited.Code) {
		t.Error("IsClientError should be true for rate limit errors")
	}
	if IsClientError(ErrInternal.Code) {
		t.Error("IsClientError should be false for internal errors")
	}
}

func TestIsServerError(t *testing.T) {
	if !IsServerError(ErrInternal.Code) {
		t.Error("IsServerError should be true for internal errors")
	}
	if !IsServerError(ErrInvalidConfiguration.Code) {
		t.Error("IsServerError should be true for config errors")
	}
	if IsServerError(ErrInvalidInput.Code) {
		t.Error("IsServerError should be false for request errors")
	}
}

func TestErrnoError(t *testing.T) {
	err := ErrInvalidInput
	expected := "errno 1001: Invalid input"
	if got := err.Error(); got != expected {
		t.Errorf("Error() = %q, want %q", got, expected)
	}
}

func TestErrnoErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := ErrInvalidInput.WithCause(cause)

	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the cause")
	}

	if err.Code != ErrInvalidInput.Code {
		t.Error("WithCause should preserve the code")
	}
}

func TestErrnoWithMessage(t *testing.T) {
	err := ErrInvalidInput.WithMessage("custom message")

	if err.MessageEN != "custom message" {
		t.Errorf("WithMessage should set MessageEN, got %q", err.MessageEN)
	}

	if err.Code != ErrInvalidInput.Code {
		t.Error("WithMessage should preserve the code")
	}
}

func TestErrnoWithMessagef(t *testing.T) {
	err := ErrInvalidInput.WithMessagef("document %s is empty", "doc-1")
	expected := "document doc-1 is empty"

	if err.MessageEN != expected {
		t.Errorf("WithMessagef should set MessageEN to %q, got %q", expected, err.MessageEN)
	}
}

func TestErrnoMessage(t *testing.T) {
	err := &Errno{
		Code:      1001,
		MessageEN: "English message",
		MessageZH: "中文消息",
	}

	if got := err.Message("en"); got != "English message" {
		t.Errorf("Message(en) = %q, want %q", got, "English message")
	}

	if got := err.Message("zh"); got != "中文消息" {
		t.Errorf("Message(zh) = %q, want %q", got, "中文消息")
	}
}

func TestErrnoHTTPStatus(t *testing.T) {
	if got := ErrInvalidInput.HTTPStatus(); got != http.StatusBadRequest {
		t.Errorf("HTTPStatus() = %d, want %d", got, http.StatusBadRequest)
	}

	if got := ErrDocumentNotFound.HTTPStatus(); got != http.StatusNotFound {
		t.Errorf("HTTPStatus() = %d, want %d", got, http.StatusNotFound)
	}

	if got := ErrRateLimited.HTTPStatus(); got != http.StatusTooManyRequests {
		t.Errorf("HTTPStatus() = %d, want %d", got, http.StatusTooManyRequests)
	}
}

func TestErrnoIs(t *testing.T) {
	err1 := ErrInvalidInput.WithMessage("custom")

	if !err1.Is(ErrInvalidInput) {
		t.Error("Is() should return true for same code")
	}

	if err1.Is(ErrNotFound) {
		t.Error("Is() should return false for different code")
	}
}

func TestIsCode(t *testing.T) {
	err := ErrInvalidInput.WithMessage("test")

	if !IsCode(err, ErrInvalidInput.Code) {
		t.Error("IsCode should return true")
	}

	if IsCode(err, ErrNotFound.Code) {
		t.Error("IsCode should return false")
	}
}

func TestIsCodeWrapped(t *testing.T) {
	err := fmt.Errorf("ingest doc-1: %w", ErrRateLimited)

	if !IsCode(err, ErrRateLimited.Code) {
		t.Error("IsCode should see through fmt.Errorf wrapping")
	}
}

func TestGetCode(t *testing.T) {
	err := ErrInvalidInput.WithMessage("test")

	if got := GetCode(err); got != ErrInvalidInput.Code {
		t.Errorf("GetCode() = %d, want %d", got, ErrInvalidInput.Code)
	}

	if got := GetCode(fmt.Errorf("plain error")); got != -1 {
		t.Errorf("GetCode() for plain error = %d, want -1", got)
	}
}

func TestFromError(t *testing.T) {
	if got := FromError(nil); got != nil {
		t.Error("FromError(nil) should return nil")
	}

	err := ErrInvalidInput.WithMessage("test")
	if got := FromError(err); got != err {
		t.Error("FromError should return Errno as-is")
	}

	plainErr := fmt.Errorf("plain error")
	result := FromError(plainErr)
	if result.Code != ErrInternal.Code {
		t.Errorf("FromError(plain) should wrap as ErrInternal, got code %d", result.Code)
	}
	if result.Unwrap() != plainErr {
		t.Error("FromError should preserve the cause")
	}
}

func TestLookup(t *testing.T) {
	if e, ok := Lookup(ErrInvalidInput.Code); !ok || e != ErrInvalidInput {
		t.Error("Lookup should find registered errno")
	}

	if _, ok := Lookup(9999999); ok {
		t.Error("Lookup should return false for non-existing code")
	}
}

func TestRegistrySize(t *testing.T) {
	if RegistrySize() == 0 {
		t.Error("RegistrySize should not be 0 after init")
	}
}
