package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"validation", NewValidationError("payload", "must not be empty", nil), KindValidation},
		{"wrapped validation", fmt.Errorf("submit: %w", NewValidationError("payload", "bad", nil)), KindValidation},
		{"not found", fmt.Errorf("get: %w", ErrNotFound), KindNotFound},
		{"processing", NewProcessingError(errors.New("engine exploded")), KindProcessing},
		{"delivery", fmt.Errorf("notify: %w", ErrDelivery), KindDelivery},
		{"storage", fmt.Errorf("put: %w", ErrStorage), KindStorage},
		{"unclassified", errors.New("connection reset"), KindStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	cause := errors.New("specific")
	err := NewValidationError("callback.url", "must be absolute", cause)

	if err.Error() != "validation failed: callback.url must be absolute" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, ErrValidation) || !errors.Is(err, cause) {
		t.Errorf("expected error to match both ErrValidation and cause")
	}

	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "callback.url" {
		t.Errorf("expected ValidationError with field, got %#v", ve)
	}
}

func TestNewProcessingErrorNil(t *testing.T) {
	t.Parallel()

	if err := NewProcessingError(nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
