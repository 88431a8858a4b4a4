package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCode(t *testing.T) {
	cases := map[string]error{
		"NotFound":          fmt.Errorf("lookup: %w", ErrSessionNotFound),
		"InvalidTransition": fmt.Errorf("advance: %w", ErrInvalidTransition),
		"GenerationError":   &GenerationError{Cause: errors.New("short")},
		"MalformedCommand":  fmt.Errorf("bad: %w", ErrMalformedCommand),
		"StaleQuestion":     fmt.Errorf("submit: %w", Rejected(ReasonStaleQuestion)),
		"Internal":          errors.New("boom"),
	}
	for want, err := range cases {
		if got := ErrorCode(err); got != want {
			t.Fatalf("ErrorCode(%v) = %s, want %s", err, got, want)
		}
	}
}

func TestTypedErrorsMatchRoots(t *testing.T) {
	if !errors.Is(Rejected(ReasonDuplicateResponse), ErrRejectedResponse) {
		t.Fatalf("rejection should match ErrRejectedResponse")
	}
	cause := errors.New("upstream")
	gen := &GenerationError{Cause: cause}
	if !errors.Is(gen, ErrGeneration) || !errors.Is(gen, cause) {
		t.Fatalf("generation error should match root and cause")
	}
	if !errors.Is(ErrParticipantNotFound, ErrNotFound) {
		t.Fatalf("participant not found should match ErrNotFound")
	}
}

func TestErrorEvent(t *testing.T) {
	evt := ErrorEvent(Rejected(ReasonInvalidOption))
	payload, ok := evt.Payload.(ErrorPayload)
	if evt.Type != EvtError || !ok || payload.Code != "InvalidOption" {
		t.Fatalf("unexpected error event %+v", evt)
	}
}
