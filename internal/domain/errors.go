package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the root of every unknown-id condition.
	ErrNotFound = errors.New("not found")
	// ErrSessionNotFound is returned for an unknown session id or join code.
	ErrSessionNotFound = fmt.Errorf("quiz session %w", ErrNotFound)
	// ErrQuestionNotFound indicates a submitted question id is invalid.
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	// ErrParticipantNotFound is returned when a participant id is unknown.
	ErrParticipantNotFound = fmt.Errorf("participant %w", ErrNotFound)

	// ErrInvalidTransition is returned when a command does not fit the session phase.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrRejectedResponse is the root of every submission guard failure.
	ErrRejectedResponse = errors.New("response rejected")
	// ErrGeneration is the root of generator failures.
	ErrGeneration = errors.New("quiz generation failed")
	// ErrMalformedCommand is returned for inbound messages that fail validation.
	ErrMalformedCommand = errors.New("malformed command")

	// ErrRoomCodeTaken is returned by stores when a join code collides with a live session.
	ErrRoomCodeTaken = errors.New("room code already in use")
	// ErrDuplicateResponse is returned by stores when a (participant, question) pair already has a response.
	ErrDuplicateResponse = errors.New("response already recorded")
)

// RejectReason explains why a submission was not accepted.
type RejectReason string

const (
	ReasonSessionNotActive   RejectReason = "SessionNotActive"
	ReasonStaleQuestion      RejectReason = "StaleQuestion"
	ReasonUnknownParticipant RejectReason = "UnknownParticipant"
	ReasonDuplicateResponse  RejectReason = "DuplicateResponse"
	ReasonInvalidOption      RejectReason = "InvalidOption"
)

// RejectedResponseError carries the reason a submission was refused.
type RejectedResponseError struct {
	Reason RejectReason
}

func (e *RejectedResponseError) Error() string {
	return "response rejected: " + string(e.Reason)
}

func (e *RejectedResponseError) Is(target error) bool {
	return target == ErrRejectedResponse
}

// Rejected builds a RejectedResponseError.
func Rejected(reason RejectReason) error {
	return &RejectedResponseError{Reason: reason}
}

// GenerationError wraps what went wrong with generator output.
type GenerationError struct {
	Cause error
}

func (e *GenerationError) Error() string {
	if e.Cause == nil {
		return ErrGeneration.Error()
	}
	return ErrGeneration.Error() + ": " + e.Cause.Error()
}

func (e *GenerationError) Unwrap() error { return e.Cause }

func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}

// ErrorCode maps an error onto the reason code sent to clients.
func ErrorCode(err error) string {
	var rejected *RejectedResponseError
	switch {
	case errors.As(err, &rejected):
		return string(rejected.Reason)
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, ErrGeneration):
		return "GenerationError"
	case errors.Is(err, ErrMalformedCommand):
		return "MalformedCommand"
	default:
		return "Internal"
	}
}
