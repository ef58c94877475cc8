package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error surfaced by the service wraps exactly one of these.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyAnswered  = errors.New("already answered")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInternal         = errors.New("internal error")
)

var (
	// ErrSessionNotFound is returned when a quiz session does not exist.
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)
	// ErrQuestionNotFound indicates a question index or ID that is not part of the session.
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	// ErrParticipantNotFound is returned when a participant has not joined the session.
	ErrParticipantNotFound = fmt.Errorf("participant %w", ErrNotFound)
	// ErrQuestionSetNotFound indicates the question bank has no such set.
	ErrQuestionSetNotFound = fmt.Errorf("question set %w", ErrNotFound)

	ErrNotHost             = fmt.Errorf("only the host may do this: %w", ErrPermissionDenied)
	ErrNotParticipantOwner = fmt.Errorf("participant belongs to another user: %w", ErrPermissionDenied)

	ErrJoinClosed         = fmt.Errorf("session is not accepting participants: %w", ErrInvalidState)
	ErrNotActive          = fmt.Errorf("session is not active: %w", ErrInvalidState)
	ErrStaleQuestion      = fmt.Errorf("question is no longer current: %w", ErrInvalidState)
	ErrAnswerWindowClosed = fmt.Errorf("answer window closed: %w", ErrInvalidState)
	ErrNoQuestions        = fmt.Errorf("session has no questions: %w", ErrInvalidState)
	ErrQuestionsLocked    = fmt.Errorf("questions cannot change while a session is active: %w", ErrInvalidState)
	ErrResultsHidden      = fmt.Errorf("results are hidden until the question closes: %w", ErrInvalidState)

	ErrCodeExhausted = fmt.Errorf("could not allocate a unique join code: %w", ErrInternal)
)

// Code is the wire-level name of an error kind.
type Code string

const (
	CodeOK                 Code = "ok"
	CodeInvalidArgument    Code = "invalid-argument"
	CodeNotFound           Code = "not-found"
	CodeFailedPrecondition Code = "failed-precondition"
	CodeAlreadyExists      Code = "already-exists"
	CodePermissionDenied   Code = "permission-denied"
	CodeInternal           Code = "internal"
)

// CodeOf classifies err. Errors that wrap no known kind are internal.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidState):
		return CodeFailedPrecondition
	case errors.Is(err, ErrAlreadyAnswered):
		return CodeAlreadyExists
	case errors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied
	default:
		return CodeInternal
	}
}

// InvalidArgument wraps a validation message in the invalid-argument kind.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidArgument)
}
