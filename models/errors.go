package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)
	ErrQuestNotFound   = fmt.Errorf("quest %w", ErrNotFound)
	ErrAlreadyExists   = errors.New("already exists")

	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidGrade       = fmt.Errorf("%w: unknown grade", ErrInvalidInput)
	ErrInvalidGradeSystem = fmt.Errorf("%w: unknown grade system", ErrInvalidInput)
	ErrInvalidLayer       = fmt.Errorf("%w: layer out of range", ErrInvalidInput)

	// ErrPolicyRejected is matched by every *PolicyError.
	ErrPolicyRejected = errors.New("rejected by progression rules")
)

// Machine-readable policy rejection reasons.
const (
	ReasonDailyCompletionLimit     = "daily_completion_limit"
	ReasonQuestExpired             = "quest_expired"
	ReasonQuestNotActive           = "quest_not_active"
	ReasonLayerQuestNotDiscardable = "layer_quest_not_discardable"
	ReasonRequirementsUnmet        = "requirements_unmet"
	ReasonSessionClosed            = "session_closed"
	ReasonInvalidSessionTransition = "invalid_session_transition"
)

// PolicyError is returned when a request is well-formed but the rules forbid it.
type PolicyError struct {
	Reason  string
	Message string
}

func (e *PolicyError) Error() string {
	if e.Message == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *PolicyError) Is(target error) bool {
	return target == ErrPolicyRejected
}

func NewPolicyError(reason, message string) *PolicyError {
	return &PolicyError{Reason: reason, Message: message}
}

// PolicyReason extracts the reason from err, if it is a policy rejection.
func PolicyReason(err error) (string, bool) {
	var pe *PolicyError
	if errors.As(err, &pe) {
		return pe.Reason, true
	}
	return "", false
}
