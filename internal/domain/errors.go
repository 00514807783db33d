package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a quiz session has not been initialized.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionCompleted is returned when an action arrives after the session ended.
	ErrSessionCompleted = errors.New("quiz session already completed")
	// ErrInvalidTransition is returned when an action is not valid in the current state.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrNoQuestions indicates neither the source nor the bundled set had questions.
	ErrNoQuestions = errors.New("no questions available yet")
	// ErrUnknownMode indicates an unsupported quiz mode.
	ErrUnknownMode = errors.New("unknown quiz mode")
	// ErrTopicRequired is returned when practice mode is requested without a topic.
	ErrTopicRequired = errors.New("topic id is required for practice mode")
	// ErrInvalidQuestion indicates a question failed validation.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrDailyChallengeDone indicates today's challenge was already completed.
	ErrDailyChallengeDone = errors.New("daily challenge already completed today")
	// ErrKeyNotFound is returned by key-value stores for absent keys.
	ErrKeyNotFound = errors.New("key not found")
	// ErrUnauthenticated is returned when an operation needs a signed-in user.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrSubmissionDeferred reports a result that was queued for retry.
	ErrSubmissionDeferred = errors.New("result submission failed, will retry")
)
