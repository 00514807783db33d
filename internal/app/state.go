package app

import "aptitude-ace/internal/domain"

// State is the session state. Exactly one of the types below; a completed
// session cannot be completed again because Completed is terminal.
type State interface {
	Name() string
	terminal() bool
}

// Loading is the initial state while questions are fetched.
type Loading struct{}

// InProgress waits for an answer to the question at Index.
type InProgress struct {
	Index int
}

// AwaitingAdvance shows the outcome of the answer at Index until the view advances.
type AwaitingAdvance struct {
	Index   int
	Outcome AnswerOutcome
}

// Completed is terminal and carries the final summary.
type Completed struct {
	Summary domain.Summary
}

// Empty is terminal: no questions were available.
type Empty struct {
	Message string
}

func (Loading) Name() string         { return "loading" }
func (InProgress) Name() string      { return "in_progress" }
func (AwaitingAdvance) Name() string { return "awaiting_advance" }
func (Completed) Name() string       { return "completed" }
func (Empty) Name() string           { return "empty" }

func (Loading) terminal() bool         { return false }
func (InProgress) terminal() bool      { return false }
func (AwaitingAdvance) terminal() bool { return false }
func (Completed) terminal() bool       { return true }
func (Empty) terminal() bool           { return true }

// IsTerminal reports whether no further transitions are possible.
func IsTerminal(s State) bool { return s.terminal() }

// AnswerOutcome is what the view shows between answering and advancing.
type AnswerOutcome struct {
	QuestionID    string `json:"questionId"`
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correctAnswer"`
	Explanation   string `json:"explanation"`
	TimeSpent     int    `json:"timeSpent"`
	Score         int    `json:"score"`
	Streak        int    `json:"streak"`
}
