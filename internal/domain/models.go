package domain

import (
	"fmt"
	"time"
)

// Question models a multiple-choice question. It is immutable once fetched.
type Question struct {
	ID            string   `json:"id"`
	TopicID       string   `json:"topicId"`
	Prompt        string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

// Validate checks the option set and that the correct answer is one of the options.
func (q Question) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidQuestion)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%w: %s has %d options", ErrInvalidQuestion, q.ID, len(q.Options))
	}
	for _, opt := range q.Options {
		if opt == q.CorrectAnswer {
			return nil
		}
	}
	return fmt.Errorf("%w: %s correct answer is not an option", ErrInvalidQuestion, q.ID)
}

// IsCorrect reports whether answer matches the correct option.
func (q Question) IsCorrect(answer string) bool {
	return answer != "" && answer == q.CorrectAnswer
}

// Topic is a practice topic as listed by the backend.
type Topic struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// TopicProgress is the per-topic progress a user profile carries.
type TopicProgress struct {
	TopicID            string `json:"topicId"`
	Unlocked           bool   `json:"unlocked"`
	Score              int    `json:"score"`
	CompletedQuestions int    `json:"completedQuestions"`
}

// Profile is the authenticated user's progress view.
type Profile struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Email             string          `json:"email"`
	Streak            int             `json:"streak"`
	GrandTestUnlocked bool            `json:"grandTestUnlocked"`
	Topics            []TopicProgress `json:"topics"`
}

// PerformanceRecord is one answered question. Records are append-only.
type PerformanceRecord struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"isCorrect"`
	TimeSpent  int    `json:"timeSpent"`
}

// AttemptStats is the persisted per-topic bookkeeping.
type AttemptStats struct {
	TopicID         string              `json:"topicId"`
	Attempts        int                 `json:"attempts"`
	AvgTime         int                 `json:"avgTime"`
	LastScore       int                 `json:"lastScore"`
	LastPerformance []PerformanceRecord `json:"lastPerformance"`
	LastStreak      int                 `json:"lastStreak"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// AttemptSummary is the pair returned after recording a completion.
type AttemptSummary struct {
	Attempts int `json:"attempts"`
	AvgTime  int `json:"avgTime"`
}

// PerformanceSnapshot is the last-performance view kept for analytics.
type PerformanceSnapshot struct {
	TopicID        string              `json:"topicId"`
	Score          int                 `json:"score"`
	TimeSpent      int                 `json:"timeSpent"`
	CorrectAnswers int                 `json:"correctAnswers"`
	TotalQuestions int                 `json:"totalQuestions"`
	Performance    []PerformanceRecord `json:"performance"`
	Streak         int                 `json:"streak"`
	RecordedAt     time.Time           `json:"recordedAt"`
}

// Result is the body posted to the results endpoints.
type Result struct {
	UserID             string              `json:"userId,omitempty"`
	TopicID            string              `json:"topicId,omitempty"`
	Score              int                 `json:"score"`
	TimeSpent          int                 `json:"timeSpent"`
	QuestionsAttempted int                 `json:"questionsAttempted"`
	CorrectAnswers     int                 `json:"correctAnswers"`
	Performance        []PerformanceRecord `json:"performance,omitempty"`
}

// PendingSubmission is a result queued after a failed remote submission.
type PendingSubmission struct {
	ID       string    `json:"id"`
	Mode     Mode      `json:"type"`
	Result   Result    `json:"result"`
	QueuedAt time.Time `json:"queuedAt"`
}

// CompletionReason records what ended a session.
type CompletionReason string

const (
	ReasonFinished CompletionReason = "finished"
	ReasonTimeout  CompletionReason = "timeout"
	ReasonManual   CompletionReason = "manual"
)

// Summary is the completion summary shown to the view and fed to submission.
type Summary struct {
	SessionID          string              `json:"sessionId"`
	Mode               Mode                `json:"mode"`
	TopicID            string              `json:"topicId,omitempty"`
	Score              int                 `json:"score"`
	Percent            int                 `json:"percent"`
	Passed             bool                `json:"passed"`
	TotalQuestions     int                 `json:"totalQuestions"`
	QuestionsAttempted int                 `json:"questionsAttempted"`
	CorrectAnswers     int                 `json:"correctAnswers"`
	TimeSpent          int                 `json:"timeSpent"`
	Streak             int                 `json:"streak"`
	BestStreak         int                 `json:"bestStreak"`
	Performance        []PerformanceRecord `json:"performance"`
	Reason             CompletionReason    `json:"reason"`
	CompletedAt        time.Time           `json:"completedAt"`
}

// Result converts the summary into the submission body.
func (s Summary) Result(userID string) Result {
	return Result{
		UserID:             userID,
		TopicID:            s.TopicID,
		Score:              s.Percent,
		TimeSpent:          s.TimeSpent,
		QuestionsAttempted: s.QuestionsAttempted,
		CorrectAnswers:     s.CorrectAnswers,
		Performance:        s.Performance,
	}
}

// Flashcard is an AI-generated study card.
type Flashcard struct {
	Front      string `json:"front"`
	Back       string `json:"back"`
	Topic      string `json:"topic"`
	Difficulty int    `json:"difficulty"` // 1=easy, 2=medium, 3=hard
}
