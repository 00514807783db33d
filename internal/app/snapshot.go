package app

import (
	"aptitude-ace/internal/domain"
)

// QuestionView is a question as shown before it is answered.
type QuestionView struct {
	ID      string   `json:"id"`
	TopicID string   `json:"topicId"`
	Prompt  string   `json:"question"`
	Options []string `json:"options"`
}

// Snapshot is what a view renders: state, progress, score and time.
type Snapshot struct {
	SessionID        string             `json:"sessionId"`
	Mode             domain.Mode        `json:"mode"`
	TopicID          string             `json:"topicId,omitempty"`
	State            string             `json:"state"`
	Index            int                `json:"index"`
	Total            int                `json:"total"`
	Question         *QuestionView      `json:"question,omitempty"`
	Answer           *AnswerOutcome     `json:"answer,omitempty"`
	Score            int                `json:"score"`
	Streak           int                `json:"streak"`
	ElapsedSeconds   int                `json:"elapsedSeconds"`
	RemainingSeconds *int               `json:"remainingSeconds,omitempty"`
	Fallback         bool               `json:"fallback,omitempty"`
	Message          string             `json:"message,omitempty"`
	Summary          *domain.Summary    `json:"summary,omitempty"`
	Submission       *SubmissionOutcome `json:"submission,omitempty"`
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:  s.id,
		Mode:       s.mode,
		TopicID:    s.topicID,
		State:      s.state.Name(),
		Index:      s.index,
		Total:      len(s.questions),
		Score:      s.scorer.Score(),
		Streak:     s.scorer.Streak(),
		Fallback:   s.fallback,
		Submission: s.submission,
	}

	if s.rules.Timed() {
		remaining := 0
		if _, ok := s.state.(Loading); ok {
			remaining = int(s.rules.TimeLimit.Seconds())
		} else if !IsTerminal(s.state) {
			remaining = s.timer.Seconds()
		}
		snap.RemainingSeconds = &remaining
		snap.ElapsedSeconds = s.elapsedLocked()
	} else if !s.startedAt.IsZero() {
		snap.ElapsedSeconds = s.timer.Seconds()
	}

	switch st := s.state.(type) {
	case InProgress:
		snap.Question = viewOf(s.questions[st.Index])
	case AwaitingAdvance:
		snap.Question = viewOf(s.questions[st.Index])
		outcome := st.Outcome
		snap.Answer = &outcome
	case Completed:
		summary := st.Summary
		snap.Summary = &summary
		snap.ElapsedSeconds = summary.TimeSpent
	case Empty:
		snap.Message = st.Message
	}
	return snap
}

func viewOf(q domain.Question) *QuestionView {
	return &QuestionView{
		ID:      q.ID,
		TopicID: q.TopicID,
		Prompt:  q.Prompt,
		Options: append([]string(nil), q.Options...),
	}
}

// Subscribe returns a channel of snapshots, primed with the current one.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	s.mu.Lock()
	if s.closed {
		ch <- s.snapshotLocked()
		close(ch)
		s.mu.Unlock()
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked()
}

func (s *Session) broadcastLocked() {
	if len(s.subscribers) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Slow views only need the latest snapshot.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
