// Package scoring accumulates score and streak as answers arrive.
package scoring

import "aptitude-ace/internal/domain"

// Scorer is not safe for concurrent use; sessions guard it with their own lock.
type Scorer struct {
	rules      domain.Rules
	score      int
	streak     int
	bestStreak int
	correct    int
	incorrect  int
	log        []domain.PerformanceRecord
}

func New(rules domain.Rules) *Scorer {
	return &Scorer{rules: rules}
}

// SubmitAnswer records one answer and applies the mode's increment or penalty.
func (s *Scorer) SubmitAnswer(questionID string, correct bool, timeSpentSeconds int) domain.PerformanceRecord {
	if timeSpentSeconds < 0 {
		timeSpentSeconds = 0
	}
	record := domain.PerformanceRecord{
		QuestionID: questionID,
		Correct:    correct,
		TimeSpent:  timeSpentSeconds,
	}
	s.log = append(s.log, record)

	if correct {
		s.correct++
		s.score += s.rules.CorrectPoints
		s.streak++
		if s.streak > s.bestStreak {
			s.bestStreak = s.streak
		}
		return record
	}

	s.incorrect++
	s.score -= s.rules.WrongPenalty
	if s.score < 0 {
		s.score = 0
	}
	s.streak = 0
	return record
}

func (s *Scorer) Score() int      { return s.score }
func (s *Scorer) Streak() int     { return s.streak }
func (s *Scorer) BestStreak() int { return s.bestStreak }
func (s *Scorer) Correct() int    { return s.correct }
func (s *Scorer) Incorrect() int  { return s.incorrect }
func (s *Scorer) Answered() int   { return len(s.log) }

// Performance returns a copy of the performance log in answer order.
func (s *Scorer) Performance() []domain.PerformanceRecord {
	out := make([]domain.PerformanceRecord, len(s.log))
	copy(out, s.log)
	return out
}

// Percent converts the score into a completion percentage for total questions.
// Additive modes divide by the maximum attainable points.
func (s *Scorer) Percent(totalQuestions int) int {
	return Percent(s.score, totalQuestions, s.rules.CorrectPoints)
}

// Percent is round(score / (total * perQuestionMax) * 100), clamped to 0..100.
func Percent(score, totalQuestions, perQuestionMax int) int {
	if perQuestionMax <= 0 {
		perQuestionMax = 1
	}
	maxPoints := totalQuestions * perQuestionMax
	if maxPoints <= 0 {
		return 0
	}
	// Integer form of math.Round for non-negative values.
	pct := (score*200 + maxPoints) / (2 * maxPoints)
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}
