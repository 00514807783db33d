package app

import "aptitude-ace/internal/domain"

// CanUnlockGrandTest reports whether every topic is unlocked, scored at least
// the pass threshold and has completed questions. An empty list never unlocks.
func CanUnlockGrandTest(topics []domain.TopicProgress) bool {
	if len(topics) == 0 {
		return false
	}
	for _, t := range topics {
		if !t.Unlocked || t.Score < domain.PassThreshold || t.CompletedQuestions <= 0 {
			return false
		}
	}
	return true
}
