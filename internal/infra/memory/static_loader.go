package memory

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"aptitude-ace/internal/domain"
)

//go:embed defaults.json
var defaultsJSON []byte

// StaticQuestionLoader serves questions from an in-memory bank. Practice
// sessions get their topic's questions; daily and grand sessions draw from all.
type StaticQuestionLoader struct {
	questions []domain.Question
}

func NewStaticQuestionLoader(questions []domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{questions: questions}
}

// NewDefaultQuestionLoader returns the loader over the bundled question set.
func NewDefaultQuestionLoader() *StaticQuestionLoader {
	return NewStaticQuestionLoader(DefaultQuestions())
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context, mode domain.Mode, topicID string) ([]domain.Question, error) {
	if mode != domain.ModePractice {
		return append([]domain.Question(nil), l.questions...), nil
	}
	var out []domain.Question
	for _, q := range l.questions {
		if q.TopicID == topicID {
			out = append(out, q)
		}
	}
	return out, nil
}

// Topics lists distinct topic ids in bank order.
func (l *StaticQuestionLoader) Topics() []string {
	seen := make(map[string]struct{})
	var topics []string
	for _, q := range l.questions {
		if _, ok := seen[q.TopicID]; ok {
			continue
		}
		seen[q.TopicID] = struct{}{}
		topics = append(topics, q.TopicID)
	}
	return topics
}

// DefaultQuestions decodes the bundled question set shipped with the binary.
func DefaultQuestions() []domain.Question {
	var questions []domain.Question
	if err := json.Unmarshal(defaultsJSON, &questions); err != nil {
		panic(fmt.Sprintf("bundled questions are malformed: %v", err))
	}
	return questions
}
