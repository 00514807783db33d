package api

import (
	"encoding/json"
	"fmt"

	"aptitude-ace/internal/domain"
)

// The backend is Mongo-backed: ids may arrive as "_id" and lists may be bare
// arrays or wrapped in an object.

type topicWire struct {
	ID          string `json:"id"`
	MongoID     string `json:"_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (t topicWire) domain() domain.Topic {
	id := t.ID
	if id == "" {
		id = t.MongoID
	}
	return domain.Topic{ID: id, Name: t.Name, Description: t.Description}
}

type questionWire struct {
	ID            string   `json:"id"`
	MongoID       string   `json:"_id"`
	TopicID       string   `json:"topicId"`
	Topic         string   `json:"topic"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

func (q questionWire) domain(topicID string) domain.Question {
	id := q.ID
	if id == "" {
		id = q.MongoID
	}
	topic := q.TopicID
	if topic == "" {
		topic = q.Topic
	}
	if topic == "" {
		topic = topicID
	}
	return domain.Question{
		ID:            id,
		TopicID:       topic,
		Prompt:        q.Question,
		Options:       q.Options,
		CorrectAnswer: q.CorrectAnswer,
		Explanation:   q.Explanation,
	}
}

func decodeQuestions(raw json.RawMessage) ([]questionWire, error) {
	var list []questionWire
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Questions []questionWire `json:"questions"`
		Data      []questionWire `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("unexpected question payload: %w", err)
	}
	if wrapped.Questions != nil {
		return wrapped.Questions, nil
	}
	return wrapped.Data, nil
}

type progressWire struct {
	TopicID            string `json:"topicId"`
	Topic              string `json:"topic"`
	Unlocked           bool   `json:"unlocked"`
	Score              int    `json:"score"`
	CompletedQuestions int    `json:"completedQuestions"`
}

type profileWire struct {
	ID                string         `json:"id"`
	MongoID           string         `json:"_id"`
	Name              string         `json:"name"`
	Email             string         `json:"email"`
	Streak            int            `json:"streak"`
	GrandTestUnlocked bool           `json:"grandTestUnlocked"`
	Topics            []progressWire `json:"topics"`
	Progress          []progressWire `json:"progress"`
}

func (p profileWire) domain() domain.Profile {
	id := p.ID
	if id == "" {
		id = p.MongoID
	}
	progress := p.Topics
	if len(progress) == 0 {
		progress = p.Progress
	}
	topics := make([]domain.TopicProgress, 0, len(progress))
	for _, t := range progress {
		topicID := t.TopicID
		if topicID == "" {
			topicID = t.Topic
		}
		topics = append(topics, domain.TopicProgress{
			TopicID:            topicID,
			Unlocked:           t.Unlocked,
			Score:              t.Score,
			CompletedQuestions: t.CompletedQuestions,
		})
	}
	return domain.Profile{
		ID:                id,
		Name:              p.Name,
		Email:             p.Email,
		Streak:            p.Streak,
		GrandTestUnlocked: p.GrandTestUnlocked,
		Topics:            topics,
	}
}
