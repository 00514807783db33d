// Package flashcards turns a topic into study cards with one Gemini call.
package flashcards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"aptitude-ace/internal/domain"
)

const (
	DefaultModel = "gemini-1.5-flash"
	DefaultCount = 10
	maxCount     = 30
)

var ErrEmptyResponse = errors.New("no flashcards in model response")

// Request describes the cards to generate.
type Request struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
	Notes string `json:"notes,omitempty"`
}

// Generator wraps a Gemini model.
type Generator struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGenerator(ctx context.Context, apiKey, modelName string) (*Generator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is not configured")
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.4)
	model.ResponseMIMEType = "application/json"
	return &Generator{client: client, model: model}, nil
}

func (g *Generator) Close() error {
	return g.client.Close()
}

func (g *Generator) Generate(ctx context.Context, req Request) ([]domain.Flashcard, error) {
	req = normalize(req)
	if req.Topic == "" {
		return nil, domain.ErrTopicRequired
	}
	resp, err := g.model.GenerateContent(ctx, genai.Text(buildPrompt(req)))
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	cards, err := parseCards(extractText(resp), req.Topic)
	if err != nil {
		return nil, err
	}
	if len(cards) > req.Count {
		cards = cards[:req.Count]
	}
	return cards, nil
}

func normalize(req Request) Request {
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Count <= 0 {
		req.Count = DefaultCount
	}
	if req.Count > maxCount {
		req.Count = maxCount
	}
	return req
}

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create %d flashcards for practising the aptitude topic %q.\n", req.Count, req.Topic)
	b.WriteString("Each card tests one formula, shortcut or concept used in quantitative aptitude tests.\n")
	if req.Notes != "" {
		b.WriteString("Focus on the following notes:\n")
		b.WriteString(req.Notes)
		b.WriteString("\n")
	}
	b.WriteString("Respond with only a JSON array. Each element has the fields ")
	b.WriteString(`"front" (question or term), "back" (answer with a short worked explanation), `)
	b.WriteString(`"topic" (string) and "difficulty" (1 easy, 2 medium, 3 hard).`)
	return b.String()
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}
	return text.String()
}

type cardJSON struct {
	Front      string `json:"front"`
	Back       string `json:"back"`
	Topic      string `json:"topic"`
	Difficulty int    `json:"difficulty"`
}

// parseCards accepts a bare JSON array, one wrapped in code fences, or an
// array embedded in surrounding prose.
func parseCards(raw, topic string) ([]domain.Flashcard, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var parsed []cardJSON
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		start := strings.Index(text, "[")
		end := strings.LastIndex(text, "]")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("%w: %v", ErrEmptyResponse, err)
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
			return nil, fmt.Errorf("parse flashcards: %w", err)
		}
	}

	cards := make([]domain.Flashcard, 0, len(parsed))
	for _, c := range parsed {
		front := strings.TrimSpace(c.Front)
		back := strings.TrimSpace(c.Back)
		if front == "" || back == "" {
			continue
		}
		card := domain.Flashcard{Front: front, Back: back, Topic: c.Topic, Difficulty: c.Difficulty}
		if card.Topic == "" {
			card.Topic = topic
		}
		if card.Difficulty < 1 || card.Difficulty > 3 {
			card.Difficulty = 2
		}
		cards = append(cards, card)
	}
	if len(cards) == 0 {
		return nil, ErrEmptyResponse
	}
	return cards, nil
}
