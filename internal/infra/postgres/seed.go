package postgres

import (
	"context"
	"fmt"

	"aptitude-ace/internal/domain"
	"github.com/uptrace/bun"
)

type questionRow struct {
	bun.BaseModel `bun:"table:questions"`

	ID       string          `bun:"id,pk"`
	TopicID  string          `bun:"topic_id,notnull"`
	Position int             `bun:"position,notnull"`
	Data     domain.Question `bun:"data,type:jsonb,notnull"`
}

// SeedQuestions upserts questions into the bank, keeping their order within each topic.
func SeedQuestions(ctx context.Context, db *bun.DB, questions []domain.Question) (int, error) {
	if len(questions) == 0 {
		return 0, nil
	}
	positions := make(map[string]int)
	rows := make([]questionRow, 0, len(questions))
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return 0, err
		}
		rows = append(rows, questionRow{
			ID:       q.ID,
			TopicID:  q.TopicID,
			Position: positions[q.TopicID],
			Data:     q,
		})
		positions[q.TopicID]++
	}

	_, err := db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("topic_id = EXCLUDED.topic_id").
		Set("position = EXCLUDED.position").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed questions: %w", err)
	}
	return len(rows), nil
}
