package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"aptitude-ace/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionLoader loads question JSONB rows from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

// LoadQuestions returns a topic's questions for practice mode and the whole
// bank for the daily challenge and grand test.
func (l *QuestionLoader) LoadQuestions(ctx context.Context, mode domain.Mode, topicID string) ([]domain.Question, error) {
	query := `SELECT data FROM questions ORDER BY topic_id, position, id`
	args := []interface{}{}
	if mode == domain.ModePractice {
		query = `SELECT data FROM questions WHERE topic_id=$1 ORDER BY position, id`
		args = append(args, topicID)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("unmarshal question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return questions, nil
}
