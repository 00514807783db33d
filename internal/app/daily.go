package app

import (
	"math/rand"
	"sort"
	"time"

	"aptitude-ace/internal/domain"
)

// DailySeed derives the selection seed from the calendar date as YYYYMMDD.
func DailySeed(day time.Time) int64 {
	y, m, d := day.Date()
	return int64(y*10000 + int(m)*100 + d)
}

// SelectDaily picks count questions for the given day. The same pool and day
// always give the same questions in the same order, whatever order the pool
// arrived in. count <= 0 keeps the whole pool.
func SelectDaily(pool []domain.Question, day time.Time, count int) []domain.Question {
	out := append([]domain.Question(nil), pool...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	r := rand.New(rand.NewSource(DailySeed(day)))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if count > 0 && count < len(out) {
		out = out[:count]
	}
	return out
}
