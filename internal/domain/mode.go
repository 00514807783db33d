package domain

import (
	"fmt"
	"time"
)

// Mode selects which quiz flavour a session runs.
type Mode string

const (
	ModePractice Mode = "practice"
	ModeDaily    Mode = "daily"
	ModeGrand    Mode = "grand"
)

// PassThreshold is the completion percentage that counts as a pass.
const PassThreshold = 70

// Rules captures the per-mode scoring and timing behaviour.
type Rules struct {
	CorrectPoints int
	WrongPenalty  int
	// TimeLimit is zero for untimed modes, which count elapsed time up instead.
	TimeLimit time.Duration
	// WrapAround restarts from the first question while time remains.
	WrapAround bool
}

// Timed reports whether the mode runs a countdown.
func (r Rules) Timed() bool { return r.TimeLimit > 0 }

// ParseMode validates a raw mode string.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModePractice, ModeDaily, ModeGrand:
		return Mode(raw), nil
	case "":
		return ModePractice, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, raw)
}

// Rules returns the scoring and timing rules for the mode.
func (m Mode) Rules() Rules {
	switch m {
	case ModeDaily:
		return Rules{CorrectPoints: 2, WrongPenalty: 1, TimeLimit: 5 * time.Minute, WrapAround: true}
	case ModeGrand:
		return Rules{CorrectPoints: 1, TimeLimit: 45 * time.Minute}
	default:
		return Rules{CorrectPoints: 1}
	}
}

// StatsKey is the AttemptStats key for the mode; practice sessions use their topic.
func (m Mode) StatsKey(topicID string) string {
	switch m {
	case ModeDaily:
		return "daily-challenge"
	case ModeGrand:
		return "grand-test"
	}
	return topicID
}
