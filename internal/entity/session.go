package entity

import (
	"fmt"
	"strings"
	"time"
)

// SessionMode selects how a practice session is composed.
type SessionMode string

const (
	SessionModePlain    SessionMode = "plain"
	SessionModeAdaptive SessionMode = "adaptive"
	SessionModeDue      SessionMode = "due"
)

// ParseSessionMode maps user input to a mode. Empty input means plain
// practice; anything unrecognised is an ErrInvalidConfig.
func ParseSessionMode(raw string) (SessionMode, error) {
	mode := SessionMode(strings.ToLower(strings.TrimSpace(raw)))
	switch mode {
	case "":
		return SessionModePlain, nil
	case SessionModePlain, SessionModeAdaptive, SessionModeDue:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: unknown session mode %q", ErrInvalidConfig, raw)
	}
}

// SessionConfig is supplied by the surrounding application for one session.
type SessionConfig struct {
	Tables               []int
	QuestionCount        int
	TimePerQuestion      time.Duration
	IncreasingDifficulty bool
	Operations           []Operation
	// PreGenerated bypasses the generator entirely when non-empty.
	PreGenerated []Question
}

// Session is the prepared list handed to the game runner.
type Session struct {
	Mode            SessionMode
	Questions       []Question
	TimePerQuestion time.Duration
	// FellBack is set when the requested mode could not be served and plain
	// practice was used instead.
	FellBack bool
}
