// Package srs implements the fixed interval ladder used to schedule fact reviews.
package srs

import (
	"errors"
	"fmt"
)

// ErrInvalidLadder is returned by Validate for unusable ladders.
var ErrInvalidLadder = errors.New("invalid review ladder")

// Ladder is an ascending list of review intervals in days. A fact climbs one
// rung per correct answer, except on the first rung where it must be answered
// correctly LearningBuffer times in a row before moving up.
type Ladder struct {
	Intervals      []int
	LearningBuffer int
}

// State is the scheduling position of a single fact.
type State struct {
	IntervalDays int
	Repetitions  int
}

// DefaultLadder returns the 1,2,3,4,7,14,30 day ladder with a two-answer buffer.
func DefaultLadder() Ladder {
	return Ladder{
		Intervals:      []int{1, 2, 3, 4, 7, 14, 30},
		LearningBuffer: 2,
	}
}

// Validate requires a non-empty strictly ascending ladder of positive days.
func (l Ladder) Validate() error {
	if len(l.Intervals) == 0 {
		return fmt.Errorf("%w: no intervals", ErrInvalidLadder)
	}
	if l.LearningBuffer < 1 {
		return fmt.Errorf("%w: learning buffer must be at least 1, got %d", ErrInvalidLadder, l.LearningBuffer)
	}
	prev := 0
	for i, days := range l.Intervals {
		if days <= prev {
			return fmt.Errorf("%w: interval %d (%d days) is not ascending", ErrInvalidLadder, i, days)
		}
		prev = days
	}
	return nil
}

// Index returns the rung holding interval. Unknown intervals, including the
// zero interval of a fact never reviewed, map to the first rung.
func (l Ladder) Index(interval int) int {
	for i, days := range l.Intervals {
		if days == interval {
			return i
		}
	}
	return 0
}

// Next computes the state after one answer.
func (l Ladder) Next(current State, correct bool) State {
	if !correct {
		return State{IntervalDays: l.Intervals[0], Repetitions: 0}
	}

	idx := l.Index(current.IntervalDays)
	reps := current.Repetitions + 1
	if idx == 0 && reps < l.LearningBuffer {
		return State{IntervalDays: l.Intervals[0], Repetitions: reps}
	}
	next := idx + 1
	if last := len(l.Intervals) - 1; next > last {
		next = last
	}
	return State{IntervalDays: l.Intervals[next], Repetitions: reps}
}
