package entity

import "time"

// AttemptRecord is one answered question. Records are append-only.
type AttemptRecord struct {
	ID          int64
	UserID      int64
	Fact        Fact
	IsCorrect   bool
	Latency     time.Duration
	AttemptedAt time.Time
}

// FactTally is the raw per-fact aggregation of a user's attempts.
type FactTally struct {
	Fact           Fact
	TimesSeen      int
	TimesIncorrect int
	TotalLatency   time.Duration
}

// Summary derives accuracy and average latency from the tally.
func (t FactTally) Summary() WeakFactSummary {
	s := WeakFactSummary{
		Fact:           t.Fact,
		TimesSeen:      t.TimesSeen,
		TimesIncorrect: t.TimesIncorrect,
	}
	if t.TimesSeen > 0 {
		s.AccuracyRate = float64(t.TimesSeen-t.TimesIncorrect) / float64(t.TimesSeen)
		s.AvgLatency = t.TotalLatency / time.Duration(t.TimesSeen)
	}
	return s
}

// WeakFactSummary is derived on demand from attempts and never stored.
type WeakFactSummary struct {
	Fact           Fact          `json:"fact"`
	TimesSeen      int           `json:"times_seen"`
	TimesIncorrect int           `json:"times_incorrect"`
	AccuracyRate   float64       `json:"accuracy_rate"`
	AvgLatency     time.Duration `json:"avg_latency"`
}
