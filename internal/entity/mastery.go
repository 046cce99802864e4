package entity

import "time"

// MasteryRecord is the spaced-repetition state of one fact for one user.
type MasteryRecord struct {
	UserID         int64
	Fact           Fact
	IntervalDays   int
	Repetitions    int
	NextReviewOn   time.Time // civil date, see CivilDate
	LastReviewedAt time.Time
	// Version increments on every write and guards the conditional upsert.
	Version int64
}

// IsDue reports whether the record should be reviewed on the given civil date.
func (m MasteryRecord) IsDue(today time.Time) bool {
	return !m.NextReviewOn.After(today)
}

// CivilDate maps an instant to midnight UTC of its calendar day in loc, so
// dates from different zones compare by calendar day only.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateLayout is the storage format for civil dates.
const DateLayout = "2006-01-02"
