// Package attendance owns the local attendance ledger: one record per
// subject per calendar day, written when a gate cycle completes and
// replicated asynchronously to the remote mirror through the outbox.
package attendance

import "time"

// Outcome is the attendance outcome for a day.
type Outcome string

const (
	// OutcomePresent means credential, liveness, and physical entry all
	// checked out.
	OutcomePresent Outcome = "present"
	// OutcomeProxy means credential and liveness verified but entry was
	// never confirmed by the sensor.
	OutcomeProxy Outcome = "proxy"
)

// Level is how much of the verification pipeline the record is backed by.
type Level string

const (
	// LevelFull covers credential + liveness + confirmed entry.
	LevelFull Level = "full"
	// LevelPartial covers credential + liveness without confirmed entry.
	LevelPartial Level = "partial"
	// LevelNone is reserved for manually entered records.
	LevelNone Level = "none"
)

// Record is one attendance row. The (SubjectID, Day) pair is unique; later
// cycles on the same day never insert a second row.
type Record struct {
	SubjectID  string    `json:"subjectId"`
	Day        string    `json:"date"` // local calendar day, YYYY-MM-DD
	Outcome    Outcome   `json:"outcome"`
	Level      Level     `json:"verificationLevel"`
	CapturedAt time.Time `json:"capturedAt"`
}

// DayOf formats t as the local calendar day used for dedup keys.
func DayOf(t time.Time) string {
	return t.Local().Format("2006-01-02")
}
