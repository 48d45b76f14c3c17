// Package outbox implements the durable replication queue between the
// local attendance ledger and the remote mirror. The ledger appends; the
// replication worker exclusively owns attempt metadata.
package outbox

import (
	"time"

	"github.com/ferrovax/gatehouse/internal/attendance"
)

// Item is one queued record snapshot awaiting remote acknowledgment. It is
// destroyed on a confirmed upsert, rescheduled with backoff on failure, and
// parked (kept, flagged, never retried) once MaxAttempts is exhausted.
type Item struct {
	ID          string
	SubjectID   string
	Day         string
	Outcome     attendance.Outcome
	Level       attendance.Level
	CapturedAt  time.Time
	Attempts    int
	NextRetryAt time.Time
	Parked      bool
	CreatedAt   time.Time
}

// Record reconstructs the attendance snapshot carried by the item.
func (it Item) Record() attendance.Record {
	return attendance.Record{
		SubjectID:  it.SubjectID,
		Day:        it.Day,
		Outcome:    it.Outcome,
		Level:      it.Level,
		CapturedAt: it.CapturedAt,
	}
}
