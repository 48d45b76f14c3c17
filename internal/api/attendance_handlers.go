package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ferrovax/gatehouse/internal/attendance"
	"github.com/ferrovax/gatehouse/internal/middleware"
	"github.com/ferrovax/gatehouse/internal/registry"
)

// DefaultRecentLimit bounds GET /api/attendance when no limit is given.
const DefaultRecentLimit = 50

// MaxRecentLimit is the hard ceiling for the limit query parameter.
const MaxRecentLimit = 500

// AttendanceReader is the ledger read path the handlers consume.
type AttendanceReader interface {
	Recent(ctx context.Context, limit int) ([]attendance.Record, error)
	StatsFor(ctx context.Context, now time.Time) (attendance.Stats, error)
}

// SubjectResolver resolves a subject's registry entry for name enrichment.
type SubjectResolver interface {
	Lookup(ctx context.Context, externalID string) (*registry.Entry, error)
	Count(ctx context.Context) (int, error)
}

// OutboxCounter reports replication backlog for the stats endpoint.
type OutboxCounter interface {
	Counts(ctx context.Context) (pending, parked int, err error)
}

// AttendanceHandlers serves the attendance read endpoints.
type AttendanceHandlers struct {
	ledger   AttendanceReader
	registry SubjectResolver
	outbox   OutboxCounter
}

// NewAttendanceHandlers creates attendance handlers. outbox may be nil
// when replication is disabled.
func NewAttendanceHandlers(ledger AttendanceReader, registry SubjectResolver, outbox OutboxCounter) *AttendanceHandlers {
	return &AttendanceHandlers{ledger: ledger, registry: registry, outbox: outbox}
}

// attendanceRow is one record enriched with the subject's display name.
type attendanceRow struct {
	attendance.Record
	Name string `json:"name,omitempty"`
}

// Recent handles GET /api/attendance?limit=N, newest records first.
func (h *AttendanceHandlers) Recent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	limit := DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be a positive integer")
			return
		}
		if n > MaxRecentLimit {
			n = MaxRecentLimit
		}
		limit = n
	}

	records, err := h.ledger.Recent(r.Context(), limit)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	rows := make([]attendanceRow, 0, len(records))
	for _, rec := range records {
		row := attendanceRow{Record: rec}
		if entry, err := h.registry.Lookup(r.Context(), rec.SubjectID); err == nil && entry != nil {
			row.Name = entry.Name
		}
		rows = append(rows, row)
	}
	writeJSON(w, http.StatusOK, rows)
}

// statsResponse is the shape of GET /api/stats.
type statsResponse struct {
	TodaysEntries int `json:"todaysEntries"`
	ThisWeek      int `json:"thisWeek"`
	TotalStudents int `json:"totalStudents"`
	OutboxPending int `json:"outboxPending"`
	OutboxParked  int `json:"outboxParked"`
}

// Stats handles GET /api/stats.
func (h *AttendanceHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	stats, err := h.ledger.StatsFor(r.Context(), time.Now())
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	total, err := h.registry.Count(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "student count failed", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	resp := statsResponse{
		TodaysEntries: stats.TodaysEntries,
		ThisWeek:      stats.ThisWeek,
		TotalStudents: total,
	}
	if h.outbox != nil {
		pending, parked, err := h.outbox.Counts(r.Context())
		if err != nil {
			// Backlog counts are advisory; the rest of the stats stand.
			slog.WarnContext(r.Context(), "outbox counts failed", "error", err)
		} else {
			resp.OutboxPending = pending
			resp.OutboxParked = parked
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AttendanceHandlers) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, attendance.ErrStoreUnavailable) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeStoreUnavailable)
		WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "Attendance store unavailable, try again shortly")
		return
	}
	slog.ErrorContext(r.Context(), "attendance read failed", "error", err)
	ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
	WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
}
