package attendance

import (
	"context"
	"time"

	"classroll/internal/apperr"
	"classroll/internal/metrics"
	"classroll/internal/policy"
)

// Status marks a student present or absent for one class and day.
type Status string

const (
	StatusPresent Status = "Present"
	StatusAbsent  Status = "Absent"
)

// Valid returns true when the status is a supported value.
func (s Status) Valid() bool {
	return s == StatusPresent || s == StatusAbsent
}

// Record is one (student, class, day) attendance mark.
type Record struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	ClassID   string    `json:"class_id"`
	Day       time.Time `json:"day"`
	Status    Status    `json:"status"`
	MarkedBy  string    `json:"marked_by"`
	MarkedAt  time.Time `json:"marked_at"`
}

// Entry is one student's mark in a sheet save.
type Entry struct {
	StudentID string `json:"student_id"`
	Status    Status `json:"status"`
}

// Filter narrows attendance queries.
type Filter struct {
	StudentID string
	ClassID   string
	From      time.Time
	To        time.Time
}

// Store is the persistence the service needs. UpsertSheet must be atomic:
// either every entry is written or none.
type Store interface {
	UpsertSheet(ctx context.Context, classID string, day time.Time, entries []Entry, markedBy string) (int, error)
	List(ctx context.Context, f Filter) ([]Record, error)
}

// RosterSource yields class membership for reference checks.
type RosterSource interface {
	GetRoster(ctx context.Context, classID string) (map[string]bool, error)
}

// Service applies policy and roster checks around attendance writes and
// reads.
type Service struct {
	store  Store
	roster RosterSource
}

// NewService creates a service.
func NewService(store Store, roster RosterSource) *Service {
	return &Service{store: store, roster: roster}
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SaveSheet upserts the attendance marks for one class and day. The whole
// batch is validated against the roster first and written in a single
// transaction; a second identical call overwrites rather than duplicates.
func (s *Service) SaveSheet(ctx context.Context, p policy.Principal, classID string, day time.Time, entries []Entry) (int, error) {
	if !policy.CanPerform(p, policy.CreateAttendance, policy.Target{ClassID: classID}) {
		metrics.PolicyDenials.WithLabelValues(string(policy.CreateAttendance)).Inc()
		return 0, apperr.Forbidden()
	}
	if len(entries) == 0 {
		return 0, apperr.New(apperr.KindValidation, "empty attendance sheet")
	}
	for _, e := range entries {
		if !e.Status.Valid() {
			return 0, apperr.Newf(apperr.KindValidation, "unknown status %q for student %s", e.Status, e.StudentID)
		}
	}

	members, err := s.roster.GetRoster(ctx, classID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return 0, apperr.Newf(apperr.KindInvalidReference, "class %s not found", classID)
		}
		return 0, err
	}
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !members[e.StudentID] {
			return 0, apperr.Newf(apperr.KindInvalidReference, "student %s is not in class %s", e.StudentID, classID)
		}
		if seen[e.StudentID] {
			return 0, apperr.Newf(apperr.KindValidation, "student %s listed twice", e.StudentID)
		}
		seen[e.StudentID] = true
	}

	n, err := s.store.UpsertSheet(ctx, classID, Day(day), entries, p.ID)
	if err != nil {
		return 0, err
	}
	metrics.AttendanceMarks.Add(float64(n))
	return n, nil
}

// Query returns attendance records matching f, scoped to the principal.
// Students only ever see their own records; the result is ordered by day
// descending with class id as tie-break.
func (s *Service) Query(ctx context.Context, p policy.Principal, f Filter) ([]Record, error) {
	target := policy.Target{StudentID: f.StudentID, ClassID: f.ClassID}
	if target.StudentID == "" {
		target.StudentID = p.ID
	}
	if !policy.CanPerform(p, policy.ViewAttendance, target) {
		metrics.PolicyDenials.WithLabelValues(string(policy.ViewAttendance)).Inc()
		return nil, apperr.Forbidden()
	}
	if p.Role == policy.RoleStudent {
		f.StudentID = p.ID
	}
	return s.store.List(ctx, f)
}
