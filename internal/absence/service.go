package absence

import (
	"context"
	"log"
	"strings"
	"time"

	"classroll/internal/apperr"
	"classroll/internal/metrics"
	"classroll/internal/policy"
)

// Status is the review state of an explanation. Pending is the only state
// with outgoing transitions; Approved and Rejected are terminal.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// Explanation is a student-submitted justification for an absence.
type Explanation struct {
	ID            string     `json:"id"`
	StudentID     string     `json:"student_id"`
	Day           time.Time  `json:"day"`
	Reason        string     `json:"reason"`
	AttachmentURL *string    `json:"attachment_url,omitempty"`
	Status        Status     `json:"status"`
	ReviewComment *string    `json:"review_comment,omitempty"`
	ReviewedBy    *string    `json:"reviewed_by,omitempty"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
}

// Filter narrows explanation queries.
type Filter struct {
	StudentID string
	Status    Status
}

// Decision records the outcome of a review for downstream consumers.
type Decision struct {
	ExplanationID string  `json:"explanation_id"`
	StudentID     string  `json:"student_id"`
	Status        Status  `json:"status"`
	Comment       *string `json:"comment,omitempty"`
	ReviewedBy    string  `json:"reviewed_by"`
}

// Store is the persistence the service needs. Decide must be a
// compare-and-set conditioned on the current status still being Pending;
// it reports false when the condition failed.
type Store interface {
	Insert(ctx context.Context, exp Explanation) (Explanation, error)
	Get(ctx context.Context, id string) (Explanation, error)
	Decide(ctx context.Context, id string, status Status, comment *string, reviewedBy string, decidedAt time.Time) (bool, error)
	List(ctx context.Context, f Filter) ([]Explanation, error)
}

// Events receives decision notifications; publish failures never fail the
// review itself.
type Events interface {
	PublishDecision(ctx context.Context, d Decision) error
}

// Service runs the absence explanation workflow.
type Service struct {
	store  Store
	events Events
}

// NewService creates a service. events may be nil.
func NewService(store Store, events Events) *Service {
	return &Service{store: store, events: events}
}

// Submit creates a Pending explanation for the principal's own absence.
func (s *Service) Submit(ctx context.Context, p policy.Principal, day time.Time, reason string, attachmentURL *string) (Explanation, error) {
	if !policy.CanPerform(p, policy.CreateAbsence, policy.Target{StudentID: p.ID}) {
		metrics.PolicyDenials.WithLabelValues(string(policy.CreateAbsence)).Inc()
		return Explanation{}, apperr.Forbidden()
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Explanation{}, apperr.New(apperr.KindValidation, "reason must not be empty")
	}

	exp := Explanation{
		StudentID:     p.ID,
		Day:           day,
		Reason:        reason,
		AttachmentURL: attachmentURL,
		Status:        StatusPending,
	}
	return s.store.Insert(ctx, exp)
}

// Approve moves a Pending explanation to Approved. The comment is optional.
func (s *Service) Approve(ctx context.Context, p policy.Principal, id string, comment *string) (Explanation, error) {
	return s.decide(ctx, p, id, StatusApproved, comment)
}

// Reject moves a Pending explanation to Rejected. A non-empty comment is
// required so the student knows why.
func (s *Service) Reject(ctx context.Context, p policy.Principal, id string, comment string) (Explanation, error) {
	if strings.TrimSpace(comment) == "" {
		return Explanation{}, apperr.New(apperr.KindValidation, "a rejection comment is required")
	}
	return s.decide(ctx, p, id, StatusRejected, &comment)
}

func (s *Service) decide(ctx context.Context, p policy.Principal, id string, status Status, comment *string) (Explanation, error) {
	if !policy.CanPerform(p, policy.ReviewAbsence, policy.Target{}) {
		metrics.PolicyDenials.WithLabelValues(string(policy.ReviewAbsence)).Inc()
		return Explanation{}, apperr.Forbidden()
	}

	ok, err := s.store.Decide(ctx, id, status, comment, p.ID, time.Now().UTC())
	if err != nil {
		return Explanation{}, err
	}
	if !ok {
		// Either the record does not exist or it already left Pending,
		// including a concurrent reviewer winning the race.
		if _, getErr := s.store.Get(ctx, id); apperr.Is(getErr, apperr.KindNotFound) {
			return Explanation{}, getErr
		}
		return Explanation{}, apperr.Newf(apperr.KindInvalidTransition, "explanation %s is no longer pending", id)
	}

	exp, err := s.store.Get(ctx, id)
	if err != nil {
		return Explanation{}, err
	}

	metrics.AbsenceDecisions.WithLabelValues(string(status)).Inc()
	if s.events != nil {
		d := Decision{
			ExplanationID: exp.ID,
			StudentID:     exp.StudentID,
			Status:        status,
			Comment:       comment,
			ReviewedBy:    p.ID,
		}
		if err := s.events.PublishDecision(ctx, d); err != nil {
			log.Printf("decision publish failed for %s: %v", exp.ID, err)
		}
	}
	return exp, nil
}

// Query returns explanations matching f, scoped to the principal. Students
// only ever see their own submissions; ordering is day descending.
func (s *Service) Query(ctx context.Context, p policy.Principal, f Filter) ([]Explanation, error) {
	target := policy.Target{StudentID: f.StudentID}
	if target.StudentID == "" {
		target.StudentID = p.ID
	}
	if !policy.CanPerform(p, policy.ViewAbsence, target) {
		metrics.PolicyDenials.WithLabelValues(string(policy.ViewAbsence)).Inc()
		return nil, apperr.Forbidden()
	}
	if p.Role == policy.RoleStudent {
		f.StudentID = p.ID
	}
	return s.store.List(ctx, f)
}
