package queue

import (
	"context"
	"encoding/json"

	"classroll/internal/absence"
)

// DecisionPublisher adapts a Queue to the absence service's Events interface.
type DecisionPublisher struct {
	q Queue
}

// NewDecisionPublisher wraps q.
func NewDecisionPublisher(q Queue) *DecisionPublisher {
	return &DecisionPublisher{q: q}
}

// PublishDecision enqueues a decision as a JSON message for the worker.
func (p *DecisionPublisher) PublishDecision(ctx context.Context, d absence.Decision) error {
	body, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return p.q.Publish(ctx, Message{Type: TypeAbsenceDecided, Body: body})
}
