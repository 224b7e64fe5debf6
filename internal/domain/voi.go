package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// MinPushBackAlternatives is the floor on generated alternatives: a
// clarification that offers a single option is not a clarification.
const MinPushBackAlternatives = 2

var ErrTooFewAlternatives = errors.New("push-back requires at least 2 alternatives")

// VoIResult is the outcome of gating one side-effecting tool call:
// should_clarify = c_error * p_error > c_int.
type VoIResult struct {
	ToolName      string    `json:"tool_name"`
	ActionType    string    `json:"action_type"`
	CError        float64   `json:"c_error"`
	PError        float64   `json:"p_error"`
	CInt          float64   `json:"c_int"`
	VoIScore      float64   `json:"voi_score"`
	ShouldClarify bool      `json:"should_clarify"`
	EvaluatedAt   time.Time `json:"evaluated_at"`
}

// PushBack is the response substituted for a gated action: the evidence that
// made the gate hesitate plus at least two ways forward.
type PushBack struct {
	Message      string   `json:"message"`
	Evidence     []string `json:"evidence,omitempty"`
	Alternatives []string `json:"alternatives"`
}

func (p *PushBack) Validate() error {
	if len(p.Alternatives) < MinPushBackAlternatives {
		return ErrTooFewAlternatives
	}
	if p.Message == "" {
		return errors.New("push-back message is empty")
	}
	return nil
}

// VoIDecision is the append-only decision log row behind the push-back rate
// statistic. Written fire-and-forget; losing one under pressure is accepted.
type VoIDecision struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	ToolName      string    `json:"tool_name"`
	ActionType    string    `json:"action_type"`
	CError        float64   `json:"c_error"`
	PError        float64   `json:"p_error"`
	CInt          float64   `json:"c_int"`
	VoIScore      float64   `json:"voi_score"`
	ShouldClarify bool      `json:"should_clarify"`
	CreatedAt     time.Time `json:"created_at"`
}

type DecisionLogStore interface {
	Create(ctx context.Context, d *VoIDecision) error
	// ClarifyRateSince returns clarified/total for decisions created after
	// the cutoff; total=0 means no gated calls in the window.
	ClarifyRateSince(ctx context.Context, since time.Time) (clarified int, total int, err error)
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]VoIDecision, error)
}
