package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seracourt/ripple/internal/domain"
	"github.com/seracourt/ripple/internal/metrics"
	"github.com/seracourt/ripple/internal/store"
	"github.com/seracourt/ripple/internal/tools"
)

var ErrUnknownTool = errors.New("tool not in registry")

const (
	// pErrorFloor is the misexecution probability of a fully specified
	// request; it doubles as the baseline before penalties.
	pErrorFloor = 0.05
	pErrorCeil  = 0.95

	missingParamPenalty = 0.3
	vaguenessPenalty    = 0.15

	evidenceLimit = 3
)

// vaguenessMarkers are hedging phrases that suggest the caller is guessing
// at parameter values.
var vaguenessMarkers = []string{
	"maybe", "probably", "possibly", "i think", "not sure", "i guess", "something like",
}

// ToolFunc is the callable shape the gate wraps. Execute preserves it and
// only substitutes the return value when it decides to push back.
type ToolFunc func(ctx context.Context, params map[string]any) (any, error)

// VoIOutcome is a gate ruling: the scored decision plus, when clarification
// wins, the push-back that replaces the tool's output.
type VoIOutcome struct {
	Result   domain.VoIResult `json:"result"`
	PushBack *domain.PushBack `json:"push_back,omitempty"`
}

// VoIGate decides whether a side-effecting tool call is worth interrupting
// the user over: clarify when c_error * p_error > c_int. The gate's own
// failures never block an action; it degrades to PROCEED with a warning.
type VoIGate struct {
	registry    *tools.Registry
	policyStore domain.RevisionPolicyStore
	memories    domain.MemoryStore
	llmClient   domain.LLMClient
	decisionLog *DecisionLogger
	collector   *metrics.Collector
	logger      *zap.Logger
}

func NewVoIGate(
	registry *tools.Registry,
	policyStore domain.RevisionPolicyStore,
	memories domain.MemoryStore,
	llmClient domain.LLMClient,
	decisionLog *DecisionLogger,
	collector *metrics.Collector,
	logger *zap.Logger,
) *VoIGate {
	return &VoIGate{
		registry:    registry,
		policyStore: policyStore,
		memories:    memories,
		llmClient:   llmClient,
		decisionLog: decisionLog,
		collector:   collector,
		logger:      logger,
	}
}

// Gate scores one proposed call. An unknown tool is a caller bug and returns
// ErrUnknownTool; read-only tools bypass scoring and logging entirely.
func (g *VoIGate) Gate(ctx context.Context, userID uuid.UUID, toolName string, params map[string]any) (*VoIOutcome, error) {
	tool, ok := g.registry.Get(toolName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, toolName)
	}

	if !tool.SideEffecting {
		g.collector.VoIDecisions.WithLabelValues("bypass").Inc()
		return &VoIOutcome{Result: domain.VoIResult{
			ToolName:    tool.Name,
			ActionType:  tool.ActionType,
			EvaluatedAt: time.Now().UTC(),
		}}, nil
	}

	pError := requestPError(&tool, params)
	cInt := domain.DefaultInterruptionCost

	policy, err := g.policyStore.GetByUserID(ctx, userID)
	switch {
	case err == nil:
		cInt = policy.InterruptionCost
	case errors.Is(err, store.ErrNotFound):
		// Untuned user; defaults apply.
	default:
		// Gate self-failure: never block the action over our own plumbing.
		g.logger.Warn("policy load failed, gate failing open", zap.Error(err))
		return g.failOpen(userID, &tool, pError, cInt), nil
	}

	result := domain.VoIResult{
		ToolName:      tool.Name,
		ActionType:    tool.ActionType,
		CError:        tool.ErrorCost,
		PError:        pError,
		CInt:          cInt,
		VoIScore:      tool.ErrorCost * pError,
		ShouldClarify: tool.ErrorCost*pError > cInt,
		EvaluatedAt:   time.Now().UTC(),
	}

	outcome := &VoIOutcome{Result: result}
	if result.ShouldClarify {
		pushBack, pbErr := g.buildPushBack(ctx, userID, &tool, result)
		if pbErr != nil {
			g.logger.Warn("push-back build failed, gate failing open", zap.Error(pbErr))
			result.ShouldClarify = false
			outcome = &VoIOutcome{Result: result}
		} else {
			outcome.PushBack = pushBack
		}
	}

	g.record(userID, outcome.Result)
	return outcome, nil
}

// Execute gates fn and invokes it on PROCEED. On clarify the push-back is
// returned in the tool's place; the caller's signature is unchanged.
func (g *VoIGate) Execute(ctx context.Context, userID uuid.UUID, toolName string, params map[string]any, fn ToolFunc) (any, error) {
	outcome, err := g.Gate(ctx, userID, toolName, params)
	if err != nil {
		return nil, err
	}
	if outcome.PushBack != nil {
		return outcome.PushBack, nil
	}
	return fn(ctx, params)
}

func (g *VoIGate) failOpen(userID uuid.UUID, tool *tools.Tool, pError, cInt float64) *VoIOutcome {
	result := domain.VoIResult{
		ToolName:      tool.Name,
		ActionType:    tool.ActionType,
		CError:        tool.ErrorCost,
		PError:        pError,
		CInt:          cInt,
		VoIScore:      tool.ErrorCost * pError,
		ShouldClarify: false,
		EvaluatedAt:   time.Now().UTC(),
	}
	g.record(userID, result)
	return &VoIOutcome{Result: result}
}

// buildPushBack assembles evidence from the user's constraint memories and
// alternatives from the LLM, falling back to the manifest's canned options.
// The manifest guarantees two fallbacks, so validation cannot fail for a
// registered tool.
func (g *VoIGate) buildPushBack(ctx context.Context, userID uuid.UUID, tool *tools.Tool, result domain.VoIResult) (*domain.PushBack, error) {
	var evidence []string
	rules, err := g.memories.ListRulesByUser(ctx, userID)
	if err != nil {
		g.logger.Warn("evidence lookup failed", zap.Error(err))
	} else {
		for _, rule := range rules {
			evidence = append(evidence, rule.Content)
			if len(evidence) == evidenceLimit {
				break
			}
		}
	}

	alternatives, err := g.llmClient.GenerateAlternatives(ctx, tool.Description, evidence)
	if err != nil || len(alternatives) < domain.MinPushBackAlternatives {
		if err != nil {
			g.logger.Warn("alternative generation failed, using manifest fallbacks",
				zap.String("tool", tool.Name),
				zap.Error(err))
		}
		alternatives = tool.FallbackAlternatives
	}

	pushBack := &domain.PushBack{
		Message: fmt.Sprintf(
			"Holding off on %s: a mistake here looks costlier than a quick check (risk %.2f vs interruption %.2f).",
			tool.Name, result.VoIScore, result.CInt),
		Evidence:     evidence,
		Alternatives: alternatives,
	}
	if err := pushBack.Validate(); err != nil {
		return nil, fmt.Errorf("push-back validation: %w", err)
	}
	return pushBack, nil
}

func (g *VoIGate) record(userID uuid.UUID, result domain.VoIResult) {
	decision := "proceed"
	if result.ShouldClarify {
		decision = "clarify"
	}
	g.collector.VoIDecisions.WithLabelValues(decision).Inc()

	g.decisionLog.Record(domain.VoIDecision{
		UserID:        userID,
		ToolName:      result.ToolName,
		ActionType:    result.ActionType,
		CError:        result.CError,
		PError:        result.PError,
		CInt:          result.CInt,
		VoIScore:      result.VoIScore,
		ShouldClarify: result.ShouldClarify,
	})
}

// requestPError derives the misexecution probability from what the request
// itself shows: absent required parameters and hedged wording.
func requestPError(tool *tools.Tool, params map[string]any) float64 {
	p := pErrorFloor
	p += missingParamPenalty * float64(len(tool.MissingParams(params)))

	if hasVagueness(params) {
		p += vaguenessPenalty
	}

	if p > pErrorCeil {
		p = pErrorCeil
	}
	return p
}

func hasVagueness(params map[string]any) bool {
	for _, v := range params {
		s, ok := v.(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(s)
		for _, marker := range vaguenessMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}
