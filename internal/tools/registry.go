package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/seracourt/ripple/internal/domain"
)

// Tool describes one action an agent may request through the gate. The
// manifest is the single source of truth for error costs; nothing recomputes
// them at request time.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ActionType  string `json:"action_type"`
	// SideEffecting tools pass through the clarification gate; read-only
	// tools bypass it entirely.
	SideEffecting  bool     `json:"side_effecting"`
	ErrorCost      float64  `json:"error_cost"`
	RequiredParams []string `json:"required_params,omitempty"`
	// FallbackAlternatives are served when the LLM cannot produce
	// alternatives for a push-back. Validation requires at least two for
	// side-effecting tools so a push-back is always well formed.
	FallbackAlternatives []string `json:"fallback_alternatives,omitempty"`
}

// MissingParams returns the required parameters absent from the call.
func (t *Tool) MissingParams(params map[string]any) []string {
	var missing []string
	for _, p := range t.RequiredParams {
		if _, ok := params[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}

type manifest struct {
	Tools []Tool `json:"tools"`
}

// Registry is an immutable tool catalog loaded and validated once at
// startup. A bad manifest fails the boot rather than a request.
type Registry struct {
	tools map[string]Tool
}

func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tool manifest %s: %w", path, err)
	}
	return ParseRegistry(data)
}

func ParseRegistry(data []byte) (*Registry, error) {
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse tool manifest: %w", err)
	}
	if len(m.Tools) == 0 {
		return nil, fmt.Errorf("tool manifest declares no tools")
	}

	tools := make(map[string]Tool, len(m.Tools))
	for _, t := range m.Tools {
		if err := validateTool(&t); err != nil {
			return nil, err
		}
		if _, exists := tools[t.Name]; exists {
			return nil, fmt.Errorf("tool %q declared twice", t.Name)
		}
		tools[t.Name] = t
	}

	return &Registry{tools: tools}, nil
}

func validateTool(t *Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool with empty name")
	}
	if t.Description == "" {
		return fmt.Errorf("tool %q has no description", t.Name)
	}
	if t.ActionType == "" {
		return fmt.Errorf("tool %q has no action_type", t.Name)
	}
	if !t.SideEffecting {
		return nil
	}
	if t.ErrorCost <= 0 {
		return fmt.Errorf("tool %q error_cost %.2f must be positive", t.Name, t.ErrorCost)
	}
	if len(t.FallbackAlternatives) < domain.MinPushBackAlternatives {
		return fmt.Errorf("tool %q needs at least %d fallback alternatives, has %d",
			t.Name, domain.MinPushBackAlternatives, len(t.FallbackAlternatives))
	}
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Len() int {
	return len(r.tools)
}
