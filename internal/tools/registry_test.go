package tools

import (
	"strings"
	"testing"
)

const validManifest = `{
  "tools": [
    {
      "name": "send_email",
      "description": "Send an email on the user's behalf",
      "action_type": "communication",
      "side_effecting": true,
      "error_cost": 0.8,
      "required_params": ["to", "subject", "body"],
      "fallback_alternatives": ["Save as a draft for review", "Show a preview before sending"]
    },
    {
      "name": "delete_records",
      "description": "Permanently delete records from an external system",
      "action_type": "data_management",
      "side_effecting": true,
      "error_cost": 10,
      "required_params": ["record_ids"],
      "fallback_alternatives": ["Archive instead of deleting", "List the records first"]
    },
    {
      "name": "search_memories",
      "description": "Look up stored user memories",
      "action_type": "retrieval",
      "side_effecting": false
    }
  ]
}`

func TestParseRegistryValid(t *testing.T) {
	r, err := ParseRegistry([]byte(validManifest))
	if err != nil {
		t.Fatalf("ParseRegistry: %v", err)
	}
	if r.Len() != 3 {
		t.Fatalf("expected 3 tools, got %d", r.Len())
	}

	tool, ok := r.Get("send_email")
	if !ok {
		t.Fatal("send_email not found")
	}
	if tool.ErrorCost != 0.8 {
		t.Errorf("error_cost = %v, want 0.8", tool.ErrorCost)
	}
	if !tool.SideEffecting {
		t.Error("send_email should be side-effecting")
	}

	// Error costs are on an open scale; irreversible actions go well past 1.
	destructive, ok := r.Get("delete_records")
	if !ok {
		t.Fatal("delete_records not found")
	}
	if destructive.ErrorCost != 10 {
		t.Errorf("error_cost = %v, want 10", destructive.ErrorCost)
	}

	if _, ok := r.Get("unknown_tool"); ok {
		t.Error("unknown tool should not resolve")
	}
}

func TestParseRegistryRejectsBadManifests(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		wantErr  string
	}{
		{
			name:     "empty tool list",
			manifest: `{"tools": []}`,
			wantErr:  "declares no tools",
		},
		{
			name: "duplicate name",
			manifest: `{"tools": [
				{"name": "a", "description": "d", "action_type": "t", "side_effecting": false},
				{"name": "a", "description": "d", "action_type": "t", "side_effecting": false}
			]}`,
			wantErr: "declared twice",
		},
		{
			name: "side-effecting without error cost",
			manifest: `{"tools": [
				{"name": "a", "description": "d", "action_type": "t", "side_effecting": true,
				 "fallback_alternatives": ["x", "y"]}
			]}`,
			wantErr: "error_cost",
		},
		{
			name: "negative error cost",
			manifest: `{"tools": [
				{"name": "a", "description": "d", "action_type": "t", "side_effecting": true,
				 "error_cost": -0.5, "fallback_alternatives": ["x", "y"]}
			]}`,
			wantErr: "error_cost",
		},
		{
			name: "side-effecting with one fallback alternative",
			manifest: `{"tools": [
				{"name": "a", "description": "d", "action_type": "t", "side_effecting": true,
				 "error_cost": 0.5, "fallback_alternatives": ["only one"]}
			]}`,
			wantErr: "fallback alternatives",
		},
		{
			name:     "missing description",
			manifest: `{"tools": [{"name": "a", "action_type": "t"}]}`,
			wantErr:  "no description",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRegistry([]byte(tt.manifest))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestMissingParams(t *testing.T) {
	r, err := ParseRegistry([]byte(validManifest))
	if err != nil {
		t.Fatalf("ParseRegistry: %v", err)
	}
	tool, _ := r.Get("send_email")

	missing := tool.MissingParams(map[string]any{"to": "a@b.c"})
	if len(missing) != 2 {
		t.Fatalf("expected 2 missing params, got %v", missing)
	}

	missing = tool.MissingParams(map[string]any{"to": "a@b.c", "subject": "s", "body": "b"})
	if len(missing) != 0 {
		t.Errorf("expected no missing params, got %v", missing)
	}
}
