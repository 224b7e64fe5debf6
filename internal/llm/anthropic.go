package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/seracourt/ripple/internal/domain"
)

const (
	anthropicMessagesURL = "https://api.anthropic.com/v1/messages"
	anthropicModel       = "claude-3-5-haiku-20241022"
	anthropicVersion     = "2023-06-01"
)

type AnthropicClient struct {
	apiKey     string
	httpClient *http.Client
}

func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *AnthropicClient) complete(ctx context.Context, messages []anthropicMessage, maxTokens int) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     anthropicModel,
		MaxTokens: maxTokens,
		Messages:  messages,
	})
	if err != nil {
		return "", fmt.Errorf("marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicMessagesURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read anthropic response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result anthropicResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal anthropic response: %w", err)
	}

	if result.Error != nil {
		return "", fmt.Errorf("anthropic API error: %s", result.Error.Message)
	}

	if len(result.Content) == 0 {
		return "", fmt.Errorf("anthropic API returned no content")
	}

	return strings.TrimSpace(result.Content[0].Text), nil
}

func (c *AnthropicClient) ExtractFacts(ctx context.Context, content string) ([]domain.ExtractedFact, error) {
	messages := []anthropicMessage{
		{Role: "user", Content: fmt.Sprintf(factExtractionPrompt, content)},
	}

	result, err := c.complete(ctx, messages, 2048)
	if err != nil {
		return nil, fmt.Errorf("extract facts: %w", err)
	}

	// Strip markdown fences if present
	result = strings.TrimPrefix(result, "```json")
	result = strings.TrimPrefix(result, "```")
	result = strings.TrimSuffix(result, "```")
	result = strings.TrimSpace(result)

	var extracted []domain.ExtractedFact
	if err := json.Unmarshal([]byte(result), &extracted); err != nil {
		return nil, fmt.Errorf("parse fact extraction result: %w (raw: %s)", err, result)
	}

	return extracted, nil
}

func (c *AnthropicClient) ExtractEntities(ctx context.Context, content string) ([]domain.ExtractedEntity, error) {
	messages := []anthropicMessage{
		{Role: "user", Content: fmt.Sprintf(entityExtractionPrompt, content)},
	}

	result, err := c.complete(ctx, messages, 1024)
	if err != nil {
		return nil, fmt.Errorf("extract entities: %w", err)
	}

	// Strip markdown fences if present
	result = strings.TrimPrefix(result, "```json")
	result = strings.TrimPrefix(result, "```")
	result = strings.TrimSuffix(result, "```")
	result = strings.TrimSpace(result)

	var entities []domain.ExtractedEntity
	if err := json.Unmarshal([]byte(result), &entities); err != nil {
		return nil, fmt.Errorf("parse entity extraction result: %w (raw: %s)", err, result)
	}

	valid := entities[:0]
	for _, e := range entities {
		if domain.ValidEntityType(string(e.EntityType)) {
			valid = append(valid, e)
		}
	}

	return valid, nil
}

func (c *AnthropicClient) DetectRelationships(ctx context.Context, content string, similar []domain.Memory) ([]domain.DetectedRelationship, error) {
	if len(similar) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for i, m := range similar {
		sb.WriteString(fmt.Sprintf("%d. ID: %s [%s] %s\n", i+1, m.ID, m.Type, m.Content))
	}

	messages := []anthropicMessage{
		{Role: "user", Content: fmt.Sprintf(relationshipDetectionPrompt, content, sb.String())},
	}

	result, err := c.complete(ctx, messages, 2048)
	if err != nil {
		return nil, fmt.Errorf("detect relationships: %w", err)
	}

	// Strip markdown fences if present
	result = strings.TrimPrefix(result, "```json")
	result = strings.TrimPrefix(result, "```")
	result = strings.TrimSuffix(result, "```")
	result = strings.TrimSpace(result)

	var relationships []domain.DetectedRelationship
	if err := json.Unmarshal([]byte(result), &relationships); err != nil {
		return nil, fmt.Errorf("parse relationship result: %w (raw: %s)", err, result)
	}

	valid := relationships[:0]
	for _, r := range relationships {
		if domain.ValidRelationType(string(r.RelationType)) {
			valid = append(valid, r)
		}
	}

	return valid, nil
}

func (c *AnthropicClient) CheckContradiction(ctx context.Context, stmtA, stmtB string) (bool, error) {
	messages := []anthropicMessage{
		{Role: "user", Content: fmt.Sprintf(contradictionPrompt, stmtA, stmtB)},
	}

	result, err := c.complete(ctx, messages, 50)
	if err != nil {
		return false, fmt.Errorf("check contradiction: %w", err)
	}

	return strings.ToLower(strings.TrimSpace(result)) == "true", nil
}

func (c *AnthropicClient) GenerateAlternatives(ctx context.Context, action string, evidence []string) ([]string, error) {
	messages := []anthropicMessage{
		{Role: "user", Content: fmt.Sprintf(alternativesPrompt, action, strings.Join(evidence, "\n"))},
	}

	result, err := c.complete(ctx, messages, 1024)
	if err != nil {
		return nil, fmt.Errorf("generate alternatives: %w", err)
	}

	// Strip markdown fences if present
	result = strings.TrimPrefix(result, "```json")
	result = strings.TrimPrefix(result, "```")
	result = strings.TrimSuffix(result, "```")
	result = strings.TrimSpace(result)

	var alternatives []string
	if err := json.Unmarshal([]byte(result), &alternatives); err != nil {
		return nil, fmt.Errorf("parse alternatives result: %w (raw: %s)", err, result)
	}

	return alternatives, nil
}
