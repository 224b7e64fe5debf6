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
	openAIChatURL = "https://api.openai.com/v1/chat/completions"
	chatModel     = "gpt-4o-mini"
)

type OpenAIClient struct {
	apiKey     string
	httpClient *http.Client
}

func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// chat types for OpenAI API
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *OpenAIClient) complete(ctx context.Context, messages []chatMessage, temp float32) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       chatModel,
		Messages:    messages,
		Temperature: temp,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIChatURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal chat response: %w", err)
	}

	if result.Error != nil {
		return "", fmt.Errorf("chat API error: %s", result.Error.Message)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("chat API returned no choices")
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) ExtractFacts(ctx context.Context, content string) ([]domain.ExtractedFact, error) {
	messages := []chatMessage{
		{Role: "user", Content: fmt.Sprintf(factExtractionPrompt, content)},
	}

	result, err := c.complete(ctx, messages, 0.2)
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

func (c *OpenAIClient) ExtractEntities(ctx context.Context, content string) ([]domain.ExtractedEntity, error) {
	messages := []chatMessage{
		{Role: "user", Content: fmt.Sprintf(entityExtractionPrompt, content)},
	}

	result, err := c.complete(ctx, messages, 0.2)
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

	// Drop entities the enum does not know rather than failing the batch
	valid := entities[:0]
	for _, e := range entities {
		if domain.ValidEntityType(string(e.EntityType)) {
			valid = append(valid, e)
		}
	}

	return valid, nil
}

func (c *OpenAIClient) DetectRelationships(ctx context.Context, content string, similar []domain.Memory) ([]domain.DetectedRelationship, error) {
	if len(similar) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for i, m := range similar {
		sb.WriteString(fmt.Sprintf("%d. ID: %s [%s] %s\n", i+1, m.ID, m.Type, m.Content))
	}

	messages := []chatMessage{
		{Role: "user", Content: fmt.Sprintf(relationshipDetectionPrompt, content, sb.String())},
	}

	result, err := c.complete(ctx, messages, 0.2)
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

func (c *OpenAIClient) CheckContradiction(ctx context.Context, stmtA, stmtB string) (bool, error) {
	messages := []chatMessage{
		{Role: "user", Content: fmt.Sprintf(contradictionPrompt, stmtA, stmtB)},
	}

	result, err := c.complete(ctx, messages, 0)
	if err != nil {
		return false, fmt.Errorf("check contradiction: %w", err)
	}

	return strings.ToLower(strings.TrimSpace(result)) == "true", nil
}

func (c *OpenAIClient) GenerateAlternatives(ctx context.Context, action string, evidence []string) ([]string, error) {
	messages := []chatMessage{
		{Role: "user", Content: fmt.Sprintf(alternativesPrompt, action, strings.Join(evidence, "\n"))},
	}

	result, err := c.complete(ctx, messages, 0.5)
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
