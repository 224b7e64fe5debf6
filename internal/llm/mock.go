package llm

import (
	"context"

	"github.com/seracourt/ripple/internal/domain"
)

// MockClient is a configurable LLM client for testing.
// Set the response fields to control what each method returns.
type MockClient struct {
	ExtractFactsResponse         []domain.ExtractedFact
	ExtractFactsError            error
	ExtractEntitiesResponse      []domain.ExtractedEntity
	ExtractEntitiesError         error
	DetectRelationshipsResponse  []domain.DetectedRelationship
	DetectRelationshipsError     error
	CheckContradictionResponse   bool
	CheckContradictionError      error
	GenerateAlternativesResponse []string
	GenerateAlternativesError    error

	// Call tracking for assertions
	ExtractFactsCalls         []string
	ExtractEntitiesCalls      []string
	DetectRelationshipsCalls  []string
	CheckContradictionCalls   []struct{ A, B string }
	GenerateAlternativesCalls []string
}

func NewMockClient() *MockClient {
	return &MockClient{
		ExtractFactsResponse: []domain.ExtractedFact{},
		GenerateAlternativesResponse: []string{
			"Proceed as originally requested",
			"Adjust the request before executing",
		},
	}
}

func (c *MockClient) ExtractFacts(ctx context.Context, content string) ([]domain.ExtractedFact, error) {
	c.ExtractFactsCalls = append(c.ExtractFactsCalls, content)
	if c.ExtractFactsError != nil {
		return nil, c.ExtractFactsError
	}
	return c.ExtractFactsResponse, nil
}

func (c *MockClient) ExtractEntities(ctx context.Context, content string) ([]domain.ExtractedEntity, error) {
	c.ExtractEntitiesCalls = append(c.ExtractEntitiesCalls, content)
	if c.ExtractEntitiesError != nil {
		return nil, c.ExtractEntitiesError
	}
	return c.ExtractEntitiesResponse, nil
}

func (c *MockClient) DetectRelationships(ctx context.Context, content string, similar []domain.Memory) ([]domain.DetectedRelationship, error) {
	c.DetectRelationshipsCalls = append(c.DetectRelationshipsCalls, content)
	if c.DetectRelationshipsError != nil {
		return nil, c.DetectRelationshipsError
	}
	return c.DetectRelationshipsResponse, nil
}

func (c *MockClient) CheckContradiction(ctx context.Context, stmtA, stmtB string) (bool, error) {
	c.CheckContradictionCalls = append(c.CheckContradictionCalls, struct{ A, B string }{stmtA, stmtB})
	if c.CheckContradictionError != nil {
		return false, c.CheckContradictionError
	}
	return c.CheckContradictionResponse, nil
}

func (c *MockClient) GenerateAlternatives(ctx context.Context, action string, evidence []string) ([]string, error) {
	c.GenerateAlternativesCalls = append(c.GenerateAlternativesCalls, action)
	if c.GenerateAlternativesError != nil {
		return nil, c.GenerateAlternativesError
	}
	return c.GenerateAlternativesResponse, nil
}

// Reset clears all recorded calls and resets responses to defaults.
func (c *MockClient) Reset() {
	c.ExtractFactsResponse = []domain.ExtractedFact{}
	c.ExtractFactsError = nil
	c.ExtractEntitiesResponse = nil
	c.ExtractEntitiesError = nil
	c.DetectRelationshipsResponse = nil
	c.DetectRelationshipsError = nil
	c.CheckContradictionResponse = false
	c.CheckContradictionError = nil
	c.GenerateAlternativesResponse = []string{
		"Proceed as originally requested",
		"Adjust the request before executing",
	}
	c.GenerateAlternativesError = nil
	c.ExtractFactsCalls = nil
	c.ExtractEntitiesCalls = nil
	c.DetectRelationshipsCalls = nil
	c.CheckContradictionCalls = nil
	c.GenerateAlternativesCalls = nil
}
