package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
)

const mockDimensions = 1536

// MockClient produces deterministic unit-length embeddings seeded from the
// input text. Identical inputs embed identically, so similarity assertions
// in tests are stable without network access.
type MockClient struct {
	Calls []string
	Err   error
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (c *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	c.Calls = append(c.Calls, text)
	if c.Err != nil {
		return nil, c.Err
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, mockDimensions)
	var norm float64
	for i := range vec {
		v := rng.Float64()*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}

	return vec, nil
}
