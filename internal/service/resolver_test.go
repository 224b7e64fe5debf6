package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seracourt/ripple/internal/domain"
	"github.com/seracourt/ripple/internal/embedding"
)

func newTestResolver() (*EntityResolver, *mockEntityStore) {
	entities := newMockEntityStore()
	resolver := NewEntityResolver(entities, embedding.NewMockClient(), zap.NewNop())
	return resolver, entities
}

func TestResolveExactNameMatch(t *testing.T) {
	resolver, entities := newTestResolver()
	userID := uuid.New()

	existing := &domain.Entity{UserID: userID, Name: "Sarah Chen", EntityType: domain.EntityPerson}
	if err := entities.Create(context.Background(), existing); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := resolver.Resolve(context.Background(), userID,
		domain.ExtractedEntity{Name: "sarah chen", EntityType: domain.EntityPerson})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != existing.ID {
		t.Errorf("resolved to %s, want existing %s", got.ID, existing.ID)
	}
	if n := len(entities.entities); n != 1 {
		t.Errorf("entity count = %d, want 1; exact match must not create", n)
	}
}

func TestResolveAliasMatch(t *testing.T) {
	resolver, entities := newTestResolver()
	userID := uuid.New()

	existing := &domain.Entity{
		UserID:     userID,
		Name:       "Kubernetes",
		EntityType: domain.EntityTool,
		Aliases:    []string{"k8s"},
	}
	if err := entities.Create(context.Background(), existing); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := resolver.Resolve(context.Background(), userID,
		domain.ExtractedEntity{Name: "K8s", EntityType: domain.EntityTool})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != existing.ID {
		t.Errorf("resolved to %s, want existing %s", got.ID, existing.ID)
	}
}

func TestResolveEmbeddingMatchAddsAlias(t *testing.T) {
	resolver, entities := newTestResolver()
	userID := uuid.New()

	existing := &domain.Entity{UserID: userID, Name: "Sarah Chen", EntityType: domain.EntityPerson}
	if err := entities.Create(context.Background(), existing); err != nil {
		t.Fatalf("seed: %v", err)
	}
	entities.similarEntities = []domain.Entity{*entities.entities[existing.ID]}

	got, err := resolver.Resolve(context.Background(), userID,
		domain.ExtractedEntity{Name: "Sarah", EntityType: domain.EntityPerson})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != existing.ID {
		t.Errorf("resolved to %s, want existing %s", got.ID, existing.ID)
	}

	stored, err := entities.GetByID(context.Background(), existing.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	found := false
	for _, a := range stored.Aliases {
		if a == "Sarah" {
			found = true
		}
	}
	if !found {
		t.Errorf("aliases = %v, want to include the new surface form", stored.Aliases)
	}
	if n := len(entities.entities); n != 1 {
		t.Errorf("entity count = %d, want 1; fuzzy match must not create", n)
	}
}

func TestResolveCreatesNewEntityWithEmbedding(t *testing.T) {
	resolver, entities := newTestResolver()
	userID := uuid.New()

	got, err := resolver.Resolve(context.Background(), userID,
		domain.ExtractedEntity{Name: "Acme Corp", EntityType: domain.EntityOrganization})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID == uuid.Nil {
		t.Fatal("new entity has no ID")
	}
	if got.Name != "Acme Corp" || got.EntityType != domain.EntityOrganization {
		t.Errorf("created %q/%s, want Acme Corp/organization", got.Name, got.EntityType)
	}
	if len(got.Embedding) == 0 {
		t.Error("new entity created without a name embedding")
	}
	if n := len(entities.entities); n != 1 {
		t.Errorf("entity count = %d, want 1", n)
	}
}

func TestLinkEntitiesRecordsMentions(t *testing.T) {
	resolver, entities := newTestResolver()
	userID := uuid.New()
	memoryID := uuid.New()

	resolved := resolver.LinkEntities(context.Background(), userID, memoryID, []domain.ExtractedEntity{
		{Name: "Sarah", EntityType: domain.EntityPerson, Role: domain.MentionSubject},
		{Name: "Berlin", EntityType: domain.EntityLocation, Role: "narrator"}, // unknown role
	})

	if len(resolved) != 2 {
		t.Fatalf("resolved %d entities, want 2", len(resolved))
	}
	if len(entities.mentions) != 2 {
		t.Fatalf("recorded %d mentions, want 2", len(entities.mentions))
	}
	for _, m := range entities.mentions {
		if m.MemoryID != memoryID {
			t.Errorf("mention bound to memory %s, want %s", m.MemoryID, memoryID)
		}
	}
	if entities.mentions[0].MentionType != domain.MentionSubject {
		t.Errorf("first mention type = %s, want subject", entities.mentions[0].MentionType)
	}
	if entities.mentions[1].MentionType != domain.MentionContext {
		t.Errorf("unknown role normalized to %s, want context", entities.mentions[1].MentionType)
	}
}
