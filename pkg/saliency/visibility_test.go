package saliency_test

import (
	"context"
	"testing"

	"github.com/storyweaver/saliency-go/pkg/knowledge"
	"github.com/storyweaver/saliency-go/pkg/saliency"
)

// stubCounter assigns fixed token costs by element name
type stubCounter struct {
	costs    map[string]int
	fallback int
}

func (c *stubCounter) Count(text string) int {
	return len(text) / 4
}

func (c *stubCounter) CountElement(e *knowledge.StoryKnowledgeElement) int {
	if v, ok := c.costs[e.Name]; ok {
		return v
	}
	if c.fallback > 0 {
		return c.fallback
	}
	return 10
}

// stubVectors serves embeddings from a fixed map keyed by text
type stubVectors struct {
	vecs  map[string][]float32
	err   error
	calls int
}

func (s *stubVectors) Get(ctx context.Context, key, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vecs[text]; ok {
		return v, nil
	}
	return []float32{1, 0}, nil
}

func testConfig(opts ...saliency.ConfigOption) *saliency.Config {
	base := []saliency.ConfigOption{
		saliency.WithTokenCounter(&stubCounter{}),
	}
	return saliency.NewConfig(append(base, opts...)...)
}

func TestFilterVisible_DropsHiddenElements(t *testing.T) {
	elements := []*knowledge.StoryKnowledgeElement{
		knowledge.NewElement("Elara", knowledge.KindCharacter, knowledge.WithID("a")),
		knowledge.NewElement("Secret twist", knowledge.KindOutlineEntry,
			knowledge.WithID("b"), knowledge.WithVisible(false)),
		knowledge.NewElement("Bram", knowledge.KindCharacter, knowledge.WithID("c")),
	}

	visible := saliency.FilterVisible(elements)

	if len(visible) != 2 {
		t.Fatalf("expected 2 visible elements, got %d", len(visible))
	}
	for _, e := range visible {
		if e.ID == "b" {
			t.Fatal("hidden element leaked through the filter")
		}
	}
}

func TestFilterVisible_StripsHiddenTraits(t *testing.T) {
	elements := []*knowledge.StoryKnowledgeElement{
		knowledge.NewElement("Elara", knowledge.KindCharacter,
			knowledge.WithID("a"),
			knowledge.WithTrait("motivation", "find her homeland", true),
			knowledge.WithTrait("secret", "she destroyed it", false),
		),
	}

	visible := saliency.FilterVisible(elements)

	if len(visible) != 1 {
		t.Fatalf("expected 1 visible element, got %d", len(visible))
	}
	if len(visible[0].Traits) != 1 {
		t.Fatalf("expected 1 visible trait, got %d", len(visible[0].Traits))
	}
	if visible[0].Traits[0].Name != "motivation" {
		t.Fatalf("expected motivation trait to survive, got %q", visible[0].Traits[0].Name)
	}
}

func TestFilterVisible_DoesNotMutateInput(t *testing.T) {
	original := knowledge.NewElement("Elara", knowledge.KindCharacter,
		knowledge.WithID("a"),
		knowledge.WithTrait("secret", "hidden", false),
	)

	visible := saliency.FilterVisible([]*knowledge.StoryKnowledgeElement{original})

	if len(original.Traits) != 1 {
		t.Fatal("input element was mutated by the filter")
	}
	if len(visible) == 1 && len(visible[0].Traits) != 0 {
		t.Fatal("hidden trait survived on the filtered copy")
	}
}

func TestFilterVisible_SkipsNil(t *testing.T) {
	elements := []*knowledge.StoryKnowledgeElement{
		nil,
		knowledge.NewElement("Elara", knowledge.KindCharacter, knowledge.WithID("a")),
	}

	visible := saliency.FilterVisible(elements)

	if len(visible) != 1 {
		t.Fatalf("expected 1 visible element, got %d", len(visible))
	}
}

func TestFilterVisible_EmptyInput(t *testing.T) {
	if got := saliency.FilterVisible(nil); len(got) != 0 {
		t.Fatalf("expected empty result, got %d elements", len(got))
	}
}
