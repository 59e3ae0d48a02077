package saliency_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/storyweaver/saliency-go/pkg/core/errors"
	"github.com/storyweaver/saliency-go/pkg/knowledge"
	"github.com/storyweaver/saliency-go/pkg/saliency"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func scoreOne(t *testing.T, calc *saliency.Calculator, sourceText string, e *knowledge.StoryKnowledgeElement) saliency.ScoredCandidate {
	t.Helper()
	req := &saliency.ContextRequest{
		SourceText:  sourceText,
		SnapshotID:  "snap",
		TokenBudget: 100,
		Mode:        saliency.ModeOptimized,
	}
	candidates, _, err := calc.ScoreAll(context.Background(), req, []*knowledge.StoryKnowledgeElement{e})
	if err != nil {
		t.Fatalf("ScoreAll failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	return candidates[0]
}

func TestCalculator_LexicalMentionsIncreaseScore(t *testing.T) {
	calc := saliency.NewCalculator(nil, testConfig())
	e := knowledge.NewElement("Elara", knowledge.KindCharacter, knowledge.WithID("a"))

	none := scoreOne(t, calc, "The lighthouse stood alone.", e)
	one := scoreOne(t, calc, "Elara watched the lighthouse.", e)
	three := scoreOne(t, calc, "Elara ran. Elara fell. Elara rose.", e)

	if none.Signals.Lexical != 0 {
		t.Fatalf("expected zero lexical signal without mentions, got %f", none.Signals.Lexical)
	}
	if one.Signals.Lexical <= none.Signals.Lexical {
		t.Fatal("one mention should score above zero mentions")
	}
	if three.Signals.Lexical <= one.Signals.Lexical {
		t.Fatal("three mentions should score above one mention")
	}
	if three.Signals.Lexical != 1.0 {
		t.Fatalf("three mentions should saturate at 1.0, got %f", three.Signals.Lexical)
	}
}

func TestCalculator_LexicalSaturation(t *testing.T) {
	calc := saliency.NewCalculator(nil, testConfig())
	e := knowledge.NewElement("Elara", knowledge.KindCharacter, knowledge.WithID("a"))

	three := scoreOne(t, calc, "Elara, Elara, Elara.", e)
	five := scoreOne(t, calc, "Elara Elara Elara Elara Elara", e)

	if three.Signals.Lexical != five.Signals.Lexical {
		t.Fatalf("lexical signal should cap at 3 mentions: %f vs %f",
			three.Signals.Lexical, five.Signals.Lexical)
	}
}

func TestCalculator_LexicalWholeWordOnly(t *testing.T) {
	calc := saliency.NewCalculator(nil, testConfig())
	e := knowledge.NewElement("Bram", knowledge.KindCharacter, knowledge.WithID("a"))

	got := scoreOne(t, calc, "The brambles grew thick around the tower.", e)

	if got.Signals.Lexical != 0 {
		t.Fatalf("substring match should not count as a mention, got %f", got.Signals.Lexical)
	}
}

func TestCalculator_LexicalMultiByteWordBoundary(t *testing.T) {
	calc := saliency.NewCalculator(nil, testConfig())
	e := knowledge.NewElement("Lin", knowledge.KindCharacter, knowledge.WithID("a"))

	// 紧贴多字节文字不算整词，边界须按完整 rune 判定
	embedded := scoreOne(t, calc, "旅人林Lin走向海边。", e)
	if embedded.Signals.Lexical != 0 {
		t.Fatalf("name embedded in multi-byte text should not count, got %f", embedded.Signals.Lexical)
	}

	separated := scoreOne(t, calc, "旅人 Lin 走向海边。", e)
	if separated.Signals.Lexical == 0 {
		t.Fatal("name delimited by spaces should count as a mention")
	}
}

func TestCalculator_LexicalCaseInsensitive(t *testing.T) {
	calc := saliency.NewCalculator(nil, testConfig())
	e := knowledge.NewElement("Elara", knowledge.KindCharacter, knowledge.WithID("a"))

	got := scoreOne(t, calc, "ELARA spoke softly. elara listened.", e)

	if got.Signals.Lexical == 0 {
		t.Fatal("mentions should match case-insensitively")
	}
}

func TestCalculator_LexicalCountsAliases(t *testing.T) {
	calc := saliency.NewCalculator(nil, testConfig())
	e := knowledge.NewElement("Elara", knowledge.KindCharacter,
		knowledge.WithID("a"),
		knowledge.WithAliases("the Cartographer"))

	byName := scoreOne(t, calc, "Elara unrolled the map.", e)
	byAlias := scoreOne(t, calc, "The Cartographer unrolled the map.", e)

	if byAlias.Signals.Lexical != byName.Signals.Lexical {
		t.Fatalf("alias mention should count like a name mention: %f vs %f",
			byAlias.Signals.Lexical, byName.Signals.Lexical)
	}
}

func TestCalculator_RecencyZeroWithoutReferences(t *testing.T) {
	calc := saliency.NewCalculator(nil, testConfig())
	e := knowledge.NewElement("Elara", knowledge.KindCharacter, knowledge.WithID("a"))

	got := scoreOne(t, calc, "", e)

	if got.Signals.Recency != 0 {
		t.Fatalf("unreferenced element should have zero recency, got %f", got.Signals.Recency)
	}
}

func TestCalculator_RecencyDecaysOverTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	calc := saliency.NewCalculator(nil, testConfig(), saliency.WithClock(fixedClock(now)))

	recent := knowledge.NewElement("Elara", knowledge.KindCharacter,
		knowledge.WithID("a"), knowledge.WithUsage(now.Add(-time.Hour), 5))
	stale := knowledge.NewElement("Elara", knowledge.KindCharacter,
		knowledge.WithID("a"), knowledge.WithUsage(now.Add(-30*24*time.Hour), 5))

	r := scoreOne(t, calc, "", recent)
	s := scoreOne(t, calc, "", stale)

	if r.Signals.Recency <= s.Signals.Recency {
		t.Fatalf("recent reference should outscore stale one: %f vs %f",
			r.Signals.Recency, s.Signals.Recency)
	}
	if s.Signals.Recency <= 0 {
		t.Fatal("familiarity floor should keep stale referenced elements above zero")
	}
}

func TestCalculator_RecencyGrowsWithReferenceCount(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	calc := saliency.NewCalculator(nil, testConfig(), saliency.WithClock(fixedClock(now)))

	few := knowledge.NewElement("Elara", knowledge.KindCharacter,
		knowledge.WithID("a"), knowledge.WithUsage(now.Add(-time.Hour), 1))
	many := knowledge.NewElement("Elara", knowledge.KindCharacter,
		knowledge.WithID("a"), knowledge.WithUsage(now.Add(-time.Hour), 20))

	f := scoreOne(t, calc, "", few)
	m := scoreOne(t, calc, "", many)

	if m.Signals.Recency <= f.Signals.Recency {
		t.Fatalf("more references should raise recency: %f vs %f",
			m.Signals.Recency, f.Signals.Recency)
	}
}

func TestCalculator_SemanticSimilarityRaisesScore(t *testing.T) {
	vectors := &stubVectors{vecs: map[string][]float32{
		"the sea rose over the charts":   {1, 0},
		"Waters beyond any drawn chart.": {1, 0}, // aligned with source
		"A keeper of forgotten names.":   {0, 1}, // orthogonal
	}}
	calc := saliency.NewCalculator(vectors, testConfig())

	sea := knowledge.NewElement("Unmapped Sea", knowledge.KindWorldElement,
		knowledge.WithID("a"), knowledge.WithSummary("Waters beyond any drawn chart."))
	keeper := knowledge.NewElement("Keeper", knowledge.KindCharacter,
		knowledge.WithID("b"), knowledge.WithSummary("A keeper of forgotten names."))

	req := &saliency.ContextRequest{
		SourceText:  "the sea rose over the charts",
		SnapshotID:  "snap",
		TokenBudget: 100,
		Mode:        saliency.ModeOptimized,
	}
	candidates, degraded, err := calc.ScoreAll(context.Background(), req,
		[]*knowledge.StoryKnowledgeElement{sea, keeper})
	if err != nil {
		t.Fatalf("ScoreAll failed: %v", err)
	}
	if degraded {
		t.Fatal("scoring should not degrade with a working vector source")
	}

	byID := map[string]saliency.ScoredCandidate{}
	for _, c := range candidates {
		byID[c.Element.ID] = c
	}
	if byID["a"].Signals.Summary <= byID["b"].Signals.Summary {
		t.Fatalf("aligned summary should outscore orthogonal one: %f vs %f",
			byID["a"].Signals.Summary, byID["b"].Signals.Summary)
	}
}

func TestCalculator_DegradesWhenEmbeddingUnavailable(t *testing.T) {
	vectors := &stubVectors{err: errors.ErrEmbeddingUnavailable}
	calc := saliency.NewCalculator(vectors, testConfig())

	e := knowledge.NewElement("Elara", knowledge.KindCharacter,
		knowledge.WithID("a"),
		knowledge.WithSummary("A mapmaker."))

	req := &saliency.ContextRequest{
		SourceText:  "Elara studied the map.",
		SnapshotID:  "snap",
		TokenBudget: 100,
		Mode:        saliency.ModeOptimized,
	}
	candidates, degraded, err := calc.ScoreAll(context.Background(), req,
		[]*knowledge.StoryKnowledgeElement{e})
	if err != nil {
		t.Fatalf("degraded scoring must not fail the request: %v", err)
	}
	if !degraded {
		t.Fatal("expected request-wide degraded flag")
	}
	if !candidates[0].Signals.Degraded {
		t.Fatal("expected per-candidate degraded flag")
	}
	if candidates[0].Signals.Summary != 0 || candidates[0].Signals.Traits != 0 {
		t.Fatal("semantic signals must be zero in degraded mode")
	}
	if candidates[0].Score <= 0 {
		t.Fatal("lexical signal should still produce a positive score in degraded mode")
	}
}

func TestCalculator_DegradedRenormalizesWeights(t *testing.T) {
	// 词法信号饱和时，降级分数应为 1（词法与新近性重新归一化，新近性为 0 时权重比恒定）
	vectors := &stubVectors{err: errors.ErrEmbeddingUnavailable}
	cfg := testConfig(saliency.WithWeights(0.3, 0.4, 0.2, 0))
	calc := saliency.NewCalculator(vectors, cfg)

	e := knowledge.NewElement("Elara", knowledge.KindCharacter, knowledge.WithID("a"))
	got := scoreOne(t, calc, "Elara Elara Elara", e)

	if got.Score != 1.0 {
		t.Fatalf("saturated lexical signal should renormalize to 1.0, got %f", got.Score)
	}
}

func TestCalculator_NilVectorSourceAlwaysDegraded(t *testing.T) {
	calc := saliency.NewCalculator(nil, testConfig())
	e := knowledge.NewElement("Elara", knowledge.KindCharacter, knowledge.WithID("a"))

	req := &saliency.ContextRequest{
		SourceText:  "Elara",
		SnapshotID:  "snap",
		TokenBudget: 100,
		Mode:        saliency.ModeOptimized,
	}
	_, degraded, err := calc.ScoreAll(context.Background(), req,
		[]*knowledge.StoryKnowledgeElement{e})
	if err != nil {
		t.Fatalf("ScoreAll failed: %v", err)
	}
	if !degraded {
		t.Fatal("nil vector source should force degraded mode")
	}
}

func TestCalculator_CancellationStopsScoring(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calc := saliency.NewCalculator(nil, testConfig())
	e := knowledge.NewElement("Elara", knowledge.KindCharacter, knowledge.WithID("a"))

	req := &saliency.ContextRequest{
		SourceText:  "Elara",
		SnapshotID:  "snap",
		TokenBudget: 100,
		Mode:        saliency.ModeOptimized,
	}
	_, _, err := calc.ScoreAll(ctx, req, []*knowledge.StoryKnowledgeElement{e})
	if !stderrors.Is(err, errors.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestCalculator_DeterministicOrdering(t *testing.T) {
	calc := saliency.NewCalculator(nil, testConfig())

	// 无信号差异，全部同分，应按 ID 升序排列
	elements := []*knowledge.StoryKnowledgeElement{
		knowledge.NewElement("Gamma", knowledge.KindCharacter, knowledge.WithID("c")),
		knowledge.NewElement("Alpha", knowledge.KindCharacter, knowledge.WithID("a")),
		knowledge.NewElement("Beta", knowledge.KindCharacter, knowledge.WithID("b")),
	}

	req := &saliency.ContextRequest{
		SourceText:  "",
		SnapshotID:  "snap",
		TokenBudget: 100,
		Mode:        saliency.ModeOptimized,
	}
	candidates, _, err := calc.ScoreAll(context.Background(), req, elements)
	if err != nil {
		t.Fatalf("ScoreAll failed: %v", err)
	}

	want := []string{"a", "b", "c"}
	for i, id := range want {
		if candidates[i].Element.ID != id {
			t.Fatalf("position %d: expected ID %q, got %q", i, id, candidates[i].Element.ID)
		}
	}
}
