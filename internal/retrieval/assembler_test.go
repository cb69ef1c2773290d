package retrieval

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/complyassist/backend/internal/knowledge"
	"github.com/complyassist/backend/internal/storage/models"
	"github.com/complyassist/backend/internal/vector/milvus"
	"github.com/complyassist/backend/pkg/config"
)

func testAssembler() *Assembler {
	classifier := knowledge.NewClassifier(config.TierConfig{
		InternalSecureKeywords:    []string{"audit", "criteria"},
		ExternalAwarenessKeywords: []string{"threat", "advisory"},
	})
	return NewAssembler(nil, nil, nil, classifier, config.RetrievalConfig{
		MaxVariants:       6,
		TopKPerVariant:    10,
		GeneralSectionCap: 2,
		FallbackScore:     0.5,
	})
}

func TestExpandQuery(t *testing.T) {
	a := testAssembler()

	variants := a.expandQuery("Badge Access Controls", "MPS 7", "")

	if len(variants) > 6 {
		t.Fatalf("variant cap exceeded: %d", len(variants))
	}
	if variants[0] != "Badge Access Controls" {
		t.Errorf("first variant should be the raw query, got %q", variants[0])
	}

	seen := map[string]bool{}
	for _, v := range variants {
		if seen[v] {
			t.Errorf("duplicate variant %q", v)
		}
		seen[v] = true
	}

	if !seen["badge access controls"] {
		t.Error("missing lowercase variant")
	}
	if !seen["Badge Access Controls requirements"] {
		t.Error("missing requirements variant")
	}
	if !seen["MPS 7"] {
		t.Error("missing target item variant")
	}
}

func TestExpandQueryDomainVariant(t *testing.T) {
	a := testAssembler()

	variants := a.expandQuery("badge audits", "", "access control")

	var found bool
	for _, v := range variants {
		if v == "access control badge audits" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing domain-anchored variant in %v", variants)
	}
}

func TestExpandQueryIdempotent(t *testing.T) {
	a := testAssembler()

	first := a.expandQuery("incident response", "", "")
	second := a.expandQuery("incident response", "", "")

	if len(first) != len(second) {
		t.Fatalf("variant counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("variant %d differs: %q vs %q", i, first[i], second[i])
		}
	}
}

func TestRerank(t *testing.T) {
	chunks := []scoredChunk{
		{SearchResult: milvus.SearchResult{ChunkID: "a"}, score: 0.9},
		{SearchResult: milvus.SearchResult{ChunkID: "b"}, score: 0.4, itemSpecific: true},
		{SearchResult: milvus.SearchResult{ChunkID: "c"}, score: 0.7},
		{SearchResult: milvus.SearchResult{ChunkID: "d"}, score: 0.8, itemSpecific: true},
	}

	rerank(chunks)

	gotOrder := []string{chunks[0].ChunkID, chunks[1].ChunkID, chunks[2].ChunkID, chunks[3].ChunkID}
	wantOrder := []string{"d", "b", "a", "c"}
	for i := range wantOrder {
		if gotOrder[i] != wantOrder[i] {
			t.Fatalf("order = %v, want %v", gotOrder, wantOrder)
		}
	}
}

func TestBuildContextBlockEmpty(t *testing.T) {
	a := testAssembler()

	if got := a.buildContextBlock(nil); got != NoRelevantContent {
		t.Errorf("empty block = %q, want sentinel", got)
	}
}

func TestBuildContextBlockSections(t *testing.T) {
	a := testAssembler()

	chunks := []scoredChunk{
		{SearchResult: milvus.SearchResult{ChunkID: "1", Content: "Badge readers at MPS 7 doors.", DocumentTitle: "Site Guide"}, itemSpecific: true, tier: knowledge.TierOrgContext},
		{SearchResult: milvus.SearchResult{ChunkID: "2", Content: "Audit criteria require quarterly review.", DocumentTitle: "Audit Criteria"}, tier: knowledge.TierInternalSecure},
		{SearchResult: milvus.SearchResult{ChunkID: "3", Content: "Threat advisory on credential stuffing.", DocumentTitle: "Advisory 44"}, tier: knowledge.TierExternalAwareness},
		{SearchResult: milvus.SearchResult{ChunkID: "4", Content: "Office floor plan.", DocumentTitle: "Facilities"}, tier: knowledge.TierOrgContext},
		{SearchResult: milvus.SearchResult{ChunkID: "5", Content: "Cafeteria menu.", DocumentTitle: "Facilities"}, tier: knowledge.TierOrgContext},
		{SearchResult: milvus.SearchResult{ChunkID: "6", Content: "Parking rules.", DocumentTitle: "Facilities"}, tier: knowledge.TierOrgContext},
	}

	block := a.buildContextBlock(chunks)

	for _, heading := range []string{"Item-Specific Guidance", "Authoritative References", "Framework Definitions", "General Organizational Context"} {
		if !strings.Contains(block, "## "+heading) {
			t.Errorf("missing section %q", heading)
		}
	}

	idxItem := strings.Index(block, "Item-Specific Guidance")
	idxAuth := strings.Index(block, "Authoritative References")
	idxGeneral := strings.Index(block, "General Organizational Context")
	if !(idxItem < idxAuth && idxAuth < idxGeneral) {
		t.Error("sections out of order")
	}

	// General section capped at 2.
	if strings.Contains(block, "Parking rules.") {
		t.Error("general section cap not applied")
	}
	if !strings.Contains(block, "Office floor plan.") || !strings.Contains(block, "Cafeteria menu.") {
		t.Error("general section missing capped entries")
	}
}

func TestMatchesItem(t *testing.T) {
	byTag := scoredChunk{SearchResult: milvus.SearchResult{Tags: []string{"MPS 7"}, Content: "badge policy"}}
	if !matchesItem(byTag, "mps 7") {
		t.Error("tag match failed")
	}

	byContent := scoredChunk{SearchResult: milvus.SearchResult{Content: "Coverage for MPS 7 includes door alarms."}}
	if !matchesItem(byContent, "MPS 7") {
		t.Error("content match failed")
	}

	miss := scoredChunk{SearchResult: milvus.SearchResult{Tags: []string{"MPS 12"}, Content: "unrelated"}}
	if matchesItem(miss, "MPS 7") {
		t.Error("false positive item match")
	}
}

type fakeEmbedder struct{}

func (fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

// fakeSearcher hands out one result per call, cycling through scores so the
// same chunk surfaces with different similarities across query variants.
type fakeSearcher struct {
	mu     sync.Mutex
	calls  int
	scores []float32
	extra  []milvus.SearchResult
}

func (f *fakeSearcher) Search(ctx context.Context, organizationID string, queryEmbedding []float32, topK int) ([]milvus.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.scores) == 0 {
		return nil, nil
	}
	score := f.scores[f.calls%len(f.scores)]
	f.calls++

	results := []milvus.SearchResult{{
		ChunkID:        "c1",
		Content:        "Quarterly badge audit procedure.",
		DocumentID:     "doc1",
		OrganizationID: organizationID,
		DocumentTitle:  "Audit Runbook",
		Score:          score,
	}}
	return append(results, f.extra...), nil
}

type fakeStore struct {
	completed int
	chunks    []models.Chunk
}

func (f *fakeStore) SearchChunksByKeyword(organizationID, term string, limit int) ([]models.Chunk, error) {
	return f.chunks, nil
}

func (f *fakeStore) CountCompletedDocuments(organizationID string) (int, error) {
	return f.completed, nil
}

func fakeAssembler(db chunkStore, v vectorSearcher) *Assembler {
	classifier := knowledge.NewClassifier(config.TierConfig{
		InternalSecureKeywords:    []string{"audit", "criteria"},
		ExternalAwarenessKeywords: []string{"threat", "advisory"},
	})
	return &Assembler{
		db:         db,
		vectorDB:   v,
		llmClient:  fakeEmbedder{},
		classifier: classifier,
		cfg: config.RetrievalConfig{
			MaxVariants:       6,
			TopKPerVariant:    10,
			GeneralSectionCap: 2,
			FallbackScore:     0.5,
		},
	}
}

func TestAssembleKeepsBestVariantScore(t *testing.T) {
	searcher := &fakeSearcher{scores: []float32{0.2, 0.9, 0.4, 0.1, 0.3}}
	a := fakeAssembler(&fakeStore{}, searcher)

	result, err := a.Assemble(context.Background(), Request{
		Query:          "incident response",
		OrganizationID: "org1",
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	if len(result.Sources) != 1 {
		t.Fatalf("got %d sources, want 1 after dedup", len(result.Sources))
	}
	if result.Sources[0].Score != 0.9 {
		t.Errorf("score = %v, want the best across variants", result.Sources[0].Score)
	}
}

func TestAssembleSortsSimilarityDescending(t *testing.T) {
	searcher := &fakeSearcher{
		scores: []float32{0.6},
		extra: []milvus.SearchResult{{
			ChunkID:       "c2",
			Content:       "Visitor log retention guidance.",
			DocumentID:    "doc2",
			DocumentTitle: "Front Desk Guide",
			Score:         0.8,
		}},
	}
	a := fakeAssembler(&fakeStore{}, searcher)

	result, err := a.Assemble(context.Background(), Request{
		Query:          "incident response",
		OrganizationID: "org1",
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	if len(result.Sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(result.Sources))
	}
	if result.Sources[0].ChunkID != "c2" || result.Sources[1].ChunkID != "c1" {
		t.Errorf("sources out of order: %s, %s", result.Sources[0].ChunkID, result.Sources[1].ChunkID)
	}
}

func TestAssembleWarnsOnMissingItemCoverage(t *testing.T) {
	searcher := &fakeSearcher{scores: []float32{0.7}}
	a := fakeAssembler(&fakeStore{completed: 10}, searcher)

	result, err := a.Assemble(context.Background(), Request{
		Query:          "badge audits",
		OrganizationID: "org1",
		TargetItem:     "MPS 7",
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	if result.Warning == "" {
		t.Fatal("expected a coverage warning when nothing matches the target item")
	}
	if !strings.Contains(result.Warning, "MPS 7") {
		t.Errorf("warning should name the item: %q", result.Warning)
	}
	if result.ContextBlock == NoRelevantContent {
		t.Error("general results should still produce a context block")
	}
}

func TestAssembleNoWarningWhenItemCovered(t *testing.T) {
	searcher := &fakeSearcher{
		scores: []float32{0.7},
		extra: []milvus.SearchResult{{
			ChunkID:       "c2",
			Content:       "MPS 7 requires badge readers on all perimeter doors.",
			DocumentID:    "doc2",
			DocumentTitle: "Physical Security Standard",
			Score:         0.8,
		}},
	}
	a := fakeAssembler(&fakeStore{completed: 10}, searcher)

	result, err := a.Assemble(context.Background(), Request{
		Query:          "badge audits",
		OrganizationID: "org1",
		TargetItem:     "MPS 7",
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	if result.Warning != "" {
		t.Errorf("unexpected warning: %q", result.Warning)
	}
}

func TestAssembleNoWarningWithoutProcessedDocuments(t *testing.T) {
	searcher := &fakeSearcher{}
	a := fakeAssembler(&fakeStore{completed: 0}, searcher)

	result, err := a.Assemble(context.Background(), Request{
		Query:          "badge audits",
		OrganizationID: "org1",
		TargetItem:     "MPS 7",
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	if result.Warning != "" {
		t.Errorf("no processed documents should mean no warning, got %q", result.Warning)
	}
}

func TestAssembleKeywordFallbackScore(t *testing.T) {
	searcher := &fakeSearcher{}
	store := &fakeStore{chunks: []models.Chunk{{
		ID:             "k1",
		OrganizationID: "org1",
		DocumentID:     "doc1",
		Content:        "Escalation threshold is five failed attempts.",
	}}}
	a := fakeAssembler(store, searcher)

	result, err := a.Assemble(context.Background(), Request{
		Query:          "escalation threshold",
		OrganizationID: "org1",
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	if len(result.Sources) != 1 {
		t.Fatalf("got %d sources, want 1 from fallback", len(result.Sources))
	}
	if result.Sources[0].Score != 0.5 {
		t.Errorf("fallback score = %v, want 0.5", result.Sources[0].Score)
	}
}

func TestSignificantTerms(t *testing.T) {
	terms := significantTerms("What is the threshold for escalation?")

	want := map[string]bool{"threshold": false, "escalation": false}
	for _, term := range terms {
		if _, ok := want[term]; ok {
			want[term] = true
		}
		if term == "the" || term == "what" || term == "is" {
			t.Errorf("stop word %q survived", term)
		}
	}
	for term, found := range want {
		if !found {
			t.Errorf("term %q missing from %v", term, terms)
		}
	}
}
