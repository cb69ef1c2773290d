// Package retrieval turns a compliance question into an assembled context
// block: query expansion, vector search fan-out, deduplication, reranking
// and tier-aware sectioning.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/complyassist/backend/internal/knowledge"
	"github.com/complyassist/backend/internal/llm"
	"github.com/complyassist/backend/internal/metrics"
	"github.com/complyassist/backend/internal/storage/models"
	"github.com/complyassist/backend/internal/storage/sqlite"
	"github.com/complyassist/backend/internal/vector/milvus"
	"github.com/complyassist/backend/pkg/config"
	"github.com/complyassist/backend/pkg/logger"
)

// NoRelevantContent is the sentinel context block returned when nothing
// matched. Downstream prompt construction checks for it verbatim.
const NoRelevantContent = "no relevant content found"

// The assembler talks to its backends through narrow interfaces so the
// retrieval flow can run against in-memory fakes.
type queryEmbedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type vectorSearcher interface {
	Search(ctx context.Context, organizationID string, queryEmbedding []float32, topK int) ([]milvus.SearchResult, error)
}

type chunkStore interface {
	SearchChunksByKeyword(organizationID, term string, limit int) ([]models.Chunk, error)
	CountCompletedDocuments(organizationID string) (int, error)
}

type Assembler struct {
	db         chunkStore
	vectorDB   vectorSearcher
	llmClient  queryEmbedder
	classifier *knowledge.Classifier
	cfg        config.RetrievalConfig
}

type Request struct {
	Query          string
	OrganizationID string
	// TargetItem is an optional practice-statement reference like "MPS 7"
	// that the caller wants prioritized.
	TargetItem string
	// Domain optionally narrows the question to a compliance domain such
	// as "access control"; it anchors an extra query variant.
	Domain string
}

type Result struct {
	ContextBlock string
	Sources      []Source
	Warning      string
	LatencyMS    int
}

type Source struct {
	ChunkID       string
	DocumentID    string
	DocumentTitle string
	Score         float64
	Tier          knowledge.Tier
	ItemSpecific  bool
}

type scoredChunk struct {
	milvus.SearchResult
	score        float64
	tier         knowledge.Tier
	itemSpecific bool
}

func NewAssembler(db *sqlite.Client, vectorDB *milvus.Client, llmClient *llm.Client, classifier *knowledge.Classifier, cfg config.RetrievalConfig) *Assembler {
	return &Assembler{
		db:         db,
		vectorDB:   vectorDB,
		llmClient:  llmClient,
		classifier: classifier,
		cfg:        cfg,
	}
}

// Assemble runs the full retrieval pass for one question.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	variants := a.expandQuery(req.Query, req.TargetItem, req.Domain)
	logger.Info("Retrieving context",
		zap.String("organization_id", req.OrganizationID),
		zap.Int("variants", len(variants)),
		zap.String("target_item", req.TargetItem),
		zap.String("domain", req.Domain),
	)

	merged := a.searchVariants(ctx, req.OrganizationID, variants)

	if len(merged) == 0 {
		merged = a.keywordFallback(req.OrganizationID, req.Query)
		if len(merged) > 0 {
			metrics.KeywordFallbackTriggered.Inc()
			logger.Info("Keyword fallback produced results",
				zap.Int("results", len(merged)),
			)
		}
	}

	for i := range merged {
		merged[i].tier = a.classifier.Classify(merged[i].DocumentTitle, merged[i].Tags)
		merged[i].itemSpecific = req.TargetItem != "" && matchesItem(merged[i], req.TargetItem)
	}

	rerank(merged)
	metrics.RetrievalResultsCount.Observe(float64(len(merged)))

	result := &Result{
		ContextBlock: a.buildContextBlock(merged),
		Sources:      sources(merged),
	}

	if req.TargetItem != "" && !hasItemSpecific(merged) {
		completed, err := a.db.CountCompletedDocuments(req.OrganizationID)
		if err != nil {
			logger.Warn("Completed document count failed", zap.Error(err))
		} else if completed > 0 {
			result.Warning = fmt.Sprintf(
				"No content specific to %s was found although %d processed documents exist; coverage for this item may be missing.",
				req.TargetItem, completed,
			)
		}
	}

	result.LatencyMS = int(time.Since(start).Milliseconds())

	for _, s := range result.Sources {
		logger.Debug("Context source",
			zap.String("chunk_id", s.ChunkID),
			zap.String("document", s.DocumentTitle),
			zap.Float64("score", s.Score),
			zap.String("tier", string(s.Tier)),
		)
	}
	logger.Info("Context assembled",
		zap.Int("sources", len(result.Sources)),
		zap.Int("latency_ms", result.LatencyMS),
	)

	return result, nil
}

// expandQuery produces the variant set actually searched: the raw query,
// normalized and reframed forms, and target-item or domain anchored forms.
// The list is capped and deduplicated.
func (a *Assembler) expandQuery(query, targetItem, domain string) []string {
	trimmed := strings.TrimSpace(query)

	candidates := []string{
		trimmed,
		strings.ToLower(trimmed),
		trimmed + " requirements",
		trimmed + " criteria",
		trimmed + " audit evidence",
	}
	if targetItem != "" {
		candidates = append(candidates, targetItem, targetItem+" "+trimmed)
	}
	if domain = strings.TrimSpace(domain); domain != "" {
		candidates = append(candidates, domain+" "+trimmed)
	}

	seen := make(map[string]struct{})
	var variants []string
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		variants = append(variants, c)
		if len(variants) >= a.cfg.MaxVariants {
			break
		}
	}
	return variants
}

// searchVariants embeds and searches each variant concurrently, then merges
// by chunk ID keeping the best score. A variant whose embedding or search
// fails is logged and skipped rather than failing the whole pass.
func (a *Assembler) searchVariants(ctx context.Context, organizationID string, variants []string) []scoredChunk {
	var mu sync.Mutex
	best := make(map[string]scoredChunk)
	order := make(map[string]int)
	next := 0

	g, gctx := errgroup.WithContext(ctx)
	for _, variant := range variants {
		variant := variant
		g.Go(func() error {
			embedding, err := a.llmClient.GenerateEmbedding(gctx, variant)
			if err != nil {
				logger.Warn("Query variant embedding failed",
					zap.String("variant", variant),
					zap.Error(err),
				)
				return nil
			}

			results, err := a.vectorDB.Search(gctx, organizationID, embedding, a.cfg.TopKPerVariant)
			if err != nil {
				logger.Warn("Vector search failed",
					zap.String("variant", variant),
					zap.Error(err),
				)
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			for _, r := range results {
				existing, ok := best[r.ChunkID]
				if !ok {
					order[r.ChunkID] = next
					next++
				}
				if !ok || float64(r.Score) > existing.score {
					best[r.ChunkID] = scoredChunk{SearchResult: r, score: float64(r.Score)}
				}
			}
			return nil
		})
	}
	g.Wait()

	merged := make([]scoredChunk, 0, len(best))
	for _, sc := range best {
		merged = append(merged, sc)
	}
	// Restore arrival order before rerank so equal scores stay stable.
	sort.SliceStable(merged, func(i, j int) bool {
		return order[merged[i].ChunkID] < order[merged[j].ChunkID]
	})
	return merged
}

// keywordFallback runs a LIKE search over the chunk store using the
// significant query terms and assigns a flat neutral score.
func (a *Assembler) keywordFallback(organizationID, query string) []scoredChunk {
	var merged []scoredChunk
	seen := make(map[string]struct{})

	for _, term := range significantTerms(query) {
		chunks, err := a.db.SearchChunksByKeyword(organizationID, term, a.cfg.TopKPerVariant)
		if err != nil {
			logger.Warn("Keyword fallback search failed",
				zap.String("term", term),
				zap.Error(err),
			)
			continue
		}
		for _, ch := range chunks {
			if _, ok := seen[ch.ID]; ok {
				continue
			}
			seen[ch.ID] = struct{}{}
			merged = append(merged, scoredChunk{
				SearchResult: milvus.SearchResult{
					ChunkID:        ch.ID,
					Content:        ch.Content,
					DocumentID:     ch.DocumentID,
					OrganizationID: ch.OrganizationID,
					SectionLabel:   ch.SectionLabel,
					Tags:           ch.Tags,
				},
				score: a.cfg.FallbackScore,
			})
		}
	}
	return merged
}

// significantTerms drops stop words and short tokens.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "what": {}, "how": {},
	"are": {}, "our": {}, "who": {}, "does": {}, "is": {}, "a": {},
	"an": {}, "of": {}, "to": {}, "in": {}, "do": {}, "we": {},
}

func significantTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,?!;:\"'()")
		if len(w) < 3 {
			continue
		}
		if _, ok := stopWords[w]; ok {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

// rerank orders item-specific chunks ahead of everything else, then by
// score descending. The sort is stable so merge order breaks ties.
func rerank(chunks []scoredChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].itemSpecific != chunks[j].itemSpecific {
			return chunks[i].itemSpecific
		}
		return chunks[i].score > chunks[j].score
	})
}

func matchesItem(sc scoredChunk, targetItem string) bool {
	target := strings.ToLower(targetItem)
	for _, tag := range sc.Tags {
		if strings.ToLower(tag) == target {
			return true
		}
	}
	return strings.Contains(strings.ToLower(sc.Content), target)
}

func hasItemSpecific(chunks []scoredChunk) bool {
	for _, sc := range chunks {
		if sc.itemSpecific {
			return true
		}
	}
	return false
}

// buildContextBlock renders the tiered sections. The general section is
// capped so organizational filler cannot crowd out authoritative content.
func (a *Assembler) buildContextBlock(chunks []scoredChunk) string {
	if len(chunks) == 0 {
		return NoRelevantContent
	}

	var itemSpecific, authoritative, frameworks, general []scoredChunk
	for _, sc := range chunks {
		switch {
		case sc.itemSpecific:
			itemSpecific = append(itemSpecific, sc)
		case sc.tier == knowledge.TierInternalSecure:
			authoritative = append(authoritative, sc)
		case sc.tier == knowledge.TierExternalAwareness:
			frameworks = append(frameworks, sc)
		default:
			general = append(general, sc)
		}
	}

	if len(general) > a.cfg.GeneralSectionCap {
		general = general[:a.cfg.GeneralSectionCap]
	}

	var b strings.Builder
	writeSection(&b, "Item-Specific Guidance", itemSpecific)
	writeSection(&b, "Authoritative References", authoritative)
	writeSection(&b, "Framework Definitions", frameworks)
	writeSection(&b, "General Organizational Context", general)

	block := strings.TrimSpace(b.String())
	if block == "" {
		return NoRelevantContent
	}
	return block
}

func writeSection(b *strings.Builder, heading string, chunks []scoredChunk) {
	if len(chunks) == 0 {
		return
	}

	fmt.Fprintf(b, "## %s\n\n", heading)
	for _, sc := range chunks {
		title := sc.DocumentTitle
		if title == "" {
			title = "untitled document"
		}
		fmt.Fprintf(b, "[%s", title)
		if sc.SectionLabel != "" {
			fmt.Fprintf(b, " / %s", sc.SectionLabel)
		}
		fmt.Fprintf(b, "]\n%s\n\n", strings.TrimSpace(sc.Content))
	}
}

func sources(chunks []scoredChunk) []Source {
	out := make([]Source, 0, len(chunks))
	for _, sc := range chunks {
		out = append(out, Source{
			ChunkID:       sc.ChunkID,
			DocumentID:    sc.DocumentID,
			DocumentTitle: sc.DocumentTitle,
			Score:         sc.score,
			Tier:          sc.tier,
			ItemSpecific:  sc.itemSpecific,
		})
	}
	return out
}
