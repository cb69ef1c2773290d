// Package ingestion runs the document processing pipeline: fetch, extract,
// chunk, embed, persist. Each run is stateless and scoped to one document.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/complyassist/backend/internal/embedding"
	"github.com/complyassist/backend/internal/extract"
	"github.com/complyassist/backend/internal/metrics"
	"github.com/complyassist/backend/internal/objectstore"
	"github.com/complyassist/backend/internal/storage/models"
	"github.com/complyassist/backend/internal/storage/sqlite"
	"github.com/complyassist/backend/internal/vector/milvus"
	"github.com/complyassist/backend/pkg/config"
	"github.com/complyassist/backend/pkg/logger"
)

type Processor struct {
	db         *sqlite.Client
	vectorDB   *milvus.Client
	embedder   *embedding.Embedder
	objects    *objectstore.Store
	extractor  *extract.Extractor
	chunker    *Chunker
	runTimeout time.Duration
}

// Options are the per-run processing flags from the upload trigger.
type Options struct {
	ForceReprocess     bool
	EmergencyChunking  bool
	GovernanceDocument bool
	DryRun             bool
}

// DryRunPreview is returned instead of writing anything when DryRun is set.
type DryRunPreview struct {
	ExtractionMethod string
	ChunkCount       int
	ChunkPreviews    []string
}

type RunResult struct {
	Status      string
	TotalChunks int
	Reused      bool
	Preview     *DryRunPreview
}

func NewProcessor(db *sqlite.Client, vectorDB *milvus.Client, embedder *embedding.Embedder, objects *objectstore.Store, cfg config.IngestionConfig) *Processor {
	return &Processor{
		db:         db,
		vectorDB:   vectorDB,
		embedder:   embedder,
		objects:    objects,
		extractor:  extract.New(),
		chunker:    NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, cfg.MinChunkSize, cfg.EmergencyMinChunk),
		runTimeout: time.Duration(cfg.RunTimeoutSec) * time.Second,
	}
}

// ProcessDocument runs the full pipeline for one document. The returned
// error is reserved for infrastructure problems around the run itself;
// content-level failures end as a `failed` document status instead.
func (p *Processor) ProcessDocument(ctx context.Context, documentID string, opts Options) (*RunResult, error) {
	doc, err := p.db.GetDocument(documentID)
	if err != nil {
		return nil, fmt.Errorf("document lookup failed: %w", err)
	}

	if doc.ProcessingStatus == models.StatusCompleted && !opts.ForceReprocess {
		logger.Info("Document already processed, skipping",
			zap.String("document_id", documentID),
		)
		total := 0
		if doc.TotalChunks != nil {
			total = *doc.TotalChunks
		}
		return &RunResult{Status: doc.ProcessingStatus, TotalChunks: total}, nil
	}

	if opts.DryRun {
		return p.dryRun(ctx, doc, opts)
	}

	ctx, cancel := context.WithTimeout(ctx, p.runTimeout)
	defer cancel()

	if err := p.db.UpdateDocumentStatus(documentID, models.StatusProcessing, nil, nil); err != nil {
		return nil, err
	}

	result, runErr := p.run(ctx, doc, opts)
	if runErr != nil {
		reason := runErr.Error()
		if errors.Is(runErr, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = "processing timed out"
		}
		p.markFailed(documentID, reason)
		return &RunResult{Status: models.StatusFailed}, nil
	}

	return result, nil
}

func (p *Processor) markFailed(documentID, reason string) {
	logger.Error("Document processing failed",
		zap.String("document_id", documentID),
		zap.String("reason", reason),
	)
	metrics.DocumentsProcessed.WithLabelValues(models.StatusFailed).Inc()

	err := p.db.UpdateDocumentStatus(documentID, models.StatusFailed, nil, map[string]interface{}{
		"failure_reason": reason,
	})
	if err != nil {
		logger.Error("Failed to record failure status", zap.Error(err))
	}
}

func (p *Processor) dryRun(ctx context.Context, doc *models.Document, opts Options) (*RunResult, error) {
	payload, err := p.objects.Fetch(ctx, doc.OrganizationID, doc.FileName)
	if err != nil {
		return nil, fmt.Errorf("payload fetch failed: %w", err)
	}

	kind := extract.Classify(doc.Title, doc.FileName, doc.MediaType, opts.GovernanceDocument)
	res := p.extractor.Extract(payload, doc.MediaType, doc.FileName, doc.Title, kind)

	chunks := p.deriveChunks(doc, res, kind, opts)

	previews := make([]string, 0, 3)
	for i := 0; i < len(chunks) && i < 3; i++ {
		preview := chunks[i].Content
		if len(preview) > 200 {
			preview = preview[:200] + "…"
		}
		previews = append(previews, preview)
	}

	return &RunResult{
		Status: doc.ProcessingStatus,
		Preview: &DryRunPreview{
			ExtractionMethod: res.Method,
			ChunkCount:       len(chunks),
			ChunkPreviews:    previews,
		},
	}, nil
}

func (p *Processor) run(ctx context.Context, doc *models.Document, opts Options) (*RunResult, error) {
	// Reuse path: reviewer-approved chunk sets bypass extraction and
	// embedding entirely, avoiding both provider cost and re-introducing
	// extraction noise into vetted content.
	if hasApprovalMarkers(doc) {
		approved, err := p.db.GetApprovedChunks(doc.OrganizationID, doc.ID)
		if err != nil {
			logger.Warn("Approved chunk lookup failed, falling back to extraction", zap.Error(err))
		} else if len(approved) > 0 {
			return p.persistApproved(ctx, doc, approved)
		}
	}

	payload, err := p.objects.Fetch(ctx, doc.OrganizationID, doc.FileName)
	if err != nil {
		return nil, fmt.Errorf("document payload not found: %v", err)
	}

	kind := extract.Classify(doc.Title, doc.FileName, doc.MediaType, opts.GovernanceDocument)
	res := p.extractor.Extract(payload, doc.MediaType, doc.FileName, doc.Title, kind)

	chunks := p.deriveChunks(doc, res, kind, opts)
	if len(chunks) == 0 {
		// Belt and braces: deriveChunks already falls back, but a completed
		// document must never end up with zero chunks.
		chunks = []TextChunk{p.chunker.SyntheticFallback(doc.Title, "no chunkable content")}
	}

	emergency := opts.EmergencyChunking || res.Degraded
	persisted, err := p.persistChunks(ctx, doc, chunks, res, kind, emergency)
	if err != nil {
		return nil, err
	}
	if persisted == 0 {
		return nil, errors.New("no chunks persisted")
	}

	docMeta := map[string]interface{}{
		"extraction_method": res.Method,
		"document_kind":     string(kind),
		"degraded":          res.Degraded,
	}
	for k, v := range res.Metadata {
		docMeta[k] = v
	}
	if kind == models.KindTrainingSlide {
		docMeta["training_material"] = true
	}

	total := persisted
	if err := p.db.UpdateDocumentStatus(doc.ID, models.StatusCompleted, &total, docMeta); err != nil {
		return nil, err
	}

	metrics.DocumentsProcessed.WithLabelValues(models.StatusCompleted).Inc()
	metrics.ChunksPersisted.Add(float64(persisted))

	logger.Info("Document processed",
		zap.String("document_id", doc.ID),
		zap.String("extraction_method", res.Method),
		zap.Int("chunks", persisted),
	)

	return &RunResult{Status: models.StatusCompleted, TotalChunks: persisted}, nil
}

// deriveChunks applies the quality gate and splits the text, falling back
// to a single synthetic chunk when nothing viable comes out.
func (p *Processor) deriveChunks(doc *models.Document, res *extract.Result, kind models.DocumentKind, opts Options) []TextChunk {
	emergency := opts.EmergencyChunking || res.Degraded

	verdict := extract.CheckQuality(res.Text, kind, emergency)
	if !verdict.Acceptable {
		logger.Warn("Extracted text rejected by quality gate",
			zap.String("document_id", doc.ID),
			zap.String("reason", verdict.Reason),
		)
		return []TextChunk{p.chunker.SyntheticFallback(doc.Title, verdict.Reason)}
	}

	chunks := p.chunker.Split(res.Text, emergency)
	if len(chunks) == 0 {
		return []TextChunk{p.chunker.SyntheticFallback(doc.Title, "extracted text below minimum chunk size")}
	}
	return chunks
}

// persistChunks embeds all chunks concurrently, then replaces the stored
// set. A nil embedding never blocks the chunk insert.
func (p *Processor) persistChunks(ctx context.Context, doc *models.Document, chunks []TextChunk, res *extract.Result, kind models.DocumentKind, emergency bool) (int, error) {
	now := time.Now()
	records := make([]models.Chunk, len(chunks))
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i := range chunks {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vectors[i] = p.embedder.Embed(gctx, chunks[i].Content, emergency)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var vectorChunks []milvus.ChunkVector
	embedded := 0

	for i, ch := range chunks {
		id := uuid.New().String()

		meta := ch.Metadata
		if meta == nil {
			meta = make(map[string]interface{})
		}
		meta["extraction_method"] = res.Method
		meta["document_kind"] = string(kind)

		embeddingID := ""
		if vectors[i] != nil {
			embeddingID = id
			embedded++
			vectorChunks = append(vectorChunks, milvus.ChunkVector{
				ChunkID:        id,
				Embedding:      vectors[i],
				Content:        ch.Content,
				DocumentID:     doc.ID,
				OrganizationID: doc.OrganizationID,
				DocumentTitle:  doc.Title,
				SectionLabel:   ch.SectionLabel,
				Tags:           ch.Tags,
				Timestamp:      now,
			})
		} else {
			metrics.EmbeddingsSkipped.Inc()
		}

		records[i] = models.Chunk{
			ID:             id,
			DocumentID:     doc.ID,
			OrganizationID: doc.OrganizationID,
			ChunkIndex:     ch.Index,
			Content:        ch.Content,
			ContentHash:    ch.ContentHash,
			EmbeddingID:    embeddingID,
			TokenCount:     ch.TokenCount,
			SectionLabel:   ch.SectionLabel,
			Tags:           ch.Tags,
			Metadata:       meta,
			CreatedAt:      now,
		}
	}

	if err := p.db.ReplaceChunks(doc.ID, doc.OrganizationID, records); err != nil {
		return 0, err
	}

	// Vector writes are best-effort: a milvus outage degrades similarity
	// search but the chunks remain reachable through keyword fallback.
	if err := p.vectorDB.DeleteByDocument(ctx, doc.OrganizationID, doc.ID); err != nil {
		logger.Warn("Failed to clear old vectors", zap.Error(err))
	}
	if len(vectorChunks) > 0 {
		if err := p.vectorDB.Insert(ctx, vectorChunks); err != nil {
			logger.Warn("Failed to insert chunk vectors", zap.Error(err))
		}
	}

	stored, err := p.db.GetChunksByDocument(doc.OrganizationID, doc.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to verify persisted chunks: %w", err)
	}

	logger.Info("Chunk set persisted",
		zap.String("document_id", doc.ID),
		zap.Int("persisted", len(stored)),
		zap.Int("embedded", embedded),
	)

	return len(stored), nil
}

// persistApproved stores a reviewer-vetted chunk set verbatim, without
// touching the embedding provider.
func (p *Processor) persistApproved(ctx context.Context, doc *models.Document, approved []models.ApprovedChunk) (*RunResult, error) {
	now := time.Now()
	records := make([]models.Chunk, len(approved))

	for i, a := range approved {
		records[i] = models.Chunk{
			ID:             uuid.New().String(),
			DocumentID:     doc.ID,
			OrganizationID: doc.OrganizationID,
			ChunkIndex:     a.ChunkIndex,
			Content:        a.Content,
			ContentHash:    a.ContentHash,
			TokenCount:     countTokens(a.Content),
			SectionLabel:   a.SectionLabel,
			Tags:           a.Tags,
			Metadata: map[string]interface{}{
				"reused_from_tester": true,
			},
			CreatedAt: now,
		}
	}

	if err := p.db.ReplaceChunks(doc.ID, doc.OrganizationID, records); err != nil {
		return nil, err
	}

	total := len(records)
	err := p.db.UpdateDocumentStatus(doc.ID, models.StatusCompleted, &total, map[string]interface{}{
		"reused_from_tester": true,
	})
	if err != nil {
		return nil, err
	}

	metrics.DocumentsProcessed.WithLabelValues(models.StatusCompleted).Inc()
	metrics.ChunksReused.Add(float64(total))

	logger.Info("Approved chunk set reused",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", total),
	)

	return &RunResult{Status: models.StatusCompleted, TotalChunks: total, Reused: true}, nil
}

// hasApprovalMarkers reports whether the document carries any sign of prior
// human approval: an explicit flag, an approval timestamp, or a file path
// written by the review tool.
func hasApprovalMarkers(doc *models.Document) bool {
	if doc.Metadata == nil {
		return containsReviewToolPath(doc.FileName)
	}
	if v, ok := doc.Metadata["approved"].(bool); ok && v {
		return true
	}
	if ts, ok := doc.Metadata["approval_timestamp"].(string); ok && ts != "" {
		return true
	}
	return containsReviewToolPath(doc.FileName)
}

func containsReviewToolPath(fileName string) bool {
	return strings.Contains(fileName, "review-tool/") || strings.Contains(fileName, "approved/")
}
