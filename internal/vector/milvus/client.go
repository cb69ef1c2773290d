package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/complyassist/backend/pkg/logger"
)

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

// ChunkVector is the milvus-side projection of a stored chunk.
type ChunkVector struct {
	ChunkID        string
	Embedding      []float32
	Content        string
	DocumentID     string
	OrganizationID string
	DocumentTitle  string
	SectionLabel   string
	Tags           []string
	Timestamp      time.Time
}

type SearchResult struct {
	ChunkID        string
	Content        string
	DocumentID     string
	OrganizationID string
	DocumentTitle  string
	SectionLabel   string
	Tags           []string
	Score          float32 // cosine similarity, higher is closer
}

func NewClient(endpoint, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(context.Background(), endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) CreateCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Organization document chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:       "content",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "8192"},
			},
			{
				Name:       "document_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "organization_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "document_title",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:       "section_label",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       "tags",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "1024"},
			},
			{
				Name:     "timestamp",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}

	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

// DeleteByDocument removes all vectors for one document ahead of a replace.
// Milvus offers no cross-call transaction, so the replace window here is the
// brief gap the chunk store contract allows.
func (m *Client) DeleteByDocument(ctx context.Context, organizationID, documentID string) error {
	expr := fmt.Sprintf(`document_id == "%s" && organization_id == "%s"`, documentID, organizationID)

	err := m.client.Delete(ctx, m.collectionName, "", expr)
	if err != nil {
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}

	return nil
}

func (m *Client) Insert(ctx context.Context, chunks []ChunkVector) error {
	if len(chunks) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	contents := make([]string, len(chunks))
	documentIDs := make([]string, len(chunks))
	organizationIDs := make([]string, len(chunks))
	titles := make([]string, len(chunks))
	sectionLabels := make([]string, len(chunks))
	tags := make([]string, len(chunks))
	timestamps := make([]int64, len(chunks))

	for i, chunk := range chunks {
		chunkIDs[i] = chunk.ChunkID
		embeddings[i] = chunk.Embedding
		contents[i] = chunk.Content
		documentIDs[i] = chunk.DocumentID
		organizationIDs[i] = chunk.OrganizationID
		titles[i] = chunk.DocumentTitle
		sectionLabels[i] = chunk.SectionLabel
		tags[i] = strings.Join(chunk.Tags, ",")
		timestamps[i] = chunk.Timestamp.Unix()
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnVarChar("document_id", documentIDs),
		entity.NewColumnVarChar("organization_id", organizationIDs),
		entity.NewColumnVarChar("document_title", titles),
		entity.NewColumnVarChar("section_label", sectionLabels),
		entity.NewColumnVarChar("tags", tags),
		entity.NewColumnInt64("timestamp", timestamps),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunk vectors: %w", err)
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunk vectors inserted", zap.Int("count", len(chunks)))

	return nil
}

// Search runs a similarity query scoped to one organization. The scope is
// applied server-side in the boolean expression, never left to callers.
func (m *Client) Search(ctx context.Context, organizationID string, queryEmbedding []float32, topK int) ([]SearchResult, error) {
	expr := fmt.Sprintf(`organization_id == "%s"`, organizationID)

	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search param: %w", err)
	}

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"chunk_id", "content", "document_id", "organization_id", "document_title", "section_label", "tags"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, 0)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			chunkID, _ := sr.Fields.GetColumn("chunk_id").Get(i)
			content, _ := sr.Fields.GetColumn("content").Get(i)
			documentID, _ := sr.Fields.GetColumn("document_id").Get(i)
			orgID, _ := sr.Fields.GetColumn("organization_id").Get(i)
			title, _ := sr.Fields.GetColumn("document_title").Get(i)
			sectionLabel, _ := sr.Fields.GetColumn("section_label").Get(i)
			tagsJoined, _ := sr.Fields.GetColumn("tags").Get(i)

			var tags []string
			if s, _ := tagsJoined.(string); s != "" {
				tags = strings.Split(s, ",")
			}

			results = append(results, SearchResult{
				ChunkID:        chunkID.(string),
				Content:        content.(string),
				DocumentID:     documentID.(string),
				OrganizationID: orgID.(string),
				DocumentTitle:  title.(string),
				SectionLabel:   sectionLabel.(string),
				Tags:           tags,
				Score:          sr.Scores[i],
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(results)),
	)

	return results, nil
}
