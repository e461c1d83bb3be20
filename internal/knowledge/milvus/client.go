package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/math-professor/backend/internal/storage/models"
	"github.com/math-professor/backend/pkg/logger"
)

const defaultTimeout = 10 * time.Second

// Client wraps the Milvus collection holding reference question/answer
// records. Scores are cosine similarities in [0,1]-ish range, higher is
// closer. Every call runs under a bounded deadline so a hung Milvus cannot
// stall the pipeline.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
	timeout        time.Duration
}

type ScoredRecord struct {
	Record models.KnowledgeRecord
	Score  float64
}

func NewClient(ctx context.Context, endpoint, collectionName string, vectorDim int, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c, err := client.NewGrpcClient(dialCtx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
		zap.Duration("timeout", timeout),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
		timeout:        timeout,
	}, nil
}

// opCtx derives the per-call deadline context. The caller's deadline still
// applies when it is shorter.
func (m *Client) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := m.timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) EnsureCollection(ctx context.Context) error {
	ctx, cancel := m.opCtx(ctx)
	defer cancel()

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
		Description:    "Reference question/answer records for the math knowledge base",
		Fields: []*entity.Field{
			{
				Name:       "record_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
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
				Name:       "question",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "4096"},
			},
			{
				Name:       "gold_answer",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "4096"},
			},
			{
				Name:       "subject",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "question_type",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "description",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "1024"},
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index definition: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *Client) Insert(ctx context.Context, records []models.KnowledgeRecord, embeddings [][]float32) error {
	if len(records) == 0 {
		return nil
	}
	if len(records) != len(embeddings) {
		return fmt.Errorf("record/embedding count mismatch: %d vs %d", len(records), len(embeddings))
	}

	ctx, cancel := m.opCtx(ctx)
	defer cancel()

	ids := make([]string, len(records))
	questions := make([]string, len(records))
	goldAnswers := make([]string, len(records))
	subjects := make([]string, len(records))
	questionTypes := make([]string, len(records))
	descriptions := make([]string, len(records))

	for i, rec := range records {
		ids[i] = rec.ID
		questions[i] = rec.Question
		goldAnswers[i] = rec.GoldAnswer
		subjects[i] = rec.Subject
		questionTypes[i] = rec.QuestionType
		descriptions[i] = rec.Description
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("record_id", ids),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("question", questions),
		entity.NewColumnVarChar("gold_answer", goldAnswers),
		entity.NewColumnVarChar("subject", subjects),
		entity.NewColumnVarChar("question_type", questionTypes),
		entity.NewColumnVarChar("description", descriptions),
	)
	if err != nil {
		return fmt.Errorf("failed to insert records: %w", err)
	}

	if err := m.client.Flush(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Knowledge records inserted", zap.Int("count", len(records)))

	return nil
}

func (m *Client) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]ScoredRecord, error) {
	ctx, cancel := m.opCtx(ctx)
	defer cancel()

	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		"",
		[]string{"record_id", "question", "gold_answer", "subject", "question_type", "description"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]ScoredRecord, 0, topK)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			record := models.KnowledgeRecord{
				ID:           columnString(sr.Fields.GetColumn("record_id"), i),
				Question:     columnString(sr.Fields.GetColumn("question"), i),
				GoldAnswer:   columnString(sr.Fields.GetColumn("gold_answer"), i),
				Subject:      columnString(sr.Fields.GetColumn("subject"), i),
				QuestionType: columnString(sr.Fields.GetColumn("question_type"), i),
				Description:  columnString(sr.Fields.GetColumn("description"), i),
			}
			results = append(results, ScoredRecord{
				Record: record,
				Score:  float64(sr.Scores[i]),
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("top_k", topK),
		zap.Int("results", len(results)),
	)

	return results, nil
}

func columnString(col entity.Column, idx int) string {
	if col == nil {
		return ""
	}
	value, err := col.Get(idx)
	if err != nil {
		return ""
	}
	s, _ := value.(string)
	return s
}
