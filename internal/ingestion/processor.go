// Package ingestion loads reference question/answer records into the
// knowledge base: embed in batches, insert into the vector index, mirror into
// relational storage for inspection.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/math-professor/backend/internal/metrics"
	"github.com/math-professor/backend/internal/storage/models"
)

type Embedder interface {
	BatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorIndex interface {
	Insert(ctx context.Context, records []models.KnowledgeRecord, embeddings [][]float32) error
}

// RecordMirror keeps a relational copy of what went into the vector index.
// Optional and best effort.
type RecordMirror interface {
	InsertKnowledgeRecords(records []models.KnowledgeRecord) error
}

type Processor struct {
	embedder Embedder
	index    VectorIndex
	mirror   RecordMirror
	logger   *zap.Logger
}

func NewProcessor(embedder Embedder, index VectorIndex, mirror RecordMirror, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		embedder: embedder,
		index:    index,
		mirror:   mirror,
		logger:   log,
	}
}

// IngestRecord is one dataset entry as uploaded.
type IngestRecord struct {
	Question    string `json:"question"`
	GoldAnswer  string `json:"gold"`
	Subject     string `json:"subject"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Ingest embeds and stores a batch of records. Records with an empty question
// are skipped, not fatal. Returns the number stored.
func (p *Processor) Ingest(ctx context.Context, records []IngestRecord) (int, error) {
	now := time.Now()

	prepared := make([]models.KnowledgeRecord, 0, len(records))
	texts := make([]string, 0, len(records))
	skipped := 0

	for _, rec := range records {
		if rec.Question == "" {
			skipped++
			continue
		}
		prepared = append(prepared, models.KnowledgeRecord{
			ID:           uuid.New().String(),
			Question:     rec.Question,
			GoldAnswer:   rec.GoldAnswer,
			Subject:      rec.Subject,
			QuestionType: rec.Type,
			Description:  rec.Description,
			CreatedAt:    now,
		})
		texts = append(texts, rec.Question)
	}

	if skipped > 0 {
		p.logger.Warn("Skipped records with empty questions", zap.Int("skipped", skipped))
	}
	if len(prepared) == 0 {
		return 0, nil
	}

	embeddings, err := p.embedder.BatchEmbeddings(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed records: %w", err)
	}
	if len(embeddings) != len(prepared) {
		return 0, fmt.Errorf("embedding count mismatch: got %d for %d records", len(embeddings), len(prepared))
	}

	if err := p.index.Insert(ctx, prepared, embeddings); err != nil {
		return 0, fmt.Errorf("failed to insert into vector index: %w", err)
	}

	if p.mirror != nil {
		if err := p.mirror.InsertKnowledgeRecords(prepared); err != nil {
			p.logger.Warn("Failed to mirror records to relational storage", zap.Error(err))
		}
	}

	metrics.KnowledgeRecordsLoaded.Add(float64(len(prepared)))
	p.logger.Info("Knowledge records ingested",
		zap.Int("stored", len(prepared)),
		zap.Int("skipped", skipped),
	)

	return len(prepared), nil
}
