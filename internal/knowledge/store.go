// Package knowledge exposes the vector knowledge base as a text-in,
// passages-out similarity search, hiding the embedding round trip.
package knowledge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/math-professor/backend/internal/knowledge/milvus"
	"github.com/math-professor/backend/internal/retrieval"
	"github.com/math-professor/backend/pkg/utils"
)

type Embedder interface {
	Embedding(ctx context.Context, text string) ([]float32, error)
}

type VectorIndex interface {
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]milvus.ScoredRecord, error)
}

// EmbeddingCache avoids re-embedding repeated question text. Optional; a nil
// cache disables it. Cache errors are ignored, the cache is best effort.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32) error
}

type Store struct {
	index    VectorIndex
	embedder Embedder
	cache    EmbeddingCache
	logger   *zap.Logger
}

func NewStore(index VectorIndex, embedder Embedder, cache EmbeddingCache, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		index:    index,
		embedder: embedder,
		cache:    cache,
		logger:   log,
	}
}

func (s *Store) Search(ctx context.Context, query string, topK int) ([]retrieval.Passage, error) {
	embedding, err := s.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	scored, err := s.index.Search(ctx, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("knowledge store search: %w", err)
	}

	passages := make([]retrieval.Passage, 0, len(scored))
	for _, sr := range scored {
		passages = append(passages, retrieval.Passage{
			Kind:       retrieval.SourceKnowledge,
			Text:       sr.Record.Question,
			GoldAnswer: sr.Record.GoldAnswer,
			Subject:    sr.Record.Subject,
			Score:      sr.Score,
		})
	}

	s.logger.Debug("Knowledge base searched",
		zap.Int("top_k", topK),
		zap.Int("results", len(passages)),
	)

	return passages, nil
}

func (s *Store) embed(ctx context.Context, query string) ([]float32, error) {
	hash := utils.HashString(query)

	if s.cache != nil {
		if embedding, ok, err := s.cache.GetEmbedding(ctx, hash); err == nil && ok {
			return embedding, nil
		}
	}

	embedding, err := s.embedder.Embedding(ctx, query)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetEmbedding(ctx, hash, embedding); err != nil {
			s.logger.Debug("Failed to cache embedding", zap.Error(err))
		}
	}

	return embedding, nil
}
