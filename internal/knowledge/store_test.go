package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/math-professor/backend/internal/knowledge/milvus"
	"github.com/math-professor/backend/internal/retrieval"
	"github.com/math-professor/backend/internal/storage/models"
)

type stubIndex struct {
	scored []milvus.ScoredRecord
	err    error
}

func (s *stubIndex) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]milvus.ScoredRecord, error) {
	return s.scored, s.err
}

type stubEmbedder struct {
	calls int
	err   error
}

func (s *stubEmbedder) Embedding(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type memEmbeddingCache struct {
	entries map[string][]float32
}

func (m *memEmbeddingCache) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error) {
	emb, ok := m.entries[textHash]
	return emb, ok, nil
}

func (m *memEmbeddingCache) SetEmbedding(ctx context.Context, textHash string, embedding []float32) error {
	if m.entries == nil {
		m.entries = make(map[string][]float32)
	}
	m.entries[textHash] = embedding
	return nil
}

func TestSearchReturnsKnowledgePassages(t *testing.T) {
	index := &stubIndex{scored: []milvus.ScoredRecord{
		{
			Record: models.KnowledgeRecord{
				Question:   "What is 2+2?",
				GoldAnswer: "4",
				Subject:    "arithmetic",
			},
			Score: 0.92,
		},
	}}
	store := NewStore(index, &stubEmbedder{}, nil, nil)

	passages, err := store.Search(context.Background(), "what is 2+2", 3)

	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, retrieval.SourceKnowledge, passages[0].Kind)
	assert.Equal(t, "What is 2+2?", passages[0].Text)
	assert.Equal(t, "4", passages[0].GoldAnswer)
	assert.Equal(t, 0.92, passages[0].Score)
}

func TestSearchEmbedderErrorPropagates(t *testing.T) {
	store := NewStore(&stubIndex{}, &stubEmbedder{err: errors.New("provider down")}, nil, nil)

	_, err := store.Search(context.Background(), "q", 3)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to embed query")
}

func TestSearchIndexErrorPropagates(t *testing.T) {
	store := NewStore(&stubIndex{err: errors.New("milvus unreachable")}, &stubEmbedder{}, nil, nil)

	_, err := store.Search(context.Background(), "q", 3)

	require.Error(t, err)
}

func TestSearchUsesEmbeddingCache(t *testing.T) {
	embedder := &stubEmbedder{}
	cache := &memEmbeddingCache{}
	store := NewStore(&stubIndex{}, embedder, cache, nil)

	_, err := store.Search(context.Background(), "what is 2+2", 3)
	require.NoError(t, err)
	_, err = store.Search(context.Background(), "what is 2+2", 3)
	require.NoError(t, err)

	assert.Equal(t, 1, embedder.calls, "the second identical query is served from the embedding cache")
}
