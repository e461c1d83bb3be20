package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/math-professor/backend/internal/retrieval"
)

type stubKnowledge struct {
	passages []retrieval.Passage
	err      error
}

func (s *stubKnowledge) Search(ctx context.Context, query string, topK int) ([]retrieval.Passage, error) {
	return s.passages, s.err
}

type stubWeb struct {
	passages []retrieval.Passage
	err      error
	calls    int
}

func (s *stubWeb) Search(ctx context.Context, query string, maxResults int) ([]retrieval.Passage, error) {
	s.calls++
	return s.passages, s.err
}

func kbPassage(score float64) retrieval.Passage {
	return retrieval.Passage{
		Kind:       retrieval.SourceKnowledge,
		Text:       "What is 2+2?",
		GoldAnswer: "4",
		Score:      score,
	}
}

func TestRouteToKnowledgeAboveThreshold(t *testing.T) {
	kb := &stubKnowledge{passages: []retrieval.Passage{kbPassage(0.9), kbPassage(0.7)}}
	webStub := &stubWeb{}
	r := New(kb, webStub, 3, 5, 0.6, nil)

	decision, err := r.Route(context.Background(), "what is 2+2")

	require.NoError(t, err)
	assert.Equal(t, RouteKnowledge, decision.Route)
	assert.Equal(t, 0.9, decision.BestScore)
	assert.Equal(t, retrieval.SourceKnowledge, decision.Context.Kind)
	assert.Len(t, decision.Context.Passages, 2)
	assert.Equal(t, 0, webStub.calls, "knowledge routing must not touch web search")
}

func TestRouteToKnowledgeAtExactThreshold(t *testing.T) {
	kb := &stubKnowledge{passages: []retrieval.Passage{kbPassage(0.6)}}
	webStub := &stubWeb{}
	r := New(kb, webStub, 3, 5, 0.6, nil)

	decision, err := r.Route(context.Background(), "what is 2+2")

	require.NoError(t, err)
	assert.Equal(t, RouteKnowledge, decision.Route, "a score equal to the threshold routes to knowledge")
}

func TestRouteToWebBelowThreshold(t *testing.T) {
	kb := &stubKnowledge{passages: []retrieval.Passage{kbPassage(0.3)}}
	webStub := &stubWeb{passages: []retrieval.Passage{
		{Kind: retrieval.SourceWeb, Title: "Riemann hypothesis", URL: "https://en.wikipedia.org/wiki/Riemann_hypothesis"},
	}}
	r := New(kb, webStub, 3, 5, 0.6, nil)

	decision, err := r.Route(context.Background(), "explain the riemann hypothesis")

	require.NoError(t, err)
	assert.Equal(t, RouteWeb, decision.Route)
	assert.Equal(t, 0.3, decision.BestScore)
	assert.Equal(t, retrieval.SourceWeb, decision.Context.Kind)
	assert.Equal(t, 1, webStub.calls)
}

func TestRouteToWebOnEmptyKnowledgeBase(t *testing.T) {
	kb := &stubKnowledge{}
	webStub := &stubWeb{}
	r := New(kb, webStub, 3, 5, 0.6, nil)

	decision, err := r.Route(context.Background(), "what is the capital of integration")

	require.NoError(t, err)
	assert.Equal(t, RouteWeb, decision.Route)
	assert.Zero(t, decision.BestScore)
}

func TestKnowledgeErrorPropagates(t *testing.T) {
	kb := &stubKnowledge{err: errors.New("milvus unreachable")}
	webStub := &stubWeb{}
	r := New(kb, webStub, 3, 5, 0.6, nil)

	_, err := r.Route(context.Background(), "what is 2+2")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "knowledge store lookup failed")
	assert.Equal(t, 0, webStub.calls, "a knowledge failure must not silently degrade to web search")
}

func TestWebErrorPropagates(t *testing.T) {
	kb := &stubKnowledge{passages: []retrieval.Passage{kbPassage(0.1)}}
	webStub := &stubWeb{err: errors.New("tavily 500")}
	r := New(kb, webStub, 3, 5, 0.6, nil)

	_, err := r.Route(context.Background(), "obscure question")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "web search failed")
}
