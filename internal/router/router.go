// Package router decides, per question, whether the answer context comes from
// the vector knowledge base or from web search.
package router

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/math-professor/backend/internal/retrieval"
)

type Route string

const (
	RouteKnowledge Route = "knowledge"
	RouteWeb       Route = "web"
)

type Decision struct {
	Route     Route
	BestScore float64
	Context   retrieval.Context
}

type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]retrieval.Passage, error)
}

type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]retrieval.Passage, error)
}

type Router struct {
	knowledge     KnowledgeSearcher
	web           WebSearcher
	topK          int
	maxWebResults int
	threshold     float64
	logger        *zap.Logger
}

func New(knowledge KnowledgeSearcher, web WebSearcher, topK, maxWebResults int, threshold float64, log *zap.Logger) *Router {
	if topK <= 0 {
		topK = 3
	}
	if maxWebResults <= 0 {
		maxWebResults = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		knowledge:     knowledge,
		web:           web,
		topK:          topK,
		maxWebResults: maxWebResults,
		threshold:     threshold,
		logger:        log,
	}
}

// Route probes the knowledge base with a top-K similarity query and compares
// the best score against the threshold: greater-or-equal routes to knowledge,
// below falls through to web search. A knowledge-store failure propagates as
// a router failure rather than silently degrading to web search, which would
// mask a data-availability problem.
func (r *Router) Route(ctx context.Context, question string) (Decision, error) {
	passages, err := r.knowledge.Search(ctx, question, r.topK)
	if err != nil {
		return Decision{}, fmt.Errorf("knowledge store lookup failed: %w", err)
	}

	var bestScore float64
	if len(passages) > 0 {
		bestScore = passages[0].Score
	}

	if len(passages) > 0 && bestScore >= r.threshold {
		r.logger.Info("Routing to knowledge base",
			zap.Float64("best_score", bestScore),
			zap.Float64("threshold", r.threshold),
		)
		return Decision{
			Route:     RouteKnowledge,
			BestScore: bestScore,
			Context: retrieval.Context{
				Kind:     retrieval.SourceKnowledge,
				Passages: passages,
			},
		}, nil
	}

	r.logger.Info("Routing to web search",
		zap.Float64("best_score", bestScore),
		zap.Float64("threshold", r.threshold),
		zap.Int("kb_results", len(passages)),
	)

	webPassages, err := r.web.Search(ctx, question, r.maxWebResults)
	if err != nil {
		return Decision{}, fmt.Errorf("web search failed: %w", err)
	}

	return Decision{
		Route:     RouteWeb,
		BestScore: bestScore,
		Context: retrieval.Context{
			Kind:     retrieval.SourceWeb,
			Passages: webPassages,
		},
	}, nil
}
