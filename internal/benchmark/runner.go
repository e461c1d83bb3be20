// Package benchmark runs a labeled question dataset through the full answer
// pipeline and scores the results against the gold answers.
package benchmark

import (
	"context"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/math-professor/backend/internal/agent"
	"github.com/math-professor/backend/internal/storage/models"
)

type Pipeline interface {
	ProcessQuery(ctx context.Context, question string) (*models.Response, error)
}

type Embedder interface {
	Embedding(ctx context.Context, text string) ([]float32, error)
}

type DatasetItem struct {
	Question   string `json:"question"`
	GoldAnswer string `json:"gold"`
	Subject    string `json:"subject"`
	Type       string `json:"type"`
}

type CategoryStats struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

type Report struct {
	Total               int                       `json:"total"`
	Answered            int                       `json:"answered"`
	Rejected            int                       `json:"rejected"`
	Failed              int                       `json:"failed"`
	Correct             int                       `json:"correct"`
	Accuracy            float64                   `json:"accuracy"`
	BySubject           map[string]*CategoryStats `json:"by_subject"`
	ByType              map[string]*CategoryStats `json:"by_type"`
	RouteDistribution   map[string]int            `json:"route_distribution"`
	AvgLatencyMS        float64                   `json:"avg_latency_ms"`
	AvgAnswerSimilarity float64                   `json:"avg_answer_similarity"`
}

// Runner drives the pipeline over a dataset. The embedder is optional; with
// it, a soft similarity between generated and gold answers is reported
// alongside the exact-match accuracy.
type Runner struct {
	pipeline Pipeline
	embedder Embedder
	logger   *zap.Logger
}

func NewRunner(pipeline Pipeline, embedder Embedder, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		pipeline: pipeline,
		embedder: embedder,
		logger:   log,
	}
}

func (r *Runner) Run(ctx context.Context, items []DatasetItem) (*Report, error) {
	report := &Report{
		Total:             len(items),
		BySubject:         make(map[string]*CategoryStats),
		ByType:            make(map[string]*CategoryStats),
		RouteDistribution: make(map[string]int),
	}

	var totalLatency time.Duration
	var totalSimilarity float64
	var similarityCount int

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r.logger.Info("Benchmarking item", zap.Int("index", i+1), zap.Int("total", len(items)))

		start := time.Now()
		resp, err := r.pipeline.ProcessQuery(ctx, item.Question)
		elapsed := time.Since(start)

		if err != nil {
			if _, rejected := agent.IsRejection(err); rejected {
				report.Rejected++
			} else {
				report.Failed++
				r.logger.Warn("Benchmark item failed", zap.Int("index", i), zap.Error(err))
			}
			recordCategory(report.BySubject, item.Subject, false)
			recordCategory(report.ByType, item.Type, false)
			continue
		}

		report.Answered++
		totalLatency += elapsed
		report.RouteDistribution[resp.Route]++

		correct := answersMatch(resp.Answer, item.GoldAnswer)
		if correct {
			report.Correct++
		}
		recordCategory(report.BySubject, item.Subject, correct)
		recordCategory(report.ByType, item.Type, correct)

		if r.embedder != nil && item.GoldAnswer != "" {
			if sim, err := r.answerSimilarity(ctx, resp.Answer, item.GoldAnswer); err == nil {
				totalSimilarity += sim
				similarityCount++
			} else {
				r.logger.Warn("Failed to compute answer similarity", zap.Error(err))
			}
		}
	}

	if report.Total > 0 {
		report.Accuracy = float64(report.Correct) / float64(report.Total)
	}
	if report.Answered > 0 {
		report.AvgLatencyMS = float64(totalLatency.Milliseconds()) / float64(report.Answered)
	}
	if similarityCount > 0 {
		report.AvgAnswerSimilarity = totalSimilarity / float64(similarityCount)
	}
	for _, stats := range report.BySubject {
		finalizeCategory(stats)
	}
	for _, stats := range report.ByType {
		finalizeCategory(stats)
	}

	r.logger.Info("Benchmark completed",
		zap.Int("total", report.Total),
		zap.Int("correct", report.Correct),
		zap.Float64("accuracy", report.Accuracy),
	)

	return report, nil
}

// answersMatch compares normalized answer strings. Numeric-looking answers
// also match when one is a substring of the other, so "x = 5" matches "5".
func answersMatch(generated, gold string) bool {
	g := normalizeAnswer(generated)
	w := normalizeAnswer(gold)
	if g == "" || w == "" {
		return false
	}
	if g == w {
		return true
	}
	return strings.Contains(g, w) || strings.Contains(w, g)
}

func normalizeAnswer(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "x =")
	s = strings.TrimPrefix(s, "x=")
	replacer := strings.NewReplacer(" ", "", "$", "", "\\", "", "{", "", "}", "")
	return replacer.Replace(s)
}

func (r *Runner) answerSimilarity(ctx context.Context, generated, gold string) (float64, error) {
	embGenerated, err := r.embedder.Embedding(ctx, generated)
	if err != nil {
		return 0, err
	}
	embGold, err := r.embedder.Embedding(ctx, gold)
	if err != nil {
		return 0, err
	}
	return cosineSimilarity(embGenerated, embGold), nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func recordCategory(m map[string]*CategoryStats, key string, correct bool) {
	if key == "" {
		key = "unknown"
	}
	stats, ok := m[key]
	if !ok {
		stats = &CategoryStats{}
		m[key] = stats
	}
	stats.Total++
	if correct {
		stats.Correct++
	}
}

func finalizeCategory(stats *CategoryStats) {
	if stats.Total > 0 {
		stats.Accuracy = float64(stats.Correct) / float64(stats.Total)
	}
}
