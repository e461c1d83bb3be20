// Package agent runs the question-answering pipeline as a straight-line state
// machine: filter in, route, gather context, generate, filter out, deliver.
// There are no loops and no backtracking; the only branch is rejection at
// either filter gate.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/math-professor/backend/internal/generator"
	"github.com/math-professor/backend/internal/guardrails"
	"github.com/math-professor/backend/internal/metrics"
	"github.com/math-professor/backend/internal/retrieval"
	"github.com/math-professor/backend/internal/router"
	"github.com/math-professor/backend/internal/storage/models"
	"github.com/math-professor/backend/pkg/utils"
)

// State is a pipeline position. Every query visits the states in order;
// StateRejected is the terminal state for either filter gate.
type State int

const (
	StateReceived State = iota
	StateInputFiltered
	StateRouted
	StateContextGathered
	StateGenerated
	StateOutputFiltered
	StateDelivered
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateInputFiltered:
		return "input_filtered"
	case StateRouted:
		return "routed"
	case StateContextGathered:
		return "context_gathered"
	case StateGenerated:
		return "generated"
	case StateOutputFiltered:
		return "output_filtered"
	case StateDelivered:
		return "delivered"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// StageEvent is emitted as the pipeline advances, for progress streaming.
type StageEvent struct {
	State   State
	Message string
}

type StageFunc func(event StageEvent)

type ContentFilter interface {
	CheckInput(ctx context.Context, question string) guardrails.Verdict
	CheckOutput(ctx context.Context, solution, question string) guardrails.Verdict
}

type QueryRouter interface {
	Route(ctx context.Context, question string) (router.Decision, error)
}

type SolutionGenerator interface {
	Generate(ctx context.Context, question string, rctx retrieval.Context) (generator.Solution, error)
}

// AnswerCache short-circuits repeat questions. Optional.
type AnswerCache interface {
	GetAnswer(ctx context.Context, questionHash string) (*models.Response, bool, error)
	SetAnswer(ctx context.Context, questionHash string, resp *models.Response) error
}

// ResponseSink receives every delivered response so the feedback layer can
// find it later by query ID.
type ResponseSink interface {
	Put(resp *models.Response)
}

// ResponseRecorder mirrors delivered responses into durable history. Optional
// and best effort.
type ResponseRecorder interface {
	InsertResponse(resp *models.Response) error
}

type Agent struct {
	filter      ContentFilter
	router      QueryRouter
	generator   SolutionGenerator
	responses   ResponseSink
	answerCache AnswerCache
	history     ResponseRecorder
	logger      *zap.Logger
}

func New(filter ContentFilter, qr QueryRouter, gen SolutionGenerator, responses ResponseSink, log *zap.Logger) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{
		filter:    filter,
		router:    qr,
		generator: gen,
		responses: responses,
		logger:    log,
	}
}

// WithAnswerCache enables the repeat-question short circuit.
func (a *Agent) WithAnswerCache(cache AnswerCache) *Agent {
	a.answerCache = cache
	return a
}

// WithHistory enables durable response history.
func (a *Agent) WithHistory(history ResponseRecorder) *Agent {
	a.history = history
	return a
}

// ProcessQuery runs the full pipeline for one question.
func (a *Agent) ProcessQuery(ctx context.Context, question string) (*models.Response, error) {
	return a.ProcessQueryWithProgress(ctx, question, nil)
}

// ProcessQueryWithProgress runs the pipeline, invoking onStage after each
// transition. onStage may be nil.
func (a *Agent) ProcessQueryWithProgress(ctx context.Context, question string, onStage StageFunc) (*models.Response, error) {
	start := time.Now()
	queryID := newQueryID()

	log := a.logger.With(zap.String("query_id", queryID))
	log.Info("Query received", zap.Int("question_length", len(question)))
	emit(onStage, StageEvent{State: StateReceived, Message: "query received"})

	if verdict := a.filter.CheckInput(ctx, question); !verdict.Passed {
		metrics.FilterRejections.WithLabelValues("input").Inc()
		metrics.QueryTotal.WithLabelValues("rejected").Inc()
		log.Warn("Query rejected by input filter", zap.String("reason", verdict.Reason))
		emit(onStage, StageEvent{State: StateRejected, Message: verdict.Reason})
		return nil, &RejectionError{Stage: StateInputFiltered, Reason: verdict.Reason}
	}
	emit(onStage, StageEvent{State: StateInputFiltered, Message: "question accepted"})

	questionHash := utils.HashQuestion(question)
	if a.answerCache != nil {
		cached, hit, err := a.answerCache.GetAnswer(ctx, questionHash)
		if err != nil {
			log.Warn("Answer cache lookup failed", zap.Error(err))
		} else if hit {
			metrics.CacheHits.WithLabelValues("answer").Inc()
			log.Info("Answer served from cache", zap.String("question_hash", questionHash))

			// Cached answers get a fresh query ID so feedback on this
			// delivery is tracked independently of the original one.
			resp := *cached
			resp.QueryID = queryID
			resp.Version = 1
			resp.CreatedAt = time.Now()
			a.deliver(&resp, onStage, log)
			metrics.QueryTotal.WithLabelValues("delivered").Inc()
			metrics.QueryDuration.WithLabelValues(resp.Route).Observe(time.Since(start).Seconds())
			return &resp, nil
		} else {
			metrics.CacheMisses.WithLabelValues("answer").Inc()
		}
	}

	// Stage boundaries double as cancellation points: a caller that has gone
	// away (closed socket, client timeout) stops the pipeline here instead of
	// paying for the remaining upstream calls.
	if err := ctx.Err(); err != nil {
		metrics.QueryTotal.WithLabelValues("canceled").Inc()
		return nil, err
	}

	decision, err := a.router.Route(ctx, question)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		log.Error("Routing failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	metrics.RouteTotal.WithLabelValues(string(decision.Route)).Inc()
	emit(onStage, StageEvent{State: StateRouted, Message: "routed to " + string(decision.Route)})
	emit(onStage, StageEvent{
		State:   StateContextGathered,
		Message: fmt.Sprintf("%d passages gathered", len(decision.Context.Passages)),
	})

	if err := ctx.Err(); err != nil {
		metrics.QueryTotal.WithLabelValues("canceled").Inc()
		return nil, err
	}

	solution, err := a.generator.Generate(ctx, question, decision.Context)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		log.Error("Generation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	emit(onStage, StageEvent{State: StateGenerated, Message: "solution generated"})

	if verdict := a.filter.CheckOutput(ctx, solution.Explanation, question); !verdict.Passed {
		metrics.FilterRejections.WithLabelValues("output").Inc()
		metrics.QueryTotal.WithLabelValues("rejected").Inc()
		log.Warn("Solution rejected by output filter", zap.String("reason", verdict.Reason))
		emit(onStage, StageEvent{State: StateRejected, Message: verdict.Reason})
		return nil, &RejectionError{Stage: StateOutputFiltered, Reason: verdict.Reason}
	}
	emit(onStage, StageEvent{State: StateOutputFiltered, Message: "solution accepted"})

	resp := &models.Response{
		QueryID:     queryID,
		Question:    question,
		Answer:      solution.Answer,
		Explanation: solution.Explanation,
		Route:       string(decision.Route),
		Confidence:  solution.Confidence,
		Sources:     decision.Context.SourceURLs(),
		Version:     1,
		CreatedAt:   time.Now(),
	}

	a.deliver(resp, onStage, log)

	if a.answerCache != nil {
		if err := a.answerCache.SetAnswer(ctx, questionHash, resp); err != nil {
			log.Warn("Failed to cache answer", zap.Error(err))
		}
	}

	metrics.QueryTotal.WithLabelValues("delivered").Inc()
	metrics.ConfidenceScore.Observe(resp.Confidence)
	metrics.QueryDuration.WithLabelValues(resp.Route).Observe(time.Since(start).Seconds())

	log.Info("Query delivered",
		zap.String("route", resp.Route),
		zap.Float64("confidence", resp.Confidence),
		zap.Duration("elapsed", time.Since(start)),
	)

	return resp, nil
}

func (a *Agent) deliver(resp *models.Response, onStage StageFunc, log *zap.Logger) {
	a.responses.Put(resp)

	if a.history != nil {
		if err := a.history.InsertResponse(resp); err != nil {
			log.Warn("Failed to record response history", zap.Error(err))
		}
	}

	emit(onStage, StageEvent{State: StateDelivered, Message: "response delivered"})
}

func emit(fn StageFunc, event StageEvent) {
	if fn != nil {
		fn(event)
	}
}

// newQueryID returns a time-ordered identifier, so response history sorts by
// arrival. V7 generation only fails when the entropy source does; fall back
// to a random ID rather than refusing the query.
func newQueryID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
