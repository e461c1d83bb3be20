package feedback

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/math-professor/backend/internal/storage/models"
)

type AnswerRefiner interface {
	Refine(ctx context.Context, question, originalAnswer, feedbackText, suggestedAnswer string) (string, error)
}

// ResponseRecorder mirrors response versions into durable history. Best
// effort; failures are logged, not surfaced.
type ResponseRecorder interface {
	InsertResponse(resp *models.Response) error
}

type SubmitRequest struct {
	QueryID         string
	Rating          int
	IsCorrect       bool
	Comment         string
	SuggestedAnswer string
}

type Result struct {
	Accepted bool
	Refined  *models.Response
}

// Service ties the store, cache, and refiner together behind the
// submit_feedback operation.
type Service struct {
	store   *Store
	cache   *ResponseCache
	refiner AnswerRefiner
	history ResponseRecorder
	logger  *zap.Logger
}

func NewService(store *Store, cache *ResponseCache, refiner AnswerRefiner, history ResponseRecorder, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:   store,
		cache:   cache,
		refiner: refiner,
		history: history,
		logger:  log,
	}
}

// Submit records the feedback and, when the user marked the answer incorrect,
// regenerates it once. The refined answer becomes a new version of the same
// response; the original version stays cached for audit. A refinement failure
// does not undo the already-durable feedback record: the caller gets
// Accepted=true with no refined response.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Result, error) {
	original, ok := s.cache.Latest(req.QueryID)
	if !ok {
		return Result{}, ErrUnknownQuery
	}

	record := &models.FeedbackRecord{
		QueryID:         req.QueryID,
		Rating:          req.Rating,
		IsCorrect:       req.IsCorrect,
		Comment:         req.Comment,
		SuggestedAnswer: req.SuggestedAnswer,
	}
	if err := s.store.Add(ctx, record); err != nil {
		return Result{}, err
	}

	if req.IsCorrect {
		return Result{Accepted: true}, nil
	}

	refinedText, err := s.refiner.Refine(ctx, original.Question, original.Explanation, req.Comment, req.SuggestedAnswer)
	if err != nil {
		s.logger.Warn("Refinement failed, feedback kept without refined answer",
			zap.String("query_id", req.QueryID),
			zap.Error(err),
		)
		return Result{Accepted: true}, nil
	}

	refined := &models.Response{
		QueryID:     original.QueryID,
		Question:    original.Question,
		Answer:      extractAnswer(refinedText, req.SuggestedAnswer),
		Explanation: refinedText,
		Route:       original.Route,
		Confidence:  bump(original.Confidence),
		Sources:     original.Sources,
		Version:     original.Version + 1,
		CreatedAt:   time.Now(),
	}

	s.cache.AppendVersion(refined)

	if s.history != nil {
		if err := s.history.InsertResponse(refined); err != nil {
			s.logger.Warn("Failed to record refined response", zap.Error(err))
		}
	}

	s.logger.Info("Response refined from feedback",
		zap.String("query_id", req.QueryID),
		zap.Int("version", refined.Version),
	)

	return Result{Accepted: true, Refined: refined}, nil
}

func (s *Service) Statistics() models.AggregateStatistics {
	return s.store.Statistics()
}

var refinedBoxedRe = regexp.MustCompile(`\\boxed\{([^}]+)\}`)

func extractAnswer(refinedText, suggestedAnswer string) string {
	if m := refinedBoxedRe.FindStringSubmatch(refinedText); m != nil {
		return strings.TrimSpace(m[1])
	}
	if suggestedAnswer != "" {
		return suggestedAnswer
	}
	return strings.TrimSpace(refinedText)
}

func bump(confidence float64) float64 {
	confidence += 0.1
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}
