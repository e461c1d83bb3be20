package feedback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/math-professor/backend/internal/storage/models"
)

var (
	// ErrUnknownQuery means feedback referenced a query ID with no cached
	// response. Rejected outright, never silently dropped.
	ErrUnknownQuery = errors.New("feedback references an unknown query id")

	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// Log is the durable append-only feedback log. Implemented by the SQLite
// client; tests supply an in-memory fake.
type Log interface {
	AppendFeedback(record *models.FeedbackRecord) error
	ScanFeedback(fn func(record *models.FeedbackRecord) error) error
}

// Store guards the feedback log and the derived aggregate statistics with a
// single mutex. Coarse on purpose: feedback writes are rare next to queries,
// and one guard makes "append + update counters" atomic.
type Store struct {
	mu        sync.Mutex
	log       Log
	cache     *ResponseCache
	count     int64
	correct   int64
	ratingSum int64
	perRoute  map[string]models.RouteStats
	updatedAt time.Time
	logger    *zap.Logger
}

func NewStore(log Log, cache *ResponseCache, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		log:      log,
		cache:    cache,
		perRoute: make(map[string]models.RouteStats),
		logger:   logger,
	}

	// Statistics are derived state; rebuild them from the log so previously
	// accepted records survive a restart.
	if err := s.rebuildLocked(); err != nil {
		return nil, fmt.Errorf("failed to rebuild feedback statistics: %w", err)
	}

	logger.Info("Feedback store initialized", zap.Int64("records", s.count))

	return s, nil
}

// Add validates the record against the response cache, copies the route from
// the cached response, appends to the durable log, and bumps the running
// aggregates. The whole sequence holds the store mutex so the log and the
// counters can never disagree.
func (s *Store) Add(ctx context.Context, record *models.FeedbackRecord) error {
	if record.Rating < 1 || record.Rating > 5 {
		return ErrInvalidRating
	}

	original, ok := s.cache.Latest(record.QueryID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuery, record.QueryID)
	}

	record.RouteUsed = original.Route
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.log.AppendFeedback(record); err != nil {
		return fmt.Errorf("failed to append feedback: %w", err)
	}

	s.applyLocked(record)

	s.logger.Info("Feedback recorded",
		zap.String("query_id", record.QueryID),
		zap.Int("rating", record.Rating),
		zap.Bool("is_correct", record.IsCorrect),
		zap.String("route", record.RouteUsed),
	)

	return nil
}

// Statistics returns a snapshot, safe to call concurrently with writers.
func (s *Store) Statistics() models.AggregateStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := models.AggregateStatistics{
		Count:       s.count,
		Correct:     s.correct,
		PerRoute:    make(map[string]models.RouteStats, len(s.perRoute)),
		LastUpdated: s.updatedAt,
	}
	for route, rs := range s.perRoute {
		stats.PerRoute[route] = rs
	}
	if s.count > 0 {
		stats.Accuracy = float64(s.correct) / float64(s.count)
		stats.MeanRating = float64(s.ratingSum) / float64(s.count)
	}
	return stats
}

// Rebuild recomputes the aggregates from a full log scan. The incremental
// counters must always match this.
func (s *Store) Rebuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildLocked()
}

func (s *Store) rebuildLocked() error {
	s.count = 0
	s.correct = 0
	s.ratingSum = 0
	s.perRoute = make(map[string]models.RouteStats)

	if s.log == nil {
		return nil
	}

	return s.log.ScanFeedback(func(record *models.FeedbackRecord) error {
		s.applyLocked(record)
		return nil
	})
}

func (s *Store) applyLocked(record *models.FeedbackRecord) {
	s.count++
	s.ratingSum += int64(record.Rating)
	rs := s.perRoute[record.RouteUsed]
	rs.Count++
	if record.IsCorrect {
		s.correct++
		rs.Correct++
	}
	s.perRoute[record.RouteUsed] = rs
	s.updatedAt = time.Now()
}
