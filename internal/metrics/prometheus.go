package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "math_agent_query_duration_seconds",
			Help:    "Full pipeline duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "math_agent_query_total",
			Help: "Queries processed, by terminal status",
		},
		[]string{"status"},
	)

	RouteTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "math_agent_route_total",
			Help: "Routing decisions taken",
		},
		[]string{"route"},
	)

	FilterRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "math_agent_filter_rejections_total",
			Help: "Content filter rejections, by gate",
		},
		[]string{"gate"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "math_agent_confidence_score",
			Help:    "Response confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	FeedbackRatings = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "math_agent_feedback_rating",
			Help:    "User feedback ratings",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	FeedbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "math_agent_feedback_total",
			Help: "Feedback submissions, by correctness verdict",
		},
		[]string{"is_correct"},
	)

	RefinementsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "math_agent_refinements_total",
			Help: "Refined answers produced from negative feedback",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "math_agent_cache_hits_total",
			Help: "Cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "math_agent_cache_misses_total",
			Help: "Cache misses",
		},
		[]string{"cache_type"},
	)

	KnowledgeRecordsLoaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "math_agent_knowledge_records_loaded_total",
			Help: "Reference records ingested into the knowledge base",
		},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(RouteTotal)
	prometheus.MustRegister(FilterRejections)
	prometheus.MustRegister(ConfidenceScore)
	prometheus.MustRegister(FeedbackRatings)
	prometheus.MustRegister(FeedbackTotal)
	prometheus.MustRegister(RefinementsTotal)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(KnowledgeRecordsLoaded)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
