package models

import "time"

// Response is one generated answer version. Refinement never edits a version
// in place; it appends a new one with the same QueryID and a bumped Version so
// earlier feedback stays attributable to the text it was given on.
type Response struct {
	QueryID     string    `json:"query_id"`
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	Explanation string    `json:"step_by_step_solution"`
	Route       string    `json:"route_used"`
	Confidence  float64   `json:"confidence_score"`
	Sources     []string  `json:"sources,omitempty"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
}

// FeedbackRecord is immutable once written and appended to the durable log.
type FeedbackRecord struct {
	QueryID         string    `json:"query_id"`
	Rating          int       `json:"rating"`
	IsCorrect       bool      `json:"is_correct"`
	Comment         string    `json:"comment,omitempty"`
	SuggestedAnswer string    `json:"suggested_answer,omitempty"`
	RouteUsed       string    `json:"route_used"`
	CreatedAt       time.Time `json:"created_at"`
}

type RouteStats struct {
	Count   int64 `json:"count"`
	Correct int64 `json:"correct"`
}

// AggregateStatistics is derived state, always reconstructible from the
// feedback log.
type AggregateStatistics struct {
	Count       int64                 `json:"count"`
	Correct     int64                 `json:"correct"`
	Accuracy    float64               `json:"accuracy"`
	MeanRating  float64               `json:"mean_rating"`
	PerRoute    map[string]RouteStats `json:"per_route"`
	LastUpdated time.Time             `json:"last_updated"`
}

// KnowledgeRecord is a reference question with its graded gold answer.
type KnowledgeRecord struct {
	ID           string    `json:"id"`
	Question     string    `json:"question"`
	GoldAnswer   string    `json:"gold"`
	Subject      string    `json:"subject"`
	QuestionType string    `json:"type"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}
