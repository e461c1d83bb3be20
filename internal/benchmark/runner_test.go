package benchmark

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/math-professor/backend/internal/agent"
	"github.com/math-professor/backend/internal/storage/models"
)

type scriptedPipeline struct {
	answers map[string]*models.Response
	errs    map[string]error
}

func (s *scriptedPipeline) ProcessQuery(ctx context.Context, question string) (*models.Response, error) {
	if err, ok := s.errs[question]; ok {
		return nil, err
	}
	if resp, ok := s.answers[question]; ok {
		return resp, nil
	}
	return nil, errors.New("unexpected question")
}

func TestRunScoresDataset(t *testing.T) {
	pipeline := &scriptedPipeline{
		answers: map[string]*models.Response{
			"what is 2+2": {Answer: "4", Route: "knowledge"},
			"solve x+1=3": {Answer: "x = 2", Route: "knowledge"},
			"hard one":    {Answer: "42", Route: "web"},
		},
	}
	runner := NewRunner(pipeline, nil, nil)

	report, err := runner.Run(context.Background(), []DatasetItem{
		{Question: "what is 2+2", GoldAnswer: "4", Subject: "arithmetic", Type: "numeric"},
		{Question: "solve x+1=3", GoldAnswer: "2", Subject: "algebra", Type: "numeric"},
		{Question: "hard one", GoldAnswer: "7", Subject: "algebra", Type: "numeric"},
	})

	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Answered)
	assert.Equal(t, 2, report.Correct)
	assert.InDelta(t, 2.0/3.0, report.Accuracy, 1e-9)
	assert.Equal(t, 2, report.RouteDistribution["knowledge"])
	assert.Equal(t, 1, report.RouteDistribution["web"])
	assert.Equal(t, 1, report.BySubject["arithmetic"].Correct)
	assert.Equal(t, 2, report.BySubject["algebra"].Total)
	assert.InDelta(t, 0.5, report.BySubject["algebra"].Accuracy, 1e-9)
}

func TestRunCountsRejectionsAndFailures(t *testing.T) {
	pipeline := &scriptedPipeline{
		answers: map[string]*models.Response{
			"good": {Answer: "1", Route: "knowledge"},
		},
		errs: map[string]error{
			"blocked": &agent.RejectionError{Stage: agent.StateInputFiltered, Reason: "off topic"},
			"broken":  errors.New("provider down"),
		},
	}
	runner := NewRunner(pipeline, nil, nil)

	report, err := runner.Run(context.Background(), []DatasetItem{
		{Question: "good", GoldAnswer: "1"},
		{Question: "blocked", GoldAnswer: "2"},
		{Question: "broken", GoldAnswer: "3"},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Answered)
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Correct)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := NewRunner(&scriptedPipeline{}, nil, nil)

	_, err := runner.Run(ctx, []DatasetItem{{Question: "q", GoldAnswer: "1"}})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnswersMatch(t *testing.T) {
	tests := []struct {
		generated string
		gold      string
		match     bool
	}{
		{"4", "4", true},
		{"x = 5", "5", true},
		{"\\boxed{5}", "5", true},
		{"$12$", "12", true},
		{"5", "6", false},
		{"", "4", false},
		{"4", "", false},
		{"The Answer Is 42", "42", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.match, answersMatch(tt.generated, tt.gold),
			"generated=%q gold=%q", tt.generated, tt.gold)
	}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1}, []float32{1, 2}), "length mismatch scores zero")
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}
