package guardrails

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubClassifier struct {
	reply string
	err   error
	calls int
}

func (s *stubClassifier) Classify(ctx context.Context, text, instruction string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func newTestFilter(classifier Classifier) *Filter {
	return New(classifier, Config{Enabled: true})
}

func TestCheckInputDenylistShortCircuits(t *testing.T) {
	classifier := &stubClassifier{reply: "PASS"}
	f := newTestFilter(classifier)

	verdict := f.CheckInput(context.Background(), "how to hack into a bank account")

	assert.False(t, verdict.Passed)
	assert.Contains(t, verdict.Reason, "inappropriate")
	assert.Equal(t, 0, classifier.calls, "denylisted questions must not reach the classifier")
}

func TestCheckInputAllowlistSkipsClassifier(t *testing.T) {
	classifier := &stubClassifier{reply: "FAIL: should not be consulted"}
	f := newTestFilter(classifier)

	verdict := f.CheckInput(context.Background(), "solve the equation 3x + 7 = 22")

	assert.True(t, verdict.Passed)
	assert.Equal(t, 0, classifier.calls, "allowlisted questions must not reach the classifier")
}

func TestCheckInputAllowlistIsTokenBased(t *testing.T) {
	classifier := &stubClassifier{reply: "FAIL: off topic"}
	f := newTestFilter(classifier)

	// "aftermath" contains "math" but is not the token "math".
	verdict := f.CheckInput(context.Background(), "tell me about the aftermath of the storm")

	assert.False(t, verdict.Passed)
	assert.Equal(t, 1, classifier.calls)
}

func TestCheckInputTooShort(t *testing.T) {
	f := newTestFilter(&stubClassifier{})

	verdict := f.CheckInput(context.Background(), "  x ")

	assert.False(t, verdict.Passed)
	assert.Contains(t, verdict.Reason, "too short")
}

func TestCheckInputOversized(t *testing.T) {
	f := newTestFilter(&stubClassifier{})

	verdict := f.CheckInput(context.Background(), strings.Repeat("a", 10000))

	assert.False(t, verdict.Passed)
	assert.Contains(t, verdict.Reason, "maximum length")
}

func TestCheckInputClassifierVerdicts(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		expected bool
	}{
		{"pass", "PASS", true},
		{"pass with trailing text", "PASS - looks educational", true},
		{"fail with reason", "FAIL: off-topic question", false},
		{"garbage treated as fail", "I am not sure about this one", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFilter(&stubClassifier{reply: tt.reply})
			verdict := f.CheckInput(context.Background(), "recommend a good restaurant downtown")
			assert.Equal(t, tt.expected, verdict.Passed)
		})
	}
}

func TestCheckInputFailsOpenOnClassifierError(t *testing.T) {
	classifier := &stubClassifier{err: errors.New("connection refused")}
	f := newTestFilter(classifier)

	verdict := f.CheckInput(context.Background(), "recommend a good restaurant downtown")

	assert.True(t, verdict.Passed, "an unreachable classifier must not block traffic")
	assert.Equal(t, 1, classifier.calls)
}

func TestCheckInputDisabledFilterSkipsSemanticStage(t *testing.T) {
	classifier := &stubClassifier{reply: "FAIL: anything"}
	f := New(classifier, Config{Enabled: false})

	verdict := f.CheckInput(context.Background(), "recommend a good restaurant downtown")

	assert.True(t, verdict.Passed)
	assert.Equal(t, 0, classifier.calls)
}

func TestCheckOutputEmptySolution(t *testing.T) {
	f := newTestFilter(&stubClassifier{})

	verdict := f.CheckOutput(context.Background(), "   ", "what is 2+2")

	assert.False(t, verdict.Passed)
	assert.Contains(t, verdict.Reason, "empty")
}

func TestCheckOutputMissingAnswerMarker(t *testing.T) {
	f := newTestFilter(&stubClassifier{})

	verdict := f.CheckOutput(context.Background(), "Step 1: add the numbers.\nStep 2: done.", "what is 2+2")

	assert.False(t, verdict.Passed)
	assert.Contains(t, verdict.Reason, "final answer")
}

func TestCheckOutputMissingSteps(t *testing.T) {
	f := newTestFilter(&stubClassifier{})

	verdict := f.CheckOutput(context.Background(), `The final answer is \boxed{4}`, "what is 2+2")

	assert.False(t, verdict.Passed)
	assert.Contains(t, verdict.Reason, "step-by-step")
}

func TestCheckOutputWellFormedSolutionPasses(t *testing.T) {
	classifier := &stubClassifier{reply: "FAIL: should not be consulted"}
	f := newTestFilter(classifier)

	solution := "Step 1: 2 + 2 = 4.\nStep 2: verify by counting.\nThe final answer is \\boxed{4}"
	verdict := f.CheckOutput(context.Background(), solution, "what is 2+2")

	assert.True(t, verdict.Passed)
	assert.Equal(t, 0, classifier.calls, "structurally sound math solutions skip the classifier")
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		raw    string
		passed bool
		reason string
	}{
		{"PASS", true, ""},
		{"pass", true, ""},
		{"  PASS  ", true, ""},
		{"FAIL: contains harmful content", false, "contains harmful content"},
		{"FAIL", false, "content rejected by classifier"},
		{"The verdict is FAIL: off topic", false, "off topic"},
		{"no idea", false, "no idea"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			verdict := ParseVerdict(tt.raw)
			assert.Equal(t, tt.passed, verdict.Passed)
			if !tt.passed {
				assert.Equal(t, tt.reason, verdict.Reason)
			}
		})
	}
}
