// Package guardrails implements the content filter gating both ends of the
// answer pipeline. The lexical stage is deterministic and never touches the
// network; the semantic stage runs only when the lexical stage is
// inconclusive. Classifier failures are treated as PASS: availability over
// precision, a documented policy of this system rather than an oversight.
package guardrails

import (
	"context"
	"regexp"
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"
)

// Verdict is the tagged result of a filter check. Free-text classifier output
// is parsed into a Verdict exactly once, at the service boundary.
type Verdict struct {
	Passed bool
	Reason string
}

func pass() Verdict {
	return Verdict{Passed: true}
}

func fail(reason string) Verdict {
	return Verdict{Passed: false, Reason: reason}
}

// Classifier is the hosted model used for the semantic fallback stage.
type Classifier interface {
	Classify(ctx context.Context, text, instruction string) (string, error)
}

type Config struct {
	Enabled        bool
	MinQuestionLen int
	MaxQuestionLen int
	Logger         *zap.Logger
}

type Filter struct {
	classifier Classifier
	enabled    bool
	minLen     int
	maxLen     int
	logger     *zap.Logger
}

var denylistPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(hack|hacking|crack|cracking|cheat|cheating|steal|stealing)\b`),
	regexp.MustCompile(`(?i)\b(porn|sex|adult|sexual)\b`),
	regexp.MustCompile(`(?i)\b(kill|murder|violence|attack|exploit)\b`),
	regexp.MustCompile(`(?i)\b(illegal|criminal|fraud|scam)\b`),
	regexp.MustCompile(`(?i)\bhow\s+to\s+(hack|crack|break|exploit)\b`),
}

// Single-token keywords are matched against prose tokens so "math" does not
// fire inside "aftermath"; multi-word phrases are matched as substrings.
var allowlistTokens = map[string]struct{}{
	"formula": {}, "equation": {}, "solve": {}, "calculate": {},
	"trigonometry": {}, "algebra": {}, "geometry": {}, "physics": {},
	"chemistry": {}, "mathematics": {}, "math": {}, "derivative": {},
	"integral": {}, "theorem": {}, "proof": {}, "explain": {},
}

var allowlistPhrases = []string{"what is"}

const (
	inputInstruction = `You are a strict content filter for an educational math tutoring system.
The user message is a student question. It should PASS only if it asks about
mathematics, physics, chemistry, or science education. It should FAIL if it
contains harmful, offensive, or inappropriate content, asks about illegal
activities or security exploits, or is unrelated to science education.
Be strict: when in doubt, FAIL.
Respond with ONLY "PASS" or "FAIL: <reason>".`

	outputInstruction = `You are a quality checker for educational math answers.
The user message contains a generated solution. It should PASS only if it is
educational, appropriate, and contains mathematical reasoning. It should FAIL
if it contains harmful or off-topic content.
Respond with ONLY "PASS" or "FAIL: <reason>".`
)

func New(classifier Classifier, cfg Config) *Filter {
	if cfg.MinQuestionLen <= 0 {
		cfg.MinQuestionLen = 3
	}
	if cfg.MaxQuestionLen <= 0 {
		cfg.MaxQuestionLen = 4000
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Filter{
		classifier: classifier,
		enabled:    cfg.Enabled,
		minLen:     cfg.MinQuestionLen,
		maxLen:     cfg.MaxQuestionLen,
		logger:     cfg.Logger,
	}
}

// CheckInput gates an incoming question. Stage order matters: length bounds
// and the denylist run first and short-circuit, the allowlist can then accept
// without a network call, and only inconclusive text reaches the classifier.
func (f *Filter) CheckInput(ctx context.Context, question string) Verdict {
	trimmed := strings.TrimSpace(question)

	if len(trimmed) < f.minLen {
		return fail("question is too short or empty")
	}
	if len(trimmed) > f.maxLen {
		return fail("question exceeds the maximum length")
	}

	if reason, blocked := matchDenylist(trimmed); blocked {
		f.logger.Warn("Question blocked by denylist", zap.String("pattern", reason))
		return fail("question contains inappropriate or potentially harmful content")
	}

	if matchAllowlist(trimmed) {
		f.logger.Debug("Question matched educational allowlist")
		return pass()
	}

	return f.semanticCheck(ctx, trimmed, inputInstruction)
}

// CheckOutput gates a generated solution. Structure is validated before
// anything else: a recognizable final-answer marker and a non-empty step
// sequence. Structurally sound solutions with mathematical content are
// accepted without a classifier round trip.
func (f *Filter) CheckOutput(ctx context.Context, solution, question string) Verdict {
	trimmed := strings.TrimSpace(solution)

	if trimmed == "" {
		return fail("generated solution is empty")
	}
	if !hasAnswerMarker(trimmed) {
		return fail("generated solution is missing a final answer")
	}
	if !hasStepSequence(trimmed) {
		return fail("generated solution has no step-by-step reasoning")
	}

	if reason, blocked := matchDenylist(trimmed); blocked {
		f.logger.Warn("Solution blocked by denylist", zap.String("pattern", reason))
		return fail("generated solution contains inappropriate content")
	}

	if hasMathContent(trimmed) {
		return pass()
	}

	return f.semanticCheck(ctx, "Question: "+question+"\n\nSolution: "+trimmed, outputInstruction)
}

func (f *Filter) semanticCheck(ctx context.Context, text, instruction string) Verdict {
	if !f.enabled || f.classifier == nil {
		return pass()
	}

	raw, err := f.classifier.Classify(ctx, text, instruction)
	if err != nil {
		// Fail open: an unreachable classifier must not block traffic.
		f.logger.Warn("Classifier unavailable, failing open", zap.Error(err))
		return pass()
	}

	return ParseVerdict(raw)
}

// ParseVerdict turns the classifier's constrained free-text reply into a
// Verdict. Downstream code only ever sees the tagged result.
func ParseVerdict(raw string) Verdict {
	trimmed := strings.TrimSpace(raw)
	upper := strings.ToUpper(trimmed)

	if strings.HasPrefix(upper, "PASS") {
		return pass()
	}

	reason := trimmed
	if idx := strings.Index(upper, "FAIL"); idx >= 0 {
		reason = strings.TrimSpace(trimmed[idx+len("FAIL"):])
		reason = strings.TrimSpace(strings.TrimPrefix(reason, ":"))
	}
	if reason == "" {
		reason = "content rejected by classifier"
	}
	return fail(reason)
}

func matchDenylist(text string) (string, bool) {
	for _, pattern := range denylistPatterns {
		if pattern.MatchString(text) {
			return pattern.String(), true
		}
	}
	return "", false
}

func matchAllowlist(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range allowlistPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	for _, token := range tokenize(lower) {
		if _, ok := allowlistTokens[token]; ok {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		// Tokenizer failure degrades to whitespace splitting.
		return strings.Fields(text)
	}

	tokens := doc.Tokens()
	words := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		words = append(words, strings.ToLower(tok.Text))
	}
	return words
}

var answerMarkerRe = regexp.MustCompile(`\\boxed\{[^}]*\}`)

func hasAnswerMarker(solution string) bool {
	if answerMarkerRe.MatchString(solution) {
		return true
	}
	lower := strings.ToLower(solution)
	return strings.Contains(lower, "final answer")
}

func hasStepSequence(solution string) bool {
	lower := strings.ToLower(solution)
	if strings.Contains(lower, "step") {
		return true
	}
	// Multi-line worked solutions count even without explicit step labels.
	return strings.Count(strings.TrimSpace(solution), "\n") >= 2
}

func hasMathContent(solution string) bool {
	lower := strings.ToLower(solution)
	return strings.Contains(solution, "=") ||
		strings.Contains(solution, `\boxed`) ||
		strings.Contains(lower, "therefore") ||
		strings.Contains(lower, "solution:")
}
