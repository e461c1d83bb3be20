package generator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/math-professor/backend/internal/llm"
	"github.com/math-professor/backend/internal/retrieval"
)

type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// Solution is a generated answer. Confidence is a heuristic blend of route
// and passage relevance, not a calibrated probability.
type Solution struct {
	Answer      string
	Explanation string
	Confidence  float64
	AnswerFound bool
}

type Generator struct {
	llm         Completer
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

func New(completer Completer, maxTokens int, temperature float32, log *zap.Logger) *Generator {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	if temperature <= 0 {
		// Low sampling temperature: graded math answers want determinism,
		// not variety.
		temperature = 0.1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{
		llm:         completer,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      log,
	}
}

var boxedAnswerRe = regexp.MustCompile(`\\boxed\{([^}]+)\}`)

func (g *Generator) Generate(ctx context.Context, question string, rctx retrieval.Context) (Solution, error) {
	prompt := g.buildPrompt(question, rctx)

	text, err := g.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
		Temperature:  g.temperature,
		MaxTokens:    g.maxTokens,
	})
	if err != nil {
		return Solution{}, fmt.Errorf("solution generation failed: %w", err)
	}

	solution := extractSolution(text)
	solution.Confidence = confidence(rctx, solution.AnswerFound)

	g.logger.Info("Solution generated",
		zap.String("route", string(rctx.Kind)),
		zap.Bool("answer_found", solution.AnswerFound),
		zap.Float64("confidence", solution.Confidence),
	)

	return solution, nil
}

func (g *Generator) buildPrompt(question string, rctx retrieval.Context) string {
	var b strings.Builder

	if rctx.Kind == retrieval.SourceKnowledge {
		b.WriteString("Here are similar solved problems from the reference collection:\n\n")
		for i, p := range rctx.Passages {
			if i >= 2 {
				break
			}
			fmt.Fprintf(&b, "Question: %s\nAnswer: %s\n\n", p.Text, p.GoldAnswer)
		}
	} else {
		b.WriteString("Use these web resources:\n\n")
		if len(rctx.Passages) == 0 {
			b.WriteString("No web search results found.\n\n")
		}
		for i, p := range rctx.Passages {
			fmt.Fprintf(&b, "%d. %s\n   URL: %s\n   Content: %s\n\n",
				i+1, p.Title, p.URL, truncate(p.Text, 300))
		}
	}

	b.WriteString(fewShotExample)
	b.WriteString("\n\n")
	b.WriteString(refusalNote)
	b.WriteString("\n\nNow solve this question with a detailed step-by-step explanation:\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nSolution:")

	return b.String()
}

// extractSolution pulls the final answer out of the \boxed{} marker. When the
// marker is missing the full generated text stands in as the answer and the
// confidence heuristic takes a haircut.
func extractSolution(text string) Solution {
	trimmed := strings.TrimSpace(text)

	if m := boxedAnswerRe.FindStringSubmatch(trimmed); m != nil {
		return Solution{
			Answer:      strings.TrimSpace(m[1]),
			Explanation: trimmed,
			AnswerFound: true,
		}
	}

	return Solution{
		Answer:      trimmed,
		Explanation: trimmed,
		AnswerFound: false,
	}
}

func confidence(rctx retrieval.Context, answerFound bool) float64 {
	var score float64

	if rctx.Kind == retrieval.SourceKnowledge {
		if len(rctx.Passages) > 0 {
			score = rctx.Passages[0].Score
			if score > 0.95 {
				score = 0.95
			}
		} else {
			score = 0.5
		}
	} else {
		if len(rctx.Passages) > 0 {
			score = 0.7
		} else {
			score = 0.3
		}
	}

	if answerFound {
		score += 0.05
	} else {
		score -= 0.15
	}

	if score > 1.0 {
		score = 1.0
	}
	if score < 0.05 {
		score = 0.05
	}

	return score
}

// truncate cuts at a rune boundary so multi-byte characters in retrieved
// content never reach the prompt as invalid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
