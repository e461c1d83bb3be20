package feedback

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/math-professor/backend/internal/llm"
)

type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// Refiner regenerates an answer once, folding the user's feedback into the
// prompt. Single shot: no convergence loop, no multi-round refinement.
type Refiner struct {
	llm       Completer
	maxTokens int
	logger    *zap.Logger
}

const refinerSystemPrompt = `You are a mathematics professor correcting one of your own answers based on
student feedback. Provide an improved step-by-step solution that addresses
the issues raised. Ensure the solution is mathematically correct and
pedagogically clear, and put the final answer in \boxed{} format.`

func NewRefiner(completer Completer, maxTokens int, log *zap.Logger) *Refiner {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Refiner{
		llm:       completer,
		maxTokens: maxTokens,
		logger:    log,
	}
}

func (r *Refiner) Refine(ctx context.Context, question, originalAnswer, feedbackText, suggestedAnswer string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Original Question: %s\n\n", question)
	fmt.Fprintf(&b, "Original Answer: %s\n\n", originalAnswer)
	if feedbackText != "" {
		fmt.Fprintf(&b, "Student Feedback: %s\n", feedbackText)
	}
	if suggestedAnswer != "" {
		fmt.Fprintf(&b, "Suggested Correct Answer: %s\n", suggestedAnswer)
	}
	b.WriteString("\nBased on the feedback, provide an improved step-by-step solution.")

	refined, err := r.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: refinerSystemPrompt,
		UserPrompt:   b.String(),
		Temperature:  0.1,
		MaxTokens:    r.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("refinement failed: %w", err)
	}

	r.logger.Info("Answer refined", zap.Int("length", len(refined)))

	return refined, nil
}
