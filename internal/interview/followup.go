package interview

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/intervox/intervox/internal/observe"
	"github.com/intervox/intervox/internal/resilience"
	"github.com/intervox/intervox/pkg/provider/llm"
)

// FollowUpSource produces the next follow-up probe after a passed main
// answer. An error means no probe could be produced; the controller then
// skips the follow-up phase and advances.
type FollowUpSource interface {
	NextFollowUp(ctx context.Context, question, lastAnswer string) (string, error)
}

// DefaultFollowUpProbes is the fixed probe bank used when adaptive follow-ups
// are disabled or no language model is configured.
var DefaultFollowUpProbes = []string{
	"What was the most difficult part of that?",
	"What would you do differently in hindsight?",
	"How did you measure whether it worked?",
	"Who else was involved, and what was your specific contribution?",
}

// FixedFollowUps cycles through a static probe bank. It never fails and
// ignores the question and answer content.
type FixedFollowUps struct {
	probes []string
	next   int
}

// NewFixedFollowUps builds a source over probes, falling back to
// DefaultFollowUpProbes when probes is empty.
func NewFixedFollowUps(probes []string) *FixedFollowUps {
	if len(probes) == 0 {
		probes = DefaultFollowUpProbes
	}
	return &FixedFollowUps{probes: probes}
}

// NextFollowUp returns the next probe in rotation.
func (f *FixedFollowUps) NextFollowUp(context.Context, string, string) (string, error) {
	probe := f.probes[f.next%len(f.probes)]
	f.next++
	return probe, nil
}

const adaptiveFollowUpSystemPrompt = "You are an interviewer. Given the question asked and the " +
	"candidate's answer, produce exactly one short spoken follow-up question that digs into the " +
	"most interesting or weakest part of the answer. Reply with the question only, no preamble."

// AdaptiveFollowUps generates a follow-up probe from the candidate's actual
// answer with one language-model call per probe, routed through a retryer so
// transient provider failures are absorbed. A returned error means the call
// was exhausted or permanently rejected; callers treat that as "skip".
type AdaptiveFollowUps struct {
	provider llm.Provider
	retry    *resilience.Retryer
	metrics  *observe.Metrics
	role     string
}

// NewAdaptiveFollowUps builds an adaptive source over provider. The role
// label is given to the model as interview context. Metrics may be nil.
func NewAdaptiveFollowUps(provider llm.Provider, retry *resilience.Retryer, metrics *observe.Metrics, role string) *AdaptiveFollowUps {
	if retry == nil {
		retry = resilience.NewRetryer(resilience.RetryerConfig{})
	}
	return &AdaptiveFollowUps{provider: provider, retry: retry, metrics: metrics, role: role}
}

// NextFollowUp asks the model for one probe grounded in lastAnswer.
func (a *AdaptiveFollowUps) NextFollowUp(ctx context.Context, question, lastAnswer string) (string, error) {
	prompt := fmt.Sprintf("Role under interview: %s\nQuestion asked: %s\nCandidate answer: %s",
		a.role, question, lastAnswer)

	start := time.Now()
	resp, err := resilience.DoValue(ctx, a.retry, "followup generation", func(ctx context.Context) (*llm.CompletionResponse, error) {
		return a.provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: adaptiveFollowUpSystemPrompt,
			Messages:     []llm.Message{{Role: "user", Content: prompt}},
			Temperature:  0.7,
			MaxTokens:    120,
		})
	})
	if a.metrics != nil {
		a.metrics.RecordLLMCall(ctx, "followup", time.Since(start))
	}
	if err != nil {
		return "", fmt.Errorf("interview: generate follow-up: %w", err)
	}
	probe := strings.TrimSpace(resp.Content)
	if probe == "" {
		return "", fmt.Errorf("interview: generate follow-up: model returned empty text")
	}
	return probe, nil
}
