package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/intervox/intervox/internal/resilience"
	"github.com/intervox/intervox/pkg/provider/llm"
)

// TranscriptEntry is one line of a raw transcript submitted for summary.
type TranscriptEntry struct {
	// Who is the speaker: "AI" or "User".
	Who string `json:"who"`

	// Text is what was said.
	Text string `json:"text"`

	// TS is the client-side timestamp in milliseconds.
	TS int64 `json:"ts"`
}

// SummaryResponse is the /api/summary reply.
type SummaryResponse struct {
	// Score is an overall impression score in [0, 100].
	Score int `json:"score"`

	// Tone is a one-word characterisation: Positive, Hesitant, or Neutral.
	Tone string `json:"tone"`

	// Pacing characterises answer length: Slow, Good, or Fast.
	Pacing string `json:"pacing"`

	// Notes holds the most recent candidate statements as bullet lines.
	Notes string `json:"notes"`
}

var (
	positiveTone = regexp.MustCompile(`thank|great|excellent|awesome|confident`)
	hesitantTone = regexp.MustCompile(`\bum\b|\buh\b|like\b|maybe\b|sorry`)
	wordPattern  = regexp.MustCompile(`\S+`)
)

// summarizeLocal produces a quick lexical summary of the transcript with no
// model call: pacing from average candidate answer length, tone from keyword
// hits, a coarse score from participation and verbosity, and the last three
// candidate lines as notes.
func summarizeLocal(entries []TranscriptEntry) SummaryResponse {
	var user []TranscriptEntry
	for _, e := range entries {
		if e.Who == "User" {
			user = append(user, e)
		}
	}

	totalWords := 0
	for _, e := range user {
		totalWords += len(wordPattern.FindAllString(e.Text, -1))
	}
	avgWords := 0.0
	if len(user) > 0 {
		avgWords = float64(totalWords) / float64(len(user))
	}

	pacing := "Fast"
	switch {
	case avgWords < 8:
		pacing = "Slow"
	case avgWords < 20:
		pacing = "Good"
	}

	var all strings.Builder
	for i, e := range entries {
		if i > 0 {
			all.WriteByte(' ')
		}
		all.WriteString(e.Text)
	}
	lower := strings.ToLower(all.String())
	tone := "Neutral"
	if positiveTone.MatchString(lower) {
		tone = "Positive"
	}
	if hesitantTone.MatchString(lower) {
		tone = "Hesitant"
	}

	score := 40.0 + float64(len(user))*8 + min(20.0, avgWords)
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	tail := user
	if len(tail) > 3 {
		tail = tail[len(tail)-3:]
	}
	lines := make([]string, len(tail))
	for i, e := range tail {
		lines[i] = "• " + e.Text
	}

	return SummaryResponse{
		Score:  int(score),
		Tone:   tone,
		Pacing: pacing,
		Notes:  strings.Join(lines, "\n"),
	}
}

const summarySystemPrompt = "You are an assistant that summarizes interview transcripts into a " +
	"compact JSON object with the following fields: score (integer 0-100), tone (short string, " +
	"e.g. Positive/Hesitant/Neutral), pacing (Slow/Good/Fast), notes (short bullet points or " +
	"paragraph). Respond with ONLY valid JSON."

// summarizeWithModel asks the language model for a structured summary.
func (h *Handler) summarizeWithModel(ctx context.Context, entries []TranscriptEntry) (SummaryResponse, error) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return SummaryResponse{}, fmt.Errorf("httpapi: marshal transcript: %w", err)
	}
	prompt := fmt.Sprintf("Here are the transcript entries as an array of objects with {who, text, ts}:\n%s\n\n"+
		`Produce a JSON object: { "score": <int>, "tone": "<string>", "pacing": "<string>", "notes": "<string>" }.`, raw)

	start := time.Now()
	resp, err := resilience.DoValue(ctx, h.retry, "transcript summary", func(ctx context.Context) (*llm.CompletionResponse, error) {
		return h.summarizer.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: summarySystemPrompt,
			Messages:     []llm.Message{{Role: "user", Content: prompt}},
			Temperature:  0.2,
			MaxTokens:    400,
		})
	})
	h.metrics.RecordLLMCall(ctx, "summary", time.Since(start))
	if err != nil {
		return SummaryResponse{}, err
	}

	var out SummaryResponse
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &out); err != nil {
		return SummaryResponse{}, fmt.Errorf("httpapi: parse model summary: %w", err)
	}
	return out, nil
}

// extractJSON returns the first top-level JSON object in s, tolerating
// models that wrap their answer in prose or code fences.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

// summary handles POST /api/summary. The request body is a JSON array of
// transcript entries. With a summarizer configured the model's structured
// answer is preferred; any model failure falls back to the local heuristics,
// so the endpoint always answers 200 for a well-formed request.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	var entries []TranscriptEntry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid transcript payload"})
		return
	}

	if h.summarizer != nil {
		out, err := h.summarizeWithModel(r.Context(), entries)
		if err == nil {
			writeJSON(w, http.StatusOK, out)
			return
		}
		h.log.Warn("model summary failed, falling back to heuristics", "error", err)
	}

	writeJSON(w, http.StatusOK, summarizeLocal(entries))
}
