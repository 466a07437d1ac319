// Package report defines the end-of-interview session report and its
// persistence backends: a JSON-lines-style file store for local use and a
// PostgreSQL store for shared deployments, plus a signed HTTP uploader for
// delivering reports to an external collector.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Store persists finished session reports. Save returns the storage key the
// report can be retrieved under (a file path or a database row identifier).
type Store interface {
	Save(ctx context.Context, rep *SessionReport) (string, error)
}

// SessionReport is the durable record of one finished interview.
type SessionReport struct {
	InterviewID     string              `json:"interview_id"`
	CandidateID     string              `json:"candidate_id"`
	Config          ConfigEcho          `json:"config"`
	StartedAt       time.Time           `json:"started_at"`
	EndedAt         time.Time           `json:"ended_at"`
	DurationSeconds float64             `json:"duration_seconds"`
	Questions       []QuestionDetail    `json:"questions"`
	Summary         Summary             `json:"summary"`
	Conversation    []ConversationEntry `json:"conversation"`
	Narrative       string              `json:"narrative"`
}

// ConfigEcho echoes the session parameters the interview ran with.
type ConfigEcho struct {
	Category     string `json:"category"`
	NumQuestions int    `json:"num_questions"`
	MaxAttempts  int    `json:"max_attempts"`
	MaxFollowUps int    `json:"max_followups"`
	Mode         string `json:"mode,omitempty"`
	Organization string `json:"organization,omitempty"`
	Role         string `json:"role,omitempty"`
}

// QuestionDetail records the full per-question outcome.
type QuestionDetail struct {
	Question          string   `json:"question"`
	Attempts          int      `json:"attempts"`
	Passed            bool     `json:"passed"`
	Responses         []string `json:"responses"`
	FollowUpResponses []string `json:"followup_responses,omitempty"`
	Feedback          []string `json:"feedback"`
}

// Summary aggregates the whole session.
type Summary struct {
	TotalQuestions   int     `json:"total_questions"`
	QuestionsPassed  int     `json:"questions_passed"`
	QuestionsFailed  int     `json:"questions_failed"`
	TotalAttempts    int     `json:"total_attempts"`
	TotalFollowUps   int     `json:"total_followups"`
	FillerWordsTotal int     `json:"filler_words_total"`
	PassRate         float64 `json:"pass_rate"`
}

// ConversationEntry is one line of the conversation transcript. Metrics is a
// free-form map so the report schema does not depend on the engine's
// internal metric struct.
type ConversationEntry struct {
	Role          string         `json:"role"`
	Text          string         `json:"text"`
	Timestamp     time.Time      `json:"timestamp"`
	QuestionIndex int            `json:"question_index"`
	Phase         string         `json:"phase"`
	Metrics       map[string]any `json:"metrics,omitempty"`
}

// Key derives the canonical report identifier for a candidate and end time:
// "interview_<candidate>_<UTC timestamp>". The candidate portion is
// sanitised to filesystem- and URL-safe characters.
func Key(candidateID string, endedAt time.Time) string {
	return fmt.Sprintf("interview_%s_%s", sanitize(candidateID), endedAt.UTC().Format("20060102T150405Z"))
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
