// Package session holds the review state of one analysed job: which segment
// and category are selected, and the chat with the backend's agent.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/ringside/ringside-agent/internal/backend"
)

var (
	ErrNoResult          = errors.New("analysis result is required")
	ErrSegmentOutOfRange = errors.New("segment index out of range")
	ErrUnknownCategory   = errors.New("unknown category")
	ErrChatBusy          = errors.New("a chat request is already in flight")
)

// DefaultSegmentSize is used when the backend omits segment_size.
const DefaultSegmentSize = 30.0

type Category string

const (
	CategoryGeneral    Category = "general"
	CategoryStriking   Category = "striking"
	CategoryGrappling  Category = "grappling"
	CategorySubmission Category = "submission"
)

func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryGeneral, CategoryStriking, CategoryGrappling, CategorySubmission:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
}

const (
	selectSegmentHint = "Select a segment to see its detailed analysis."
	chatErrorText     = "Sorry, something went wrong while processing your question. Please try again."
)

var placeholders = map[Category]string{
	CategoryGeneral:    "No general analysis for this segment.",
	CategoryStriking:   "No striking data for this segment.",
	CategoryGrappling:  "No grappling data for this segment.",
	CategorySubmission: "No submission data for this segment.",
}

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

type Message struct {
	Sender Sender    `json:"sender"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// Agent answers free-text questions about a job.
type Agent interface {
	Ask(ctx context.Context, jobID, question string) (string, error)
}

// Session is safe for concurrent use. The result is never modified.
type Session struct {
	jobID  string
	result *backend.AnalysisResult
	agent  Agent
	logger *slog.Logger

	mu       sync.RWMutex
	selected int
	category Category
	messages []Message
	busy     bool
}

// New builds a session over a fetched result. The overall summary, when
// present, opens the chat as the assistant's first message.
func New(jobID string, result *backend.AnalysisResult, agent Agent, logger *slog.Logger) (*Session, error) {
	if result == nil {
		return nil, ErrNoResult
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Session{
		jobID:    jobID,
		result:   result,
		agent:    agent,
		logger:   logger.With("job_id", jobID),
		selected: -1,
		category: CategoryGeneral,
	}
	if result.OverallSummary != "" {
		s.messages = append(s.messages, Message{Sender: SenderAssistant, Text: result.OverallSummary, At: time.Now().UTC()})
	}
	return s, nil
}

func (s *Session) JobID() string { return s.jobID }

func (s *Session) Result() *backend.AnalysisResult { return s.result }

func (s *Session) Segments() int { return len(s.result.ChunkAnalyses) }

// Selection returns the selected segment index, or false when none is.
func (s *Session) Selection() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected, s.selected >= 0
}

func (s *Session) Category() Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.category
}

// SelectSegment selects segment i and resets the category to general.
func (s *Session) SelectSegment(i int) error {
	if i < 0 || i >= len(s.result.ChunkAnalyses) {
		return fmt.Errorf("%w: %d of %d", ErrSegmentOutOfRange, i, len(s.result.ChunkAnalyses))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = i
	s.category = CategoryGeneral
	return nil
}

func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = -1
	s.category = CategoryGeneral
}

func (s *Session) SetCategory(c Category) error {
	if _, ok := placeholders[c]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.category = c
	return nil
}

// CurrentContent is the text the review pane shows. It falls back from the
// overall summary (or a hint) with no selection, to the selected segment's
// field for the current category, to a fixed per-category placeholder. It is
// never empty.
func (s *Session) CurrentContent() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.selected < 0 {
		if s.result.OverallSummary != "" {
			return s.result.OverallSummary
		}
		return selectSegmentHint
	}

	if text := field(s.result.ChunkAnalyses[s.selected], s.category); text != "" {
		return text
	}
	return placeholders[s.category]
}

func field(seg backend.SegmentAnalysis, c Category) string {
	switch c {
	case CategoryStriking:
		return seg.Striking
	case CategoryGrappling:
		return seg.Grappling
	case CategorySubmission:
		return seg.Submission
	default:
		return seg.GeneralAnalyst
	}
}

// Messages returns a copy of the chat so far.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) ChatBusy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.busy
}

// SendChatMessage asks the agent and appends both sides of the exchange.
// Blank input is ignored. Only one request may be in flight; a second is
// rejected with ErrChatBusy. Agent failures become a fixed assistant
// message and are not returned.
func (s *Session) SendChatMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrChatBusy
	}
	s.busy = true
	s.messages = append(s.messages, Message{Sender: SenderUser, Text: text, At: time.Now().UTC()})
	s.mu.Unlock()

	reply, err := s.agent.Ask(ctx, s.jobID, text)
	if err != nil {
		s.logger.Warn("agent request failed", "error", err)
		reply = chatErrorText
	}

	s.mu.Lock()
	s.messages = append(s.messages, Message{Sender: SenderAssistant, Text: reply, At: time.Now().UTC()})
	s.busy = false
	s.mu.Unlock()
	return nil
}

// SegmentSize is the length of one segment in seconds.
func (s *Session) SegmentSize() float64 {
	if s.result.SegmentSize > 0 {
		return s.result.SegmentSize
	}
	return DefaultSegmentSize
}

// SegmentAt maps a playback position to the segment playing at that time.
func (s *Session) SegmentAt(seconds float64) (int, bool) {
	if seconds < 0 || math.IsNaN(seconds) {
		return 0, false
	}
	idx := int(math.Floor(seconds / s.SegmentSize()))
	if idx >= len(s.result.ChunkAnalyses) {
		return 0, false
	}
	return idx, true
}

// SegmentStart is the playback position where segment i begins.
func (s *Session) SegmentStart(i int) (float64, error) {
	if i < 0 || i >= len(s.result.ChunkAnalyses) {
		return 0, fmt.Errorf("%w: %d", ErrSegmentOutOfRange, i)
	}
	return float64(i) * s.SegmentSize(), nil
}

// Preview is the short hover text for segment i.
func (s *Session) Preview(i int) (string, error) {
	if i < 0 || i >= len(s.result.ChunkAnalyses) {
		return "", fmt.Errorf("%w: %d", ErrSegmentOutOfRange, i)
	}
	return Preview(s.result.ChunkAnalyses[i].GeneralAnalyst), nil
}
