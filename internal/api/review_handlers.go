package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ringside/ringside-agent/internal/session"
)

// openSession resolves the review session for the {id} URL parameter,
// writing the error response itself when it cannot.
func openSession(cfg ServerConfig, w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := cfg.Sessions.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeBackendError(w, err)
		return nil, false
	}
	return s, true
}

func selectedIndex(s *session.Session) *int {
	if i, ok := s.Selection(); ok {
		return &i
	}
	return nil
}

func analysisHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := openSession(cfg, w, r)
		if !ok {
			return
		}

		result := s.Result()
		resp := AnalysisResponse{
			JobID:          s.JobID(),
			SplitStatus:    result.SplitStatus,
			AnalysisStatus: result.AnalysisStatus,
			OverallSummary: result.OverallSummary,
			SegmentSize:    s.SegmentSize(),
			Segments:       make([]SegmentResponse, 0, s.Segments()),
			Selected:       selectedIndex(s),
			Category:       s.Category(),
		}
		for i, seg := range result.ChunkAnalyses {
			start, _ := s.SegmentStart(i)
			preview, _ := s.Preview(i)
			resp.Segments = append(resp.Segments, SegmentResponse{
				Index:   i,
				StartS:  start,
				Status:  seg.Status,
				Preview: preview,
			})
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func contentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := openSession(cfg, w, r)
		if !ok {
			return
		}
		writeContent(w, s)
	}
}

func writeContent(w http.ResponseWriter, s *session.Session) {
	WriteJSON(w, http.StatusOK, ContentResponse{
		Selected: selectedIndex(s),
		Category: s.Category(),
		Content:  s.CurrentContent(),
	})
}

func selectionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := openSession(cfg, w, r)
		if !ok {
			return
		}

		var req SelectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		switch {
		case req.Segment != nil:
			if err := s.SelectSegment(*req.Segment); err != nil {
				WriteError(w, http.StatusBadRequest, err.Error(), "SEGMENT_OUT_OF_RANGE")
				return
			}
		case req.AtS != nil:
			i, found := s.SegmentAt(*req.AtS)
			if !found {
				WriteError(w, http.StatusBadRequest, "no segment at that position", "SEGMENT_OUT_OF_RANGE")
				return
			}
			if err := s.SelectSegment(i); err != nil {
				WriteError(w, http.StatusBadRequest, err.Error(), "SEGMENT_OUT_OF_RANGE")
				return
			}
		default:
			s.ClearSelection()
		}

		writeContent(w, s)
	}
}

func categoryHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := openSession(cfg, w, r)
		if !ok {
			return
		}

		var req CategoryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		c, err := session.ParseCategory(req.Category)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "UNKNOWN_CATEGORY")
			return
		}
		if err := s.SetCategory(c); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "UNKNOWN_CATEGORY")
			return
		}

		writeContent(w, s)
	}
}

func chatHistoryHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := openSession(cfg, w, r)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, ChatResponse{Messages: s.Messages(), Busy: s.ChatBusy()})
	}
}

// sendChatHandler answers once the agent has replied. Agent failures show
// up as an assistant message, not as an HTTP error.
func sendChatHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := openSession(cfg, w, r)
		if !ok {
			return
		}

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			WriteError(w, http.StatusBadRequest, "message is required", "BAD_REQUEST")
			return
		}

		if err := s.SendChatMessage(r.Context(), req.Message); err != nil {
			if errors.Is(err, session.ErrChatBusy) {
				WriteError(w, http.StatusConflict, err.Error(), "CHAT_BUSY")
				return
			}
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, ChatResponse{Messages: s.Messages(), Busy: s.ChatBusy()})
	}
}
