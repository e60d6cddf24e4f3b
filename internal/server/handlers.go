package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tjfontaine/companion-core/internal/conversation"
	"github.com/tjfontaine/companion-core/internal/domain"
	"github.com/tjfontaine/companion-core/internal/storage"
	"github.com/tjfontaine/companion-core/internal/telemetry"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type windowRequest struct {
	History   []domain.Message `json:"history"`
	Message   string           `json:"message"`
	Timestamp *int64           `json:"timestamp,omitempty"`
}

type windowResponse struct {
	Messages      []domain.Message `json:"messages"`
	ContextTokens int              `json:"contextTokens"`
	Estimated     bool             `json:"estimated"`
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	var req windowRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		writeError(w, r, apiErr)
		return
	}
	for i, msg := range req.History {
		if !msg.Role.Valid() {
			writeError(w, r, domain.ErrInvalidRequest(fmt.Sprintf("unknown role %q", msg.Role)).
				WithParam(fmt.Sprintf("history[%d].role", i)))
			return
		}
	}

	nowMS := s.now().UnixMilli()
	if req.Timestamp != nil {
		nowMS = *req.Timestamp
	}

	_, span := telemetry.Tracer().Start(r.Context(), "conversation.BuildRecentMessages")
	messages := conversation.BuildRecentMessagesAt(req.History, req.Message, nowMS)
	contextTokens := s.counter.CountMessages(messages)
	span.SetAttributes(
		attribute.Int("window.history_len", len(req.History)),
		attribute.Int("window.size", len(messages)),
		attribute.Int("window.tokens", contextTokens),
	)
	span.End()

	AddLogField(r.Context(), "window_size", strconv.Itoa(len(messages)))
	writeJSON(w, http.StatusOK, windowResponse{
		Messages:      messages,
		ContextTokens: contextTokens,
		Estimated:     s.counter.Estimated(),
	})
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	var in domain.ChatMetricInput
	if apiErr := decodeJSON(w, r, &in); apiErr != nil {
		writeError(w, r, apiErr)
		return
	}
	if apiErr := in.Validate(); apiErr != nil {
		writeError(w, r, apiErr)
		return
	}

	s.collector.Record(in)
	writeJSON(w, http.StatusAccepted, map[string]bool{"recorded": true})
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.collector.Aggregate())
}

func (s *Server) handleInRange(w http.ResponseWriter, r *http.Request) {
	start := time.Unix(0, 0).UTC()
	end := s.now().UTC()

	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeError(w, r, domain.ErrInvalidRequest("start must be an RFC 3339 timestamp").WithParam("start"))
			return
		}
		start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeError(w, r, domain.ErrInvalidRequest("end must be an RFC 3339 timestamp").WithParam("end"))
			return
		}
		end = t
	}
	if start.After(end) {
		writeError(w, r, domain.ErrInvalidRequest("start is after end").WithParam("start"))
		return
	}

	found := s.collector.InRange(start, end)
	if found == nil {
		found = []domain.ChatMetric{}
	}
	writeJSON(w, http.StatusOK, map[string][]domain.ChatMetric{"metrics": found})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.collector.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.collector.Export())
}

type runExportResponse struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	TotalMessages int       `json:"totalMessages"`
	Archived      bool      `json:"archived"`
}

func (s *Server) handleRunExport(w http.ResponseWriter, r *http.Request) {
	rec, err := s.exporter.RunOnce(r.Context())
	if err != nil {
		writeError(w, r, domain.ErrServer("export failed: "+err.Error()))
		return
	}

	AddLogField(r.Context(), "export_id", rec.ID)
	writeJSON(w, http.StatusCreated, runExportResponse{
		ID:            rec.ID,
		CreatedAt:     rec.CreatedAt,
		TotalMessages: rec.TotalMessages,
		Archived:      s.store != nil,
	})
}

type listExportsResponse struct {
	Exports []*storage.ExportRecord `json:"exports"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
}

func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, r, domain.ErrUnavailable("export archive is disabled"))
		return
	}

	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		writeError(w, r, apiErr)
		return
	}

	exports, err := s.store.ListExports(r.Context(), opts)
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, r, domain.ErrServer("failed to list exports"))
		return
	}
	if exports == nil {
		exports = []*storage.ExportRecord{}
	}

	opts = opts.Normalized()
	writeJSON(w, http.StatusOK, listExportsResponse{Exports: exports, Limit: opts.Limit, Offset: opts.Offset})
}

func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, r, domain.ErrUnavailable("export archive is disabled"))
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := s.store.GetExport(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, domain.ErrNotFound(fmt.Sprintf("export %s not found", id)).WithParam("id"))
			return
		}
		AddError(r.Context(), err)
		writeError(w, r, domain.ErrServer("failed to load export"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func parseListOptions(r *http.Request) (storage.ListOptions, *domain.APIError) {
	var opts storage.ListOptions
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, domain.ErrInvalidRequest("limit must be a non-negative integer").WithParam("limit")
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, domain.ErrInvalidRequest("offset must be a non-negative integer").WithParam("offset")
		}
		opts.Offset = n
	}
	return opts, nil
}
