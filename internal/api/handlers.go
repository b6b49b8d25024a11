package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/itstheanurag/snipexec/internal/executor"
	"github.com/itstheanurag/snipexec/internal/languages"
	"github.com/itstheanurag/snipexec/internal/queue"
)

const StatusUnknownLanguage = "unknown_language"

type ExecutionRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Stdin    string `json:"stdin"`
	// Reply marks an implicit invocation, such as code run in reply to
	// another message. Unknown languages are then ignored silently.
	Reply bool `json:"reply"`
}

type ExecutionResponse struct {
	Status string `json:"status"`
	Output string `json:"output"`
}

type LanguageInfo struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Extension string `json:"extension"`
}

type LanguagesResponse struct {
	Languages []LanguageInfo `json:"languages"`
	Listing   string         `json:"listing"`
}

// Engine is the part of the executor the handlers need.
type Engine interface {
	Resolve(code string) (languages.Language, error)
	Assemble(o executor.Outcome) string
	Registry() *languages.Registry
}

type Handler struct {
	engine       Engine
	queueManager *queue.Manager
	logger       *zerolog.Logger
}

func NewHandler(engine Engine, manager *queue.Manager, logger *zerolog.Logger) *Handler {
	return &Handler{
		engine:       engine,
		queueManager: manager,
		logger:       logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	var req ExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	lang, err := h.engine.Resolve(req.Language)
	if err != nil {
		if !errors.Is(err, languages.ErrLanguageNotFound) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if req.Reply {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusBadRequest, ExecutionResponse{
			Status: StatusUnknownLanguage,
			Output: h.unknownLanguage(req.Language),
		})
		return
	}

	job := queue.NewJob(r.Context(), executor.Request{
		Language: lang,
		Source:   req.Code,
		Stdin:    req.Stdin,
	})
	if err := h.queueManager.Submit(job); err != nil {
		h.logger.Warn().Err(err).Str("language", lang.Code).Msg("rejecting execution")
		http.Error(w, "Execution queue is full", http.StatusServiceUnavailable)
		return
	}

	select {
	case out := <-job.Result:
		writeJSON(w, http.StatusOK, ExecutionResponse{
			Status: string(out.Kind()),
			Output: h.engine.Assemble(out),
		})
	case <-r.Context().Done():
		// Client went away; the worker sees the same context and stops.
		h.logger.Debug().Str("job_id", job.ID).Msg("client disconnected")
	}
}

func (h *Handler) unknownLanguage(code string) string {
	listing := h.engine.Registry().Available()
	if code == "" {
		return "No language specified.\nUsage: {\"language\": <language>, \"code\": <code>}\n" + listing
	}
	return fmt.Sprintf("%s is not an available language.\n%s", code, listing)
}

func (h *Handler) Languages(w http.ResponseWriter, r *http.Request) {
	reg := h.engine.Registry()
	resp := LanguagesResponse{Listing: reg.Available()}
	for _, l := range reg.List() {
		resp.Languages = append(resp.Languages, LanguageInfo{Code: l.Code, Name: l.Name, Extension: l.Extension})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
