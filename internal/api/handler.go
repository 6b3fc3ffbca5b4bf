// Package api exposes the annotation pipeline over HTTP.
//
//	POST /v1/annotate?name=<object name>   image bytes as the body
//	GET  /health
//
// A request either publishes a new record and returns it, or fails with a
// classified error; there is no partial success.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/vision-archiver/internal/pipeline"
	"github.com/fpang/vision-archiver/internal/vision"
)

// Processor runs one pipeline invocation.
type Processor interface {
	Process(ctx context.Context, ev pipeline.Event) (*pipeline.Outcome, error)
	MaxImageBytes() int64
}

// Handler serves the annotation API.
type Handler struct {
	proc Processor
	mux  *http.ServeMux
}

// NewHandler routes the API onto proc.
func NewHandler(proc Processor) *Handler {
	h := &Handler{proc: proc, mux: http.NewServeMux()}
	h.mux.HandleFunc("/v1/annotate", h.handleAnnotate)
	h.mux.HandleFunc("/health", handleHealth)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// AnnotateResponse is the success payload.
type AnnotateResponse struct {
	Status     string         `json:"status"`
	RunID      string         `json:"run_id"`
	Record     *vision.Result `json:"record"`
	ArchivedTo *string        `json:"archived_to"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Class   string `json:"class"`
	Step    string `json:"step,omitempty"`
	Message string `json:"message"`
}

// ErrorResponse is the failure payload.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func (h *Handler) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		respondError(w, http.StatusMethodNotAllowed, ErrorBody{
			Kind: pipeline.KindValidation.String(), Class: "client", Message: "method not allowed",
		})
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		respondError(w, http.StatusBadRequest, ErrorBody{
			Kind: pipeline.KindValidation.String(), Class: "client", Message: "name query parameter is required",
		})
		return
	}

	limit := h.proc.MaxImageBytes()
	if r.ContentLength > limit {
		tooLarge(w, name, r.ContentLength)
		return
	}
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			tooLarge(w, name, mbe.Limit)
			return
		}
		log.Warn().Err(err).Str("object", name).Msg("Failed to read request body")
		respondError(w, http.StatusBadRequest, ErrorBody{
			Kind: pipeline.KindValidation.String(), Class: "client", Message: "failed to read body",
		})
		return
	}

	out, err := h.proc.Process(r.Context(), pipeline.BytesEvent(name, "http:"+name, body))
	if err != nil {
		status, payload := classify(err)
		respondError(w, status, payload)
		return
	}

	resp := AnnotateResponse{Status: "published", RunID: out.RunID, Record: out.Record}
	if out.Publication != nil && out.Publication.ArchivedTo != nil {
		loc := out.Publication.ArchivedTo.String()
		resp.ArchivedTo = &loc
	}
	respondJSON(w, http.StatusOK, resp)
}

func tooLarge(w http.ResponseWriter, name string, size int64) {
	log.Warn().Str("object", name).Int64("size", size).Msg("Request body over limit")
	respondError(w, http.StatusRequestEntityTooLarge, ErrorBody{
		Kind: pipeline.KindValidation.String(), Class: "client", Message: pipeline.ErrTooLarge.Error(),
	})
}

// classify maps a pipeline failure to a status and a client-safe payload.
// Server-side failures do not echo the underlying error.
func classify(err error) (int, ErrorBody) {
	kind := pipeline.KindOf(err)
	body := ErrorBody{Kind: kind.String(), Class: kind.Class()}
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		body.Step = string(pe.Step)
	}

	var status int
	switch kind {
	case pipeline.KindValidation:
		status = http.StatusBadRequest
	case pipeline.KindDecode:
		status = http.StatusUnprocessableEntity
	case pipeline.KindAnnotation, pipeline.KindArchive:
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}

	if kind.ClientCaused() && pe != nil {
		body.Message = pe.Err.Error()
	} else {
		body.Message = http.StatusText(status)
	}
	return status, body
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func respondError(w http.ResponseWriter, status int, body ErrorBody) {
	respondJSON(w, status, ErrorResponse{Error: body})
}
