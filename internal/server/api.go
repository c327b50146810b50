package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/reviewgen/internal/apperr"
	"github.com/TobiSchelling/reviewgen/internal/dashboard"
	"github.com/TobiSchelling/reviewgen/internal/extract"
	"github.com/TobiSchelling/reviewgen/internal/generate"
	"github.com/TobiSchelling/reviewgen/internal/spell"
)

type errorBody struct {
	Error  string              `json:"error"`
	Kind   string              `json:"kind"`
	Reason string              `json:"reason,omitempty"`
	Fields []apperr.FieldError `json:"fields,omitempty"`
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindExtraction:
		return http.StatusUnprocessableEntity
	case apperr.KindGeneration, apperr.KindImageProvider:
		return http.StatusBadGateway
	case apperr.KindAudit:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	kind := apperr.KindOf(err)
	s.metrics.outcomes.WithLabelValues(op, string(kind)).Inc()

	body := errorBody{Error: err.Error(), Kind: string(kind)}
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}
	var xerr *extract.ExtractionError
	if errors.As(err, &xerr) {
		body.Reason = string(xerr.Reason)
	}

	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("operation", op).Msg("request failed")
	}
	writeJSON(w, status, body)
}

func (s *Server) ok(w http.ResponseWriter, op string, v any) {
	s.metrics.outcomes.WithLabelValues(op, "ok").Inc()
	writeJSON(w, http.StatusOK, v)
}

// decode reads a JSON body. Unknown fields are ignored.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error(), Kind: "bad_request"})
		return false
	}
	return true
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if !decode(w, r, &body) {
		return
	}
	rec, err := s.ctrl.Scrape(r.Context(), body.URL)
	if err != nil {
		s.writeError(w, "extract", err)
		return
	}
	s.ok(w, "extract", rec)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generate.Request
	if !decode(w, r, &req) {
		return
	}
	article, err := s.ctrl.GenerateRequest(r.Context(), req)
	if err != nil {
		s.writeError(w, "generate", err)
		return
	}
	s.ok(w, "generate", article)
}

func (s *Server) handleSpellcheck(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if !decode(w, r, &body) {
		return
	}
	issues, err := s.ctrl.Spellcheck(r.Context(), body.Text)
	if err != nil {
		s.writeError(w, "spellcheck", err)
		return
	}
	if issues == nil {
		issues = []spell.Issue{}
	}
	s.ok(w, "spellcheck", map[string]any{"issues": issues})
}

func (s *Server) handleSubmitImage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt      string `json:"prompt"`
		AspectRatio string `json:"aspectRatio"`
	}
	if !decode(w, r, &body) {
		return
	}
	entry, err := s.ctrl.SubmitImage(r.Context(), body.Prompt, body.AspectRatio)
	if err != nil {
		s.writeError(w, "image", err)
		return
	}
	s.ok(w, "image", entry)
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ctrl.Images()
	if err != nil {
		s.writeError(w, "image_log", err)
		return
	}
	if entries == nil {
		entries = []dashboard.ImageEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Markdown string `json:"markdown"`
	}
	if !decode(w, r, &body) {
		return
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(body.Markdown), &buf); err != nil {
		s.writeError(w, "preview", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"html": buf.String()})
}
