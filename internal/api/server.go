// Package api exposes the resolver over HTTP.
//
// Routes:
//
//	GET  /healthz         liveness
//	POST /v1/resolve      resolve one image reference
//	POST /v1/preprocess   resolve every image in a content tree
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/imgembed/pkg/buildinfo"
	"github.com/matzehuels/imgembed/pkg/dimension"
	"github.com/matzehuels/imgembed/pkg/errors"
	"github.com/matzehuels/imgembed/pkg/pipeline"
	"github.com/matzehuels/imgembed/pkg/plugin"
	"github.com/matzehuels/imgembed/pkg/vector"
)

// maxBodyBytes bounds request bodies; trees may carry inline data URLs.
const maxBodyBytes = 64 << 20

// requestTimeout bounds a single request.
const requestTimeout = 2 * time.Minute

// Server serves resolver requests backed by one plugin instance.
type Server struct {
	plugin *plugin.Plugin
	logger *log.Logger
}

// New creates a Server.
func New(p *plugin.Plugin, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{plugin: p, logger: logger}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/resolve", s.resolve)
		r.Post("/preprocess", s.preprocess)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"id", middleware.GetReqID(r.Context()))
	})
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: buildinfo.Version})
}

// ResolveRequest is the body of POST /v1/resolve. Exactly one of Source
// and SVG must be set.
type ResolveRequest struct {
	Source string           `json:"source,omitempty"`
	SVG    *vector.Document `json:"svg,omitempty"`
	Width  float64          `json:"width,omitempty"`
	Height float64          `json:"height,omitempty"`
	Alt    string           `json:"alt,omitempty"`
}

// ResolveResponse is the resolved payload with its alt text.
type ResolveResponse struct {
	pipeline.Payload
	AltText string `json:"alt_text,omitempty"`
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !s.decode(w, r, &req) {
		return
	}
	if (req.Source == "") == (req.SVG == nil) {
		s.writeError(w, errors.New(errors.ErrCodeInvalidInput, "exactly one of source and svg is required"))
		return
	}

	override := dimension.Override{Width: req.Width, Height: req.Height}
	var ref pipeline.Reference
	if req.SVG != nil {
		ref = pipeline.VectorReference(vector.Literal(req.SVG.Markup, req.SVG.DiagramType), override, req.Alt)
	} else {
		ref = pipeline.NewReference(req.Source, override, req.Alt)
	}

	p := s.plugin.Runner().Resolve(r.Context(), ref)
	writeJSON(w, http.StatusOK, ResolveResponse{Payload: p, AltText: ref.AltText()})
}

// PreprocessRequest is the body of POST /v1/preprocess.
type PreprocessRequest struct {
	Tree        *plugin.Node       `json:"tree"`
	Definitions plugin.Definitions `json:"definitions,omitempty"`
}

func (s *Server) preprocess(w http.ResponseWriter, r *http.Request) {
	var req PreprocessRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Tree == nil {
		s.writeError(w, errors.New(errors.ErrCodeInvalidInput, "tree is required"))
		return
	}
	if err := s.plugin.Preprocess(r.Context(), req.Tree, req.Definitions); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeTimeout, err, "preprocess interrupted"))
		return
	}
	writeJSON(w, http.StatusOK, req.Tree)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode request"))
		return false
	}
	return true
}

type errorResponse struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidFormat, errors.ErrCodeInvalidPath:
		status = http.StatusBadRequest
	case errors.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	default:
		s.logger.Error("request failed", "err", err)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: errors.UserMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
