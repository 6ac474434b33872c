// Package server exposes the container codec over a local HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/save-resign-gateway/internal/audit"
	"github.com/kenneth/save-resign-gateway/internal/codec"
	"github.com/kenneth/save-resign-gateway/internal/config"
	"github.com/kenneth/save-resign-gateway/internal/identity"
	"github.com/kenneth/save-resign-gateway/internal/keycache"
	"github.com/kenneth/save-resign-gateway/internal/metrics"
	"github.com/kenneth/save-resign-gateway/internal/middleware"
)

// Server handles container codec requests.
type Server struct {
	codec       codec.Codec
	deriver     *identity.KeyDeriver
	cache       keycache.Cache
	audit       audit.Logger
	metrics     *metrics.Metrics
	logger      *logrus.Logger
	cfg         *config.ServerConfig
	version     string
	router      *mux.Router
	rateLimiter *middleware.RateLimiter
}

// Options bundles the server's collaborators.
type Options struct {
	Codec       codec.Codec
	Deriver     *identity.KeyDeriver
	Cache       keycache.Cache
	Audit       audit.Logger
	Metrics     *metrics.Metrics
	Logger      *logrus.Logger
	Config      *config.Config
	Version     string
	RateLimiter *middleware.RateLimiter
}

// New creates a server and wires up its routes.
func New(opts Options) *Server {
	s := &Server{
		codec:       opts.Codec,
		deriver:     opts.Deriver,
		cache:       opts.Cache,
		audit:       opts.Audit,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		cfg:         &opts.Config.Server,
		version:     opts.Version,
		rateLimiter: opts.RateLimiter,
	}

	r := mux.NewRouter()
	r.Use(middleware.RecoveryMiddleware(opts.Logger))
	r.Use(middleware.LoggingMiddleware(opts.Logger))
	r.Use(middleware.SecurityHeadersMiddleware())
	if opts.Metrics != nil {
		r.Use(middleware.MetricsMiddleware(opts.Metrics))
	}
	if opts.Config.Tracing.Enabled {
		r.Use(middleware.TracingMiddleware(opts.Config.Tracing.RedactSensitive))
	}
	if s.rateLimiter != nil {
		r.Use(middleware.RateLimitMiddleware(s.rateLimiter))
	}

	r.HandleFunc("/v1/decode", s.handleDecode).Methods(http.MethodPost)
	r.HandleFunc("/v1/encode", s.handleEncode).Methods(http.MethodPost)
	r.HandleFunc("/v1/resign", s.handleResign).Methods(http.MethodPost)
	r.HandleFunc("/v1/audit", s.handleAudit).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleDecode decodes the posted container under the identity named by the
// "identity" query parameter and returns the plaintext payload.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	identityStr := r.URL.Query().Get("identity")
	key, err := s.resolveKey(identityStr)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	container, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	payload, err := s.codec.Decode(container, key)
	duration := time.Since(start)
	if s.audit != nil {
		s.audit.LogCodec(audit.EventTypeDecode, "", identityStr, err == nil, err, duration)
	}
	if err != nil {
		s.recordCodecError("decode", err)
		s.writeCodecError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordCodecOperation("decode", duration, int64(len(container)))
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

// handleEncode encodes the posted payload into a container under the identity
// named by the "identity" query parameter.
func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	identityStr := r.URL.Query().Get("identity")
	key, err := s.resolveKey(identityStr)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	payload, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	container, err := s.codec.Encode(payload, key)
	duration := time.Since(start)
	if s.audit != nil {
		s.audit.LogCodec(audit.EventTypeEncode, "", identityStr, err == nil, err, duration)
	}
	if err != nil {
		s.recordCodecError("encode", err)
		s.writeCodecError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordCodecOperation("encode", duration, int64(len(container)))
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(container)
}

// handleResign decodes the posted container under the "from" identity and
// re-encodes it under the "to" identity.
func (s *Server) handleResign(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")

	fromKey, err := s.resolveKey(fromStr)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	toKey, err := s.resolveKey(toStr)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	container, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	payload, err := s.codec.Decode(container, fromKey)
	if err != nil {
		if s.audit != nil {
			s.audit.LogResign("", fromStr, toStr, false, err, time.Since(start))
		}
		s.recordCodecError("decode", err)
		s.writeCodecError(w, err)
		return
	}

	resigned, err := s.codec.Encode(payload, toKey)
	duration := time.Since(start)
	if s.audit != nil {
		s.audit.LogResign("", fromStr, toStr, err == nil, err, duration)
	}
	if err != nil {
		s.recordCodecError("encode", err)
		s.writeCodecError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordCodecOperation("resign", duration, int64(len(container)))
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(resigned)
}

// handleAudit returns the retained audit events.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		s.writeError(w, http.StatusNotFound, errors.New("audit logging is disabled"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s.audit.Events())
}

// handleHealth returns a liveness response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

// resolveKey derives key material for an identity string, consulting the
// cache when one is configured.
func (s *Server) resolveKey(identityStr string) ([codec.KeySize]byte, error) {
	if identityStr == "" {
		return [codec.KeySize]byte{}, errors.New("identity parameter is required")
	}
	if s.cache != nil {
		if key, ok := s.cache.Get(identityStr); ok {
			return [codec.KeySize]byte(key), nil
		}
	}

	key, err := s.deriver.DeriveKey(identityStr)
	if err != nil {
		return [codec.KeySize]byte{}, err
	}
	if s.cache != nil {
		s.cache.Put(identityStr, key)
	}
	return [codec.KeySize]byte(key), nil
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, errors.New("request body is empty")
	}
	return body, nil
}

// writeCodecError maps codec failures to HTTP statuses: malformed containers
// are client errors, integrity failures mean the key does not match.
func (s *Server) writeCodecError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, codec.ErrFormat):
		s.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, codec.ErrIntegrity), errors.Is(err, codec.ErrDecompression):
		s.writeError(w, http.StatusUnprocessableEntity, err)
	default:
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) recordCodecError(operation string, err error) {
	if s.metrics == nil {
		return
	}
	errorType := "internal"
	switch {
	case errors.Is(err, codec.ErrFormat):
		errorType = "format"
	case errors.Is(err, codec.ErrIntegrity):
		errorType = "integrity"
	case errors.Is(err, codec.ErrDecompression):
		errorType = "decompression"
	}
	s.metrics.RecordCodecError(operation, errorType)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
	})
}
