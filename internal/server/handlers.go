package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/chitose/kotae/internal/ingest"
	"github.com/chitose/kotae/internal/models"
	"github.com/chitose/kotae/internal/qa"
)

// unavailableMessage is what callers see when the pipeline fails for any
// internal reason. The real cause goes to the log, never over the wire.
const unavailableMessage = "the service is temporarily unable to answer; try again shortly"

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("ask request", zap.String("q", req.Q))

	start := time.Now()
	answer, err := s.engine.Ask(r.Context(), req.Q)
	if err != nil {
		if errors.Is(err, qa.ErrBadRequest) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("ask failed", zap.String("q", req.Q), zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, unavailableMessage)
		return
	}

	s.respondJSON(w, http.StatusOK, &models.AskResponse{
		Answer:      answer.Text,
		Citations:   answer.Citations,
		QueryTimeMS: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	_, err := s.index.Count(ctx)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"index":            err == nil,
		"embedding_model":  s.config.Embedding.Model,
		"generation_model": s.config.Generation.Model,
	})
}

// handleIngest runs an ingestion pass. The optional body {"path": ...} names
// a file or directory; without it the whole corpus directory is ingested.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if r.Body != nil {
		// An empty body means "ingest the corpus dir"; only malformed JSON
		// is rejected.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	target := req.Path
	if target == "" {
		target = s.config.Corpus.Dir
	}
	s.logger.Debug("ingest request", zap.String("path", target))

	info, err := os.Stat(target)
	if err != nil {
		s.logger.Error("ingest failed", zap.String("path", target), zap.Error(err))
		if req.Path != "" {
			s.respondError(w, http.StatusBadRequest, "path does not exist")
		} else {
			s.respondError(w, http.StatusInternalServerError, "could not read corpus directory")
		}
		return
	}

	var report *ingest.Report
	if info.IsDir() {
		report, err = s.pipeline.IngestDirectory(r.Context(), target, s.config.Corpus.Extensions)
	} else {
		report, err = s.pipeline.IngestFile(r.Context(), s.config.Corpus.Dir, target)
	}
	if err != nil {
		s.logger.Error("ingest failed", zap.String("path", target), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "could not read ingest path")
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		s.respondError(w, http.StatusBadRequest, "id query parameter is required")
		return
	}
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.pipeline.DeleteDocument(r.Context(), id); err != nil {
		s.logger.Error("deletion failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, unavailableMessage)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.catalog.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "catalog unavailable")
		return
	}
	chunkCount, err := s.catalog.CountChunks(ctx)
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "catalog unavailable")
		return
	}

	resp := map[string]interface{}{
		"documents": docCount,
		"chunks":    chunkCount,
	}

	countCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if points, err := s.index.Count(countCtx); err == nil {
		resp["index_points"] = points
		resp["index_available"] = true
	} else {
		resp["index_available"] = false
	}
	resp["catalog_size_bytes"] = s.catalog.SizeBytes()

	resp["config"] = map[string]interface{}{
		"collection":           s.config.Index.Collection,
		"embedding_model":      s.config.Embedding.Model,
		"embedding_dimensions": s.config.Embedding.Dimensions,
		"generation_model":     s.config.Generation.Model,
		"top_k":                s.config.Retrieval.TopK,
		"min_score":            s.config.Retrieval.MinScore,
		"chunk_max_chars":      s.config.Chunking.MaxChars,
		"chunk_overlap_chars":  s.config.Chunking.OverlapChars,
		"max_context_chars":    s.config.Prompt.MaxContextChars,
		"corpus_dir":           s.config.Corpus.Dir,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
