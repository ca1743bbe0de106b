package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/inqdoc/internal/fileid"
	"github.com/hyperjump/inqdoc/internal/models"
	"github.com/hyperjump/inqdoc/internal/pipeline"
)

const (
	msgProcessFailed = "could not process document"
	msgAnswerFailed  = "could not retrieve an answer"
	msgSearchFailed  = "search failed"

	defaultListLimit = 50
)

func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("ingest request", zap.String("key", req.StorageKey), zap.String("chunker", req.Chunker))
	res, err := s.pipeline.IngestDocument(r.Context(), req.StorageKey, pipeline.IngestOptionsFromRequest(&req))
	if err != nil {
		s.ingestError(w, req.StorageKey, err)
		return
	}
	s.respondIngest(w, res)
}

func (s *Server) handlePutBlob(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUpload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "document too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "could not read request body")
		return
	}
	key, err = s.pipeline.PutDocument(r.Context(), key, data)
	if err != nil {
		if errors.Is(err, models.ErrInvalidKey) {
			s.respondError(w, http.StatusBadRequest, "invalid storage key")
			return
		}
		s.logger.Error("store document failed", zap.String("key", key), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, msgProcessFailed)
		return
	}

	q := r.URL.Query()
	ingest, _ := strconv.ParseBool(q.Get("ingest"))
	if !ingest {
		s.respondJSON(w, http.StatusCreated, map[string]interface{}{"storage_key": key, "bytes": len(data)})
		return
	}
	force, _ := strconv.ParseBool(q.Get("force"))
	res, err := s.pipeline.IngestDocument(r.Context(), key, pipeline.IngestOptions{
		Chunker:     q.Get("chunker"),
		VectorStore: q.Get("vector_store"),
		Force:       force,
	})
	if err != nil {
		s.ingestError(w, key, err)
		return
	}
	s.respondIngest(w, res)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !fileid.IsDocumentID(id) {
		s.respondError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.pipeline.DeleteDocument(r.Context(), id); err != nil {
		s.logger.Error("deletion failed", zap.String("id", id), zap.Error(err))
		if isBadSelection(err) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, "could not delete document")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := intParam(q.Get("limit"), defaultListLimit)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	docs, err := s.pipeline.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "could not list documents")
		return
	}
	if docs == nil {
		docs = []*models.IndexedDocument{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"offset":    offset,
		"limit":     limit,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	settings := s.pipeline.Settings()
	if err := req.Validate(settings.Search.TopK, settings.MaxTopK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("top_k", req.TopK))
	results, err := s.pipeline.Search(r.Context(), req.Query, s.pipeline.SearchOptions(&req))
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		if isBadSelection(err) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.respondError(w, upstreamStatus(err), msgSearchFailed)
		return
	}
	if results == nil {
		results = []*models.EnhancedSearchResult{}
	}
	s.respondJSON(w, http.StatusOK, &models.SearchResponse{
		Query:     req.Query,
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	settings := s.pipeline.Settings()
	if err := req.Validate(settings.ContextResults, settings.MaxTopK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("ask request", zap.String("question", req.Query))
	resp, err := s.pipeline.Ask(r.Context(), req.Query, s.pipeline.AskOptions(&req))
	if err != nil {
		s.logger.Error("ask failed", zap.Error(err))
		switch {
		case isBadSelection(err):
			s.respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, models.ErrNoProviders):
			s.respondError(w, http.StatusServiceUnavailable, msgAnswerFailed)
		default:
			s.respondError(w, upstreamStatus(err), msgAnswerFailed)
		}
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.pipeline.Status(r.Context())
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "could not read status")
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ingestError(w http.ResponseWriter, key string, err error) {
	var (
		unsupported *models.UnsupportedFormatError
		failed      *models.ExtractionFailedError
	)
	switch {
	case errors.Is(err, models.ErrInvalidKey):
		s.respondError(w, http.StatusBadRequest, "invalid storage key")
	case errors.Is(err, models.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "document not found")
	case isBadSelection(err):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &unsupported):
		s.logger.Warn("unsupported document", zap.String("key", key), zap.Error(err))
		s.respondError(w, http.StatusUnsupportedMediaType, msgProcessFailed)
	case errors.As(err, &failed):
		s.logger.Warn("extraction failed", zap.String("key", key), zap.Error(err))
		s.respondError(w, http.StatusUnprocessableEntity, msgProcessFailed)
	default:
		s.logger.Error("ingest failed", zap.String("key", key), zap.Error(err))
		s.respondError(w, upstreamStatus(err), msgProcessFailed)
	}
}

func (s *Server) respondIngest(w http.ResponseWriter, res *models.IngestResult) {
	status := http.StatusCreated
	if res.Skipped {
		status = http.StatusOK
	}
	s.respondJSON(w, status, res)
}

// isBadSelection reports an unknown chunker or vector store.
func isBadSelection(err error) bool {
	var nie *models.NoImplementationError
	return errors.As(err, &nie)
}

// upstreamStatus is 502 for failures of an external dependency and 500 otherwise.
func upstreamStatus(err error) int {
	var (
		vs  *models.VectorStoreError
		emb *models.EmbeddingFailureError
	)
	if errors.Is(err, models.ErrAllProvidersFailed) || errors.As(err, &vs) || errors.As(err, &emb) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
