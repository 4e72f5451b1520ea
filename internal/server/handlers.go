package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
)

// maxImageBytes bounds multipart uploads.
const maxImageBytes = 32 << 20

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "API is UP"})
}

func (s *Server) handleIndexText(w http.ResponseWriter, r *http.Request) {
	var p models.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("index text request", zap.Int64("product_id", p.ID), zap.String("name", p.Name))
	if err := s.engine.IndexText(r.Context(), &p); err != nil {
		s.fail(w, r, "index text failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Item indexed successfully"})
}

func (s *Server) handleIndexImage(w http.ResponseWriter, r *http.Request) {
	data, err := s.readImage(w, r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := strconv.ParseInt(r.FormValue("productId"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "productId must be an integer")
		return
	}
	name := r.FormValue("name")
	s.logger.Debug("index image request", zap.Int64("product_id", id), zap.String("name", name), zap.Int("bytes", len(data)))
	if err := s.engine.IndexImage(r.Context(), id, name, data); err != nil {
		s.fail(w, r, "index image failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Item indexed successfully"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.String("search_type", req.SearchType), zap.Int("top_k", req.TopK))
	resp, err := s.engine.Search(r.Context(), &req)
	if err != nil {
		s.fail(w, r, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearchImage(w http.ResponseWriter, r *http.Request) {
	data, err := s.readImage(w, r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	topK := 0
	if v := r.FormValue("topK"); v != "" {
		if topK, err = strconv.Atoi(v); err != nil || topK <= 0 {
			s.respondError(w, http.StatusBadRequest, "topK must be a positive integer")
			return
		}
	}
	resp, err := s.engine.SearchImage(r.Context(), data, topK)
	if err != nil {
		s.fail(w, r, "image search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "product id must be an integer")
		return
	}
	view, err := s.engine.GetProduct(r.Context(), id)
	if err != nil {
		s.fail(w, r, "get product failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Status(r.Context())
	if err != nil {
		s.fail(w, r, "status failed", err)
		return
	}
	resp := map[string]interface{}{
		"index":     stats.Name,
		"uuid":      stats.UUID,
		"documents": stats.Documents,
		"backend":   stats.Backend,
	}
	if len(s.diskPaths) > 0 {
		if n, err := storage.DiskUsageBytes(s.diskPaths...); err == nil {
			resp["disk_usage_bytes"] = n
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// readImage parses a multipart form and returns the "file" part.
func (s *Server) readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		return nil, fmt.Errorf("invalid multipart form: %v", err)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("file is required")
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read file: %v", err)
	}
	if len(data) == 0 {
		return nil, errors.New("file is empty")
	}
	return data, nil
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidArgument), errors.Is(err, models.ErrDimensionMismatch):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrWriteConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrStoreUnavailable), errors.Is(err, models.ErrIndexMissing):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	fields := []zap.Field{zap.String("request_id", RequestIDFrom(r.Context())), zap.Error(err)}
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, fields...)
	} else {
		s.logger.Debug(msg, fields...)
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
