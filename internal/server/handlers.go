package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hyperjump/kioku/internal/collection"
	"github.com/hyperjump/kioku/internal/embedding"
	"go.uber.org/zap"
)

func (s *Server) request(collectionID flexString, source string, r *http.Request) collection.Request {
	if source == "" {
		source = s.config.Vectors.DefaultSource
	}
	return collection.Request{
		CollectionID: string(collectionID),
		Source:       source,
		Settings:     sourceSettings(source, r.Header),
	}
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	var body insertRequest
	if !s.decode(w, r, &body) {
		return
	}
	req := s.request(body.CollectionID, body.Source, r)
	s.logger.Debug("insert request",
		zap.String("collection", req.CollectionID),
		zap.String("source", req.Source),
		zap.Int("items", len(body.Items)))
	if err := s.manager.Insert(r.Context(), req, body.Items); err != nil {
		s.fail(w, "insert", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var body listRequest
	if !s.decode(w, r, &body) {
		return
	}
	req := s.request(body.CollectionID, body.Source, r)
	s.logger.Debug("list request", zap.String("collection", req.CollectionID), zap.String("source", req.Source))
	hashes, err := s.manager.ListHashes(r.Context(), req)
	if err != nil {
		s.fail(w, "list", err)
		return
	}
	s.respondJSON(w, http.StatusOK, hashes)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var body deleteRequest
	if !s.decode(w, r, &body) {
		return
	}
	req := s.request(body.CollectionID, body.Source, r)
	s.logger.Debug("delete request", zap.String("collection", req.CollectionID), zap.Int("hashes", len(body.Hashes)))
	if err := s.manager.Delete(r.Context(), req, body.Hashes); err != nil {
		s.fail(w, "delete", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var body queryRequest
	if !s.decode(w, r, &body) {
		return
	}
	req := s.request(body.CollectionID, body.Source, r)
	s.logger.Debug("query request",
		zap.String("collection", req.CollectionID),
		zap.String("source", req.Source),
		zap.Int("top_k", body.TopK))
	result, err := s.manager.Query(r.Context(), req, body.SearchText, body.TopK, body.Threshold)
	if err != nil {
		s.fail(w, "query", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleQueryMulti(w http.ResponseWriter, r *http.Request) {
	var body queryMultiRequest
	if !s.decode(w, r, &body) {
		return
	}
	var ids []string
	if body.CollectionIDs != nil {
		ids = make([]string, len(body.CollectionIDs))
		for i, id := range body.CollectionIDs {
			ids[i] = string(id)
		}
	}
	req := s.request("", body.Source, r)
	s.logger.Debug("query-multi request",
		zap.Strings("collections", ids),
		zap.String("source", req.Source),
		zap.Int("top_k", body.TopK))
	result, err := s.manager.QueryMulti(r.Context(), req, ids, body.SearchText, body.TopK, body.Threshold)
	if err != nil {
		s.fail(w, "query-multi", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	var body purgeRequest
	if !s.decode(w, r, &body) {
		return
	}
	if err := s.manager.Purge(r.Context(), string(body.CollectionID)); err != nil {
		s.fail(w, "purge", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePurgeAll(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.PurgeAll(r.Context()); err != nil {
		s.fail(w, "purge-all", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScopesEnabled(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]bool{"enabled": s.manager.ScopesEnabled()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.Sources()
	if err != nil {
		s.logger.Error("status: list sources failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sources == nil {
		sources = []string{}
	}
	resp := map[string]interface{}{
		"vectors_path":    s.store.Root(),
		"sources":         sources,
		"open_partitions": s.store.OpenCount(),
	}
	if diskBytes, err := s.store.DiskUsage(); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	resp["config"] = map[string]interface{}{
		"default_source":      s.config.Vectors.DefaultSource,
		"batch_size":          s.config.Vectors.BatchSize,
		"default_top_k":       s.config.Vectors.DefaultTopK,
		"enable_model_scopes": s.manager.ScopesEnabled(),
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// decode reads a JSON body into v. An empty body leaves v zero so that validation reports the missing fields.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error(op+" failed", zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

// statusFor maps caller-correctable errors to 400 and everything else to 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, collection.ErrBadRequest),
		errors.Is(err, embedding.ErrNotConfigured),
		errors.Is(err, embedding.ErrUnknownSource):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
