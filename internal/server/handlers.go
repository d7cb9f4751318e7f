package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/docanalysis/internal/entityindex"
	"github.com/hyperjump/docanalysis/internal/fileid"
	"github.com/hyperjump/docanalysis/internal/markup"
	"github.com/hyperjump/docanalysis/internal/models"
	"github.com/hyperjump/docanalysis/internal/procedure"
	"github.com/hyperjump/docanalysis/internal/resolver"
	"github.com/hyperjump/docanalysis/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contentCount, err := s.storage.CountContent(ctx)
	if err != nil {
		s.logger.Error("status: count content failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jobs := make(map[string]int64)
	for _, status := range []models.JobStatus{models.JobStatusQueued, models.JobStatusRunning, models.JobStatusComplete, models.JobStatusError} {
		n, err := s.storage.CountJobs(ctx, status)
		if err != nil {
			s.logger.Error("status: count jobs failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		jobs[string(status)] = n
	}
	resp := map[string]interface{}{
		"content": contentCount,
		"jobs":    jobs,
	}
	if s.entities != nil {
		if n, err := s.entities.DocCount(); err == nil {
			resp["entity_mentions"] = n
		}
	}
	if s.watch != nil {
		resp["watch_directories"] = s.watch.Directories()
	}
	if cfg := s.appConfig; cfg != nil {
		resp["config"] = map[string]interface{}{
			"database_path":      cfg.Storage.DatabasePath,
			"content_root":       cfg.Storage.ContentRoot,
			"entity_index_path":  cfg.Storage.EntityIndexPath,
			"max_segment_length": cfg.Analysis.MaxSegmentLength,
			"default_language":   cfg.Analysis.DefaultLanguage,
			"model_runtime":      cfg.Models.RuntimeVersion,
			"workers":            cfg.Dispatch.Workers,
		}
		diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.ContentRoot, cfg.Storage.EntityIndexPath)
		if err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProcedures(w http.ResponseWriter, r *http.Request) {
	defs, err := s.procedures.Definitions(r.Context())
	if err != nil {
		s.logger.Error("list procedures failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"procedures": defs})
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	table, err := s.languages.Languages(r.Context())
	if err != nil {
		s.logger.Error("list languages failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"languages": sortedLanguages(table)})
}

func sortedLanguages(table map[string]models.LanguageInfo) []models.LanguageInfo {
	out := make([]models.LanguageInfo, 0, len(table))
	for _, info := range table {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Server) handleCreateContent(w http.ResponseWriter, r *http.Request) {
	var input models.ContentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := input.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	abs, err := filepath.Abs(input.SourcePath)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid source_path")
		return
	}
	if info, err := os.Stat(abs); err != nil || info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "source_path is not a readable file")
		return
	}
	id := input.ID
	if id == "" {
		id = fileid.ContentID(abs)
	}
	record := &models.ContentRecord{
		ID:         id,
		Name:       input.Name,
		SourcePath: abs,
		Path:       s.layout().ContentDir(id),
	}
	s.logger.Debug("create content request", zap.String("id", id), zap.String("name", input.Name))
	if err := s.storage.CreateContent(r.Context(), record); err != nil {
		if errors.Is(err, storage.ErrExists) {
			s.respondError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("create content failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, record)
}

func (s *Server) handleListContent(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r)
	records, err := s.storage.ListContent(r.Context(), offset, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"content": records, "offset": offset, "limit": limit})
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	record, ok := s.content(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, record)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	record, ok := s.content(w, r)
	if !ok {
		return
	}
	jobs, err := s.storage.ListJobs(r.Context(), record.ID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

type submitRequest struct {
	Params map[string]string `json:"params"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "id")
	key := chi.URLParam(r, "procedure")
	var req submitRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if lang, ok := req.Params["language"]; ok {
		table, err := s.languages.Languages(r.Context())
		if err != nil {
			s.respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		if _, known := table[lang]; !known {
			msg := "unknown language: " + lang
			names := make([]string, 0, len(table))
			for n := range table {
				names = append(names, n)
			}
			if hint := resolver.Suggest(lang, names); hint != "" {
				msg += fmt.Sprintf(" (did you mean %q?)", hint)
			}
			s.respondError(w, http.StatusBadRequest, msg)
			return
		}
	}

	s.logger.Debug("submit request", zap.String("content", contentID), zap.String("procedure", key))
	job, err := s.submitter.Submit(r.Context(), key, contentID, req.Params)
	switch {
	case errors.Is(err, procedure.ErrUnknownProcedure):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "content not found")
	case err != nil:
		s.logger.Error("submit failed", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.respondJSON(w, http.StatusAccepted, job)
	}
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.storage.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "job not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleTaggedText(w http.ResponseWriter, r *http.Request) {
	path, ok := s.taggedText(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	http.ServeFile(w, r, path)
}

func (s *Server) handleContentEntities(w http.ResponseWriter, r *http.Request) {
	path, ok := s.taggedText(w, r)
	if !ok {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()
	mentions, err := markup.ReadMentions(f)
	if err != nil {
		s.logger.Error("tagged text unreadable", zap.String("path", path), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	label := r.URL.Query().Get("label")
	counts := make(map[string]int)
	filtered := make([]markup.Mention, 0, len(mentions))
	for _, m := range mentions {
		if label != "" && m.Label != label {
			continue
		}
		counts[m.Label]++
		filtered = append(filtered, m)
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"entities": filtered, "counts": counts})
}

func (s *Server) handleSearchEntities(w http.ResponseWriter, r *http.Request) {
	if s.entities == nil {
		s.respondError(w, http.StatusNotImplemented, "entity index not enabled")
		return
	}
	q := r.URL.Query()
	opts := entityindex.SearchOptions{
		Label:     q.Get("label"),
		ContentID: q.Get("content_id"),
	}
	if v := q.Get("fuzziness"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 2 {
			s.respondError(w, http.StatusBadRequest, "fuzziness must be 0, 1 or 2")
			return
		}
		opts.Fuzziness = n
	}
	_, opts.Limit = pagination(r)
	mentions, err := s.entities.Search(r.Context(), q.Get("q"), opts)
	if err != nil {
		s.logger.Error("entity search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"entities": mentions})
}

// content loads the record named by the {id} URL parameter, responding with
// an error when it cannot.
func (s *Server) content(w http.ResponseWriter, r *http.Request) (*models.ContentRecord, bool) {
	record, err := s.storage.GetContent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "content not found")
			return nil, false
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return record, true
}

func (s *Server) taggedText(w http.ResponseWriter, r *http.Request) (string, bool) {
	record, ok := s.content(w, r)
	if !ok {
		return "", false
	}
	tagged := record.Procedures.TagEntities
	if tagged == nil {
		s.respondError(w, http.StatusNotFound, "entities have not been tagged for this content")
		return "", false
	}
	return tagged.TaggedTextFile, true
}

func (s *Server) layout() storage.Layout {
	if s.appConfig == nil {
		return storage.Layout{}
	}
	return storage.Layout{
		Root:   s.appConfig.Storage.ContentRoot,
		Engine: s.appConfig.Analysis.EngineName,
		Ext:    s.appConfig.Analysis.ArtifactExt,
	}
}

func pagination(r *http.Request) (offset, limit int) {
	q := r.URL.Query()
	offset, _ = strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}
	limit, _ = strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return offset, limit
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
