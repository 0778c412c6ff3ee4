package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jmbento/omnicall-ai/internal/models"
	"github.com/jmbento/omnicall-ai/internal/service"
)

const (
	maxUploadBytes = 32 << 20

	// defaultSearchLimit matches the context size of the search endpoint,
	// larger than the session default.
	defaultSearchLimit = 10
)

type uploadResponse struct {
	Success     bool                  `json:"success"`
	Message     string                `json:"message"`
	Filename    string                `json:"filename"`
	CartridgeID string                `json:"cartridgeId"`
	Result      *service.IngestResult `json:"result,omitempty"`
	Job         *service.Job          `json:"job,omitempty"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		Error(w, http.StatusBadRequest, "expected multipart form")
		return
	}
	userID := r.FormValue("userId")
	cartridgeID := r.FormValue("cartridgeId")
	file, header, err := r.FormFile("file")
	if err != nil || userID == "" || cartridgeID == "" {
		Error(w, http.StatusBadRequest, "Missing required fields: file, userId, cartridgeId")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		Error(w, http.StatusBadRequest, "could not read file")
		return
	}

	if r.FormValue("async") == "true" {
		job := s.deps.Ingester.IngestAsync(s.deps.Jobs, userID, cartridgeID,
			[]service.FileContent{{Path: header.Filename, Content: string(content)}})
		snap := job.Snapshot()
		JSON(w, http.StatusAccepted, uploadResponse{
			Success:     true,
			Message:     "Document " + header.Filename + " queued",
			Filename:    header.Filename,
			CartridgeID: cartridgeID,
			Job:         &snap,
		})
		return
	}

	s.logger.Info("processing document", "file", header.Filename, "cartridge", cartridgeID)
	result, err := s.deps.Ingester.Ingest(r.Context(), userID, cartridgeID, header.Filename, string(content))
	if err != nil {
		s.fail(w, r, err, "Failed to process document")
		return
	}
	JSON(w, http.StatusOK, uploadResponse{
		Success:     true,
		Message:     "Document " + header.Filename + " processed successfully",
		Filename:    header.Filename,
		CartridgeID: cartridgeID,
		Result:      result,
	})
}

type retrieveResponse struct {
	Context string               `json:"context"`
	Chunks  []models.ChunkResult `json:"chunks"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cartridgeID, query := q.Get("cartridgeId"), q.Get("query")
	if cartridgeID == "" || query == "" {
		Error(w, http.StatusBadRequest, "Missing cartridgeId or query")
		return
	}
	limit := defaultSearchLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	chunks, err := s.deps.Retriever.RetrieveChunks(r.Context(), cartridgeID, query, limit)
	if err != nil {
		s.fail(w, r, err, "Search failed")
		return
	}
	JSON(w, http.StatusOK, retrieveResponse{Context: service.JoinContext(chunks), Chunks: chunks})
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	jobs := s.deps.Jobs.ListJobs()
	out := make([]service.Job, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot())
	}
	JSON(w, http.StatusOK, out)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job := s.deps.Jobs.GetJob(chi.URLParam(r, "id"))
	if job == nil {
		Error(w, http.StatusNotFound, "job not found")
		return
	}
	JSON(w, http.StatusOK, job.Snapshot())
}
