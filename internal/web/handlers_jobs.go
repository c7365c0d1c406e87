package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/adminjobs/internal/core"
	"github.com/JonMunkholm/adminjobs/internal/logging"
)

// multipartOverhead is allowed on top of the upload limit for form framing.
const multipartOverhead = 1 << 20

// enqueueResponse is returned with 202 by both enqueue endpoints.
type enqueueResponse struct {
	JobID string `json:"jobId"`
}

// jobResponse is a job snapshot with its completion percentage.
type jobResponse struct {
	core.Job
	Percent int `json:"percent"`
}

func newJobResponse(j core.Job) jobResponse {
	return jobResponse{Job: j, Percent: j.Percent()}
}

// exportBody is the JSON body of an export request. Every field is optional.
type exportBody struct {
	Filters     core.FilterCriteria `json:"filters"`
	SelectedIDs []string            `json:"selectedIds"`
	Format      string              `json:"format"`
}

// handleImport accepts a multipart upload (field "file", optional form value
// "strategy") and queues an import job.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	kind := entityParam(r)
	limit := int64(s.cfg.Jobs.MaxUploadSize)
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			err = fmt.Errorf("%w: limit is %d bytes", core.ErrUploadTooLarge, limit)
		case errors.Is(err, http.ErrMissingFile):
			err = fmt.Errorf("%w: no file in form field \"file\"", core.ErrEmptyUpload)
		default:
			err = fmt.Errorf("%w: %v", core.ErrEmptyUpload, err)
		}
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	jobID, err := s.service.EnqueueImport(r.Context(), core.ImportRequest{
		Tenant:     tenantOf(r),
		EntityKind: kind,
		FileName:   header.Filename,
		Reader:     file,
		Strategy:   r.FormValue("strategy"),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.WithFields(r.Context(), "job_id", jobID, "entity_kind", kind).
		Debug("import accepted", "file_name", header.Filename, "size", header.Size)
	s.accepted(w, jobID)
}

// handleExport queues an export job from a JSON body.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var body exportBody
	if r.Body != nil {
		dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			s.respondError(w, r, fmt.Errorf("%w: %v", core.ErrInvalidFilters, err))
			return
		}
	}

	jobID, err := s.service.EnqueueExport(r.Context(), core.ExportRequest{
		Tenant:      tenantOf(r),
		EntityKind:  entityParam(r),
		Filters:     body.Filters,
		SelectedIDs: body.SelectedIDs,
		Format:      body.Format,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.accepted(w, jobID)
}

func (s *Server) accepted(w http.ResponseWriter, jobID string) {
	w.Header().Set("Location", "/api/v1/jobs/"+jobID)
	writeJSON(w, http.StatusAccepted, enqueueResponse{JobID: jobID})
}

// handleListJobs returns the tenant's most recent jobs.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.service.ListJobs(r.Context(), tenantOf(r), parseIntParam(r, "limit", core.DefaultJobListLimit))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]jobResponse, len(jobs))
	for i, j := range jobs {
		out[i] = newJobResponse(j)
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

// handleGetJob returns one job snapshot for polling.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.GetStatus(r.Context(), tenantOf(r), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job))
}

// handleCancelJob cancels a pending or running job.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.CancelJob(r.Context(), tenantOf(r), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job))
}

// handleDownloadExport streams a completed export. An export that matched
// nothing answers 200 with {"message":"no data"}.
func (s *Server) handleDownloadExport(w http.ResponseWriter, r *http.Request) {
	d, err := s.service.DownloadExport(r.Context(), tenantOf(r), chi.URLParam(r, "jobID"))
	if errors.Is(err, core.ErrNoExportData) {
		writeJSON(w, http.StatusOK, map[string]string{"message": core.ErrNoExportData.Error()})
		return
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeDownload(w, d)
}

// handleDownloadErrorReport streams an import error report CSV.
func (s *Server) handleDownloadErrorReport(w http.ResponseWriter, r *http.Request) {
	d, err := s.service.DownloadErrorReport(r.Context(), tenantOf(r), chi.URLParam(r, "reportID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeDownload(w, d)
}

func writeDownload(w http.ResponseWriter, d core.Download) {
	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(d.Bytes)))
	if d.FileName != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.FileName}))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(d.Bytes)
}
