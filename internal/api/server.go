package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/omnicore/content-scraper/internal/config"
	"github.com/omnicore/content-scraper/internal/scraper"
)

// JobService is the orchestrator surface the HTTP layer depends on.
type JobService interface {
	Submit(ctx context.Context, kind scraper.JobKind, urls []string, base scraper.Request, owner string) (scraper.Job, error)
	Cancel(ctx context.Context, jobID string) error
	Delete(ctx context.Context, jobID string) error
}

// Server wires HTTP handlers to the orchestrator and job store.
type Server struct {
	router  chi.Router
	store   scraper.JobStore
	jobs    JobService
	checker scraper.Validator
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store scraper.JobStore,
	jobs JobService,
	checker scraper.Validator,
	metricsHandler http.Handler,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:   store,
		jobs:    jobs,
		checker: checker,
		cfg:     cfg,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/scrape", s.submitSingle)
		r.Post("/scrape/batch", s.submitBatch)
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/status", s.jobStatus)
				r.Get("/results", s.jobResults)
				r.Delete("/", s.deleteJob)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The store is the only hard dependency at request time.
	if _, err := s.store.List(r.Context(), "", scraper.JobFilter{Limit: 1}); err != nil {
		writeError(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type scrapeRequest struct {
	URL             string   `json:"url"`
	URLs            []string `json:"urls"`
	ExtractImages   bool     `json:"extract_images"`
	ExtractLinks    bool     `json:"extract_links"`
	FollowRedirects *bool    `json:"follow_redirects"`
	DelaySeconds    *float64 `json:"delay_seconds"`
	UserAgent       string   `json:"user_agent"`
}

const maxUserAgentLength = 200

// toRequest validates shared options and produces the per-URL template.
func (s *Server) toRequest(req scrapeRequest) (scraper.Request, error) {
	delay := 1.0
	if req.DelaySeconds != nil {
		delay = *req.DelaySeconds
	}
	if delay < s.cfg.Scraper.MinDelaySeconds || delay > s.cfg.Scraper.MaxDelaySeconds {
		return scraper.Request{}, fmt.Errorf("delay_seconds must be between %g and %g",
			s.cfg.Scraper.MinDelaySeconds, s.cfg.Scraper.MaxDelaySeconds)
	}
	if len(req.UserAgent) > maxUserAgentLength {
		return scraper.Request{}, fmt.Errorf("user_agent exceeds %d characters", maxUserAgentLength)
	}
	follow := true
	if req.FollowRedirects != nil {
		follow = *req.FollowRedirects
	}
	return scraper.Request{
		ExtractImages:   req.ExtractImages,
		ExtractLinks:    req.ExtractLinks,
		FollowRedirects: follow,
		DelaySeconds:    delay,
		UserAgent:       strings.TrimSpace(req.UserAgent),
	}, nil
}

func (s *Server) submitSingle(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	base, err := s.toRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.checker.Validate(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("url rejected: %v", err))
		return
	}
	base.URL = req.URL

	job, err := s.jobs.Submit(r.Context(), scraper.JobKindSingle, []string{req.URL}, base, ownerFrom(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, submissionResponse(job))
}

func (s *Server) submitBatch(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls must list at least one URL")
		return
	}
	if len(req.URLs) > s.cfg.Scraper.MaxBatchURLs {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("urls exceeds the batch limit of %d", s.cfg.Scraper.MaxBatchURLs))
		return
	}
	base, err := s.toRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, u := range req.URLs {
		if err := s.checker.Validate(u); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("url %q rejected: %v", u, err))
			return
		}
	}

	job, err := s.jobs.Submit(r.Context(), scraper.JobKindBatch, req.URLs, base, ownerFrom(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, submissionResponse(job))
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	filter := scraper.JobFilter{Limit: 50}
	if v := r.URL.Query().Get("status"); v != "" {
		status := scraper.JobStatus(v)
		switch status {
		case scraper.JobStatusPending, scraper.JobStatusInProgress,
			scraper.JobStatusCompleted, scraper.JobStatusFailed, scraper.JobStatusCancelled:
			filter.Status = status
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", v))
			return
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 200 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be >= 0")
			return
		}
		filter.Offset = n
	}

	jobs, err := s.store.List(r.Context(), ownerFrom(r), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list jobs failed")
		return
	}
	summaries := make([]jobStatusResponse, len(jobs))
	for i, job := range jobs {
		summaries[i] = statusResponse(job)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  summaries,
		"count": len(summaries),
	})
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.fetchJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(job))
}

func (s *Server) jobResults(w http.ResponseWriter, r *http.Request) {
	job, ok := s.fetchJob(w, r)
	if !ok {
		return
	}
	if job.Status != scraper.JobStatusCompleted {
		writeError(w, http.StatusConflict, fmt.Sprintf("job %s is %s, results are available once it completes", job.ID, job.Status))
		return
	}
	counts := scraper.CountResults(job.Results)
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":             job.ID,
		"status":             job.Status,
		"total_urls":         counts.Total,
		"successful_scrapes": counts.Successful,
		"failed_scrapes":     counts.Failed,
		"results":            job.Results,
	})
}

// deleteJob cancels an active job or removes a terminal one.
func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.fetchJob(w, r)
	if !ok {
		return
	}
	if job.Status.IsTerminal() {
		if err := s.jobs.Delete(r.Context(), job.ID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"job_id": job.ID, "deleted": true})
		return
	}
	if err := s.jobs.Cancel(r.Context(), job.ID); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": job.ID, "cancelled": true})
}

func (s *Server) fetchJob(w http.ResponseWriter, r *http.Request) (scraper.Job, bool) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.store.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, scraper.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
		} else {
			writeError(w, http.StatusInternalServerError, "fetch job failed")
		}
		return scraper.Job{}, false
	}
	if owner := ownerFrom(r); owner != "" && job.Owner != "" && job.Owner != owner {
		writeError(w, http.StatusNotFound, "job not found")
		return scraper.Job{}, false
	}
	return job, true
}

type jobStatusResponse struct {
	JobID       string     `json:"job_id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress_percentage"`
	CurrentStep string     `json:"current_step,omitempty"`
	TotalURLs   int        `json:"total_urls"`
	Error       string     `json:"error,omitempty"`
	Created     time.Time  `json:"created_at"`
	Started     *time.Time `json:"started_at,omitempty"`
	Completed   *time.Time `json:"completed_at,omitempty"`
}

func statusResponse(job scraper.Job) jobStatusResponse {
	return jobStatusResponse{
		JobID:       job.ID,
		Kind:        string(job.Kind),
		Status:      string(job.Status),
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		TotalURLs:   len(job.URLs),
		Error:       job.ErrorText,
		Created:     job.Created,
		Started:     job.Started,
		Completed:   job.Completed,
	}
}

func submissionResponse(job scraper.Job) map[string]any {
	resp := map[string]any{
		"job_id":     job.ID,
		"status":     string(job.Status),
		"total_urls": len(job.URLs),
		"created_at": job.Created,
	}
	if job.Kind == scraper.JobKindBatch {
		resp["estimated_completion"] = estimateCompletion(job)
	}
	return resp
}

// estimateCompletion projects when a batch should finish: one pacing delay
// per URL plus a flat allowance for the scrapes themselves.
func estimateCompletion(job scraper.Job) time.Time {
	seconds := float64(len(job.URLs))*job.Request.DelaySeconds + 60
	return job.Created.Add(time.Duration(seconds * float64(time.Second)))
}

// ownerFrom scopes jobs per client. Clients may pass a stable identifier;
// absent one, jobs are visible to every caller holding the API key.
func ownerFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Client-ID"))
}
