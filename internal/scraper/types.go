package scraper

import (
	"encoding/json"
	"time"
)

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// JobKind distinguishes single-URL jobs from batch jobs.
type JobKind string

// Job kinds accepted at the API boundary.
const (
	JobKindSingle JobKind = "single"
	JobKindBatch  JobKind = "batch"
)

// Request captures per-URL scrape configuration requested by the client.
type Request struct {
	URL             string  `json:"url"`
	ExtractImages   bool    `json:"extract_images"`
	ExtractLinks    bool    `json:"extract_links"`
	FollowRedirects bool    `json:"follow_redirects"`
	DelaySeconds    float64 `json:"delay_seconds"`
	UserAgent       string  `json:"user_agent,omitempty"`
}

// Metadata holds document metadata recovered during extraction.
type Metadata struct {
	Author      string `json:"author,omitempty"`
	Date        string `json:"date,omitempty"`
	Description string `json:"description,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
}

// ExtractionAttempt records the outcome of one extraction strategy.
// Attempts are immutable once recorded and kept in trial order.
type ExtractionAttempt struct {
	Method        string `json:"method"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	ContentLength int    `json:"content_length"`
}

// Link is a hyperlink collected from a rendered page.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
}

// Result is the per-URL output of the scrape pipeline. It is created once
// per URL processed and never mutated afterwards.
type Result struct {
	URL              string              `json:"url"`
	FinalURL         string              `json:"final_url,omitempty"`
	StatusCode       int                 `json:"status_code,omitempty"`
	Title            string              `json:"title,omitempty"`
	Content          *string             `json:"content"`
	Metadata         Metadata            `json:"metadata"`
	Images           []string            `json:"images,omitempty"`
	Links            []Link              `json:"links,omitempty"`
	ExtractionMethod string              `json:"extraction_method,omitempty"`
	Attempts         []ExtractionAttempt `json:"extraction_attempts,omitempty"`
	Duration         time.Duration       `json:"duration_ms"`
	Success          bool                `json:"success"`
	Error            string              `json:"error,omitempty"`
}

// MarshalJSON renders the duration in milliseconds rather than the raw
// nanosecond count time.Duration would produce.
func (r Result) MarshalJSON() ([]byte, error) {
	type alias Result
	return json.Marshal(struct {
		alias
		Duration float64 `json:"duration_ms"`
	}{
		alias:    alias(r),
		Duration: float64(r.Duration) / float64(time.Millisecond),
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Result) UnmarshalJSON(data []byte) error {
	type alias Result
	aux := struct {
		*alias
		Duration float64 `json:"duration_ms"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Duration = time.Duration(aux.Duration * float64(time.Millisecond))
	return nil
}

// Job represents the metadata persisted for each submitted scrape request.
// Only the orchestrator's single background worker for the job mutates it
// after creation.
type Job struct {
	ID          string     `json:"id"`
	Kind        JobKind    `json:"kind"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress_percentage"`
	CurrentStep string     `json:"current_step,omitempty"`
	URLs        []string   `json:"urls"`
	Request     Request    `json:"request"`
	Results     []Result   `json:"results,omitempty"`
	ErrorText   string     `json:"error_text,omitempty"`
	Owner       string     `json:"owner"`
	Created     time.Time  `json:"created_at"`
	Started     *time.Time `json:"started_at,omitempty"`
	Completed   *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy so that callers can read a snapshot without
// racing the owning worker.
func (j Job) Clone() Job {
	cp := j
	cp.URLs = append([]string(nil), j.URLs...)
	if j.Results != nil {
		cp.Results = make([]Result, len(j.Results))
		copy(cp.Results, j.Results)
	}
	if j.Started != nil {
		started := *j.Started
		cp.Started = &started
	}
	if j.Completed != nil {
		completed := *j.Completed
		cp.Completed = &completed
	}
	return cp
}

// Counts summarizes a result list for the results endpoint.
type Counts struct {
	Total      int `json:"total_urls"`
	Successful int `json:"successful_scrapes"`
	Failed     int `json:"failed_scrapes"`
}

// CountResults derives success/failure counts from a result list.
func CountResults(results []Result) Counts {
	counts := Counts{Total: len(results)}
	for _, r := range results {
		if r.Success {
			counts.Successful++
		} else {
			counts.Failed++
		}
	}
	return counts
}
