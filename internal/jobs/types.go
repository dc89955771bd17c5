// Package jobs defines the core types shared across the harvest pipeline.
package jobs

import (
	"fmt"
	"net/url"
	"strings"
)

// Identity is the composite key for a job posting: the site-assigned
// job ID plus the normalized title. It is unique for the lifetime of a
// run and drives both the claim registry and the sink duplicate check.
type Identity struct {
	JobID string
	Title string
}

// Key returns the string form used by registries and duplicate indexes.
func (id Identity) Key() string {
	return id.JobID + "|" + id.Title
}

// IsZero reports whether the identity carries no information.
func (id Identity) IsZero() bool {
	return id.JobID == "" && id.Title == ""
}

// NewIdentity builds an Identity with the title normalized.
func NewIdentity(jobID, title string) Identity {
	return Identity{JobID: jobID, Title: NormalizeTitle(title)}
}

// NormalizeTitle lowercases and collapses whitespace so the same
// posting discovered through different searches maps to one identity.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// JobIDFromURL extracts the site-native job ID from a detail URL, e.g.
// https://www.jobs.ch/en/vacancies/detail/abc123/ -> abc123.
func JobIDFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse job url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 || parts[len(parts)-1] == "" {
		return "", fmt.Errorf("no job id in url path %q", u.Path)
	}
	return parts[len(parts)-1], nil
}

// QueueItem is one unit of extraction work. The discoverer owns it
// until dequeued; exactly one worker owns it per attempt.
type QueueItem struct {
	URL       string
	Identity  Identity
	PageIndex int
	Attempt   int
}

// Period is a pay period tag on a salary figure.
type Period string

// Recognized pay periods.
const (
	PeriodHourly  Period = "hourly"
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
)

// Salary holds a normalized salary range. Monthly figures are converted
// to yearly exactly once at record creation; the conversion is never
// re-derived downstream.
type Salary struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
	Period   Period  `json:"period"`
}

// Record is the structured result of one successful extraction. After
// the worker hands it to the sink and archiver it is read-only.
// Optional fields are pointers: nil means absent, which every output
// format must keep distinguishable from zero or empty.
type Record struct {
	Identity        Identity `json:"identity"`
	Title           string   `json:"title"`
	Location        *string  `json:"location"`
	WorkloadPercent *int     `json:"workload_percent"`
	Salary          *Salary  `json:"salary"`
	ContractType    *string  `json:"contract_type"`
	PostedDate      *string  `json:"posted_date"`
	SourceURL       string   `json:"source_url"`
	HTMLRef         string   `json:"html_ref"`
}

// ArchiveEntry describes one persisted raw page.
type ArchiveEntry struct {
	Identity Identity
	Path     string
	Size     int64
}

// StringPtr returns a pointer to s, or nil when s is empty. Used by
// extractors to produce explicit absence markers.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
