// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"strconv"
	"time"
)

// KeywordState tells whether a keyword already has postings in the store.
type KeywordState string

// Keyword states drive the recency window of the first query.
const (
	KeywordNew     KeywordState = "new"
	KeywordTracked KeywordState = "tracked"
)

// SearchKeyword is one tracked search phrase resolved for the current run.
type SearchKeyword struct {
	Text       string       `json:"text"`
	SearchID   int64        `json:"search_id"`
	State      KeywordState `json:"state"`
	WindowDays int          `json:"window_days"`
}

// KeywordRow is a raw keyword dimension row together with its posting check.
type KeywordRow struct {
	SearchID    int64
	Text        string
	HasPostings bool
}

// RegionQuery is one provider query for a keyword, optionally restricted to a region.
type RegionQuery struct {
	Keyword    string `json:"keyword"`
	SearchID   int64  `json:"search_id"`
	Region     string `json:"region"`
	WindowDays int    `json:"window_days"`
	URL        string `json:"url"`
}

// Unrestricted reports whether the query uses the provider's default geography.
func (q RegionQuery) Unrestricted() bool {
	return q.Region == ""
}

// JobPosting is a single extracted posting. Extracted fields are nil when the
// listing omitted them.
type JobPosting struct {
	SearchQuery     string  `json:"search_query"`
	SearchID        int64   `json:"search_id"`
	SearchLocation  string  `json:"search_location"`
	JobCode         *string `json:"job_code,omitempty"`
	JobTitle        *string `json:"job_title,omitempty"`
	JobSummary      *string `json:"job_summary,omitempty"`
	JobURL          *string `json:"job_url,omitempty"`
	CompanyName     *string `json:"company_name,omitempty"`
	CompanyLocation *string `json:"company_location,omitempty"`
	CompanyURL      *string `json:"company_url,omitempty"`
	JobDate         *string `json:"date_job,omitempty"`
	ScrapeDate      string  `json:"date_scrape"`
}

// Incomplete reports whether the identifying fields of the posting are missing.
func (p JobPosting) Incomplete() bool {
	return p.JobCode == nil || p.JobTitle == nil || p.JobURL == nil
}

// CursorKind tags the continuation variant.
type CursorKind int

// Cursor kinds.
const (
	CursorOffset CursorKind = iota
	CursorURL
)

// Cursor points at the next result page, either as an absolute URL or as a
// start offset applied to the query URL.
type Cursor struct {
	Kind   CursorKind
	URL    string
	Offset int
}

// Key identifies the cursor for loop detection.
func (c Cursor) Key() string {
	if c.Kind == CursorURL {
		return "url:" + c.URL
	}
	return "offset:" + strconv.Itoa(c.Offset)
}

// DenialReason names the marker that made a page count as denied.
type DenialReason string

// Denial markers recognised on result pages.
const (
	DenialNone             DenialReason = ""
	DenialIncreasedRadius  DenialReason = "increased_radius_result"
	DenialBadQuery         DenialReason = "bad_query"
	DenialSuggestedQueries DenialReason = "suggested_queries"
	DenialNoResults        DenialReason = "no_results"
	DenialSearchSuggest    DenialReason = "search_suggestions"
	DenialMissingResults   DenialReason = "missing_results_column"
)

// PageResult is the parse outcome of one result page.
type PageResult struct {
	Postings []JobPosting
	Next     *Cursor
	Denial   DenialReason
}

// Denied reports whether the page carried a denial marker.
func (r PageResult) Denied() bool {
	return r.Denial != DenialNone
}

// RunLogEntry is appended once per completed run.
type RunLogEntry struct {
	RunID   string    `json:"run_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	RunDate time.Time `json:"run_date"`
	Status  RunStatus `json:"status"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
	FromCache    bool
}

// KeywordReport summarises one keyword within a run.
type KeywordReport struct {
	Keyword    string `json:"keyword"`
	SearchID   int64  `json:"search_id"`
	WindowDays int    `json:"window_days"`
	HighVolume bool   `json:"high_volume"`
	Regions    int    `json:"regions"`
	Denied     int    `json:"denied"`
	Pages      int    `json:"pages"`
	Postings   int    `json:"postings"`
	Stored     int    `json:"stored"`
	Incomplete int    `json:"incomplete"`
}

// RunReport is returned by the coordinator after a run.
type RunReport struct {
	RunID    string          `json:"run_id"`
	Status   RunStatus       `json:"status"`
	Start    time.Time       `json:"start"`
	End      time.Time       `json:"end"`
	Keywords []KeywordReport `json:"keywords"`
	Error    string          `json:"error,omitempty"`
}

// Totals sums postings and denials across keywords.
func (r RunReport) Totals() (postings, denied int) {
	for _, kw := range r.Keywords {
		postings += kw.Postings
		denied += kw.Denied
	}
	return postings, denied
}
