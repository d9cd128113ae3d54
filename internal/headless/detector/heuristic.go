// Package detector decides when a statically fetched result page needs to be
// re-fetched through the headless browser.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

// DefaultBodyLengthThreshold bounds the size of a page considered a script shell.
const DefaultBodyLengthThreshold = 4096

// Heuristic promotes pages that arrive without a rendered results column but
// look like a client-side shell or a JavaScript check.
type Heuristic struct {
	BodyLengthThreshold int
	ResultsMarker       []byte
}

// NewHeuristic creates a detector. A zero threshold selects the default.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultBodyLengthThreshold
	}
	return &Heuristic{
		BodyLengthThreshold: threshold,
		ResultsMarker:       []byte(`id="resultsCol"`),
	}
}

var shellMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
}

var challengeMarkers = []string{
	"enable javascript",
	"javascript is disabled",
	"challenge-platform",
}

// ShouldPromote decides whether a headless fetch is required.
func (h *Heuristic) ShouldPromote(resp crawler.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	body := resp.Body
	if len(body) == 0 {
		return true
	}
	if len(h.ResultsMarker) > 0 && bytes.Contains(body, h.ResultsMarker) {
		return false
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range shellMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	lower := strings.ToLower(string(body))
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh reports whether script elements cover a quarter or more of
// the document.
func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			covered += total - start
			break
		}
		contentStart := start + tagClose + 1

		next := total
		if relEnd := strings.Index(lower[contentStart:], closeTag); relEnd != -1 {
			next = contentStart + relEnd + len(closeTag)
		}
		covered += next - start
		pos = next
	}
	return covered*100/total >= 25
}
