// Package publisher encodes run notifications for the publisher backends.
package publisher

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

// Encode marshals payload to JSON and derives message attributes. Run reports
// carry their run id, status and posting total as attributes so subscribers
// can filter without decoding the body.
func Encode(payload any) ([]byte, map[string]string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}
	attrs := map[string]string{}
	var report *crawler.RunReport
	switch p := payload.(type) {
	case crawler.RunReport:
		report = &p
	case *crawler.RunReport:
		report = p
	}
	if report != nil {
		postings, denied := report.Totals()
		attrs["run_id"] = report.RunID
		attrs["status"] = string(report.Status)
		attrs["postings"] = strconv.Itoa(postings)
		attrs["denied_regions"] = strconv.Itoa(denied)
	}
	return data, attrs, nil
}
