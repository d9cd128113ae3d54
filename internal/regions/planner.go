// Package regions expands keyword queries across sub-regions.
package regions

import (
	"fmt"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

// Provinces lists the twelve Dutch provinces in fan-out order, spelled the
// way the provider's location filter expects them.
var Provinces = []string{
	"Zuid-Holland",
	"Noord-Holland",
	"Groningen (provincie)",
	"Friesland",
	"Drenthe",
	"Zeeland",
	"Overijssel",
	"Flevoland",
	"Gelderland",
	"Utrecht (provincie)",
	"Noord-Brabant",
	"Limburg",
}

// Planner builds the region queries for a keyword.
type Planner struct {
	baseURL string
	regions []string
}

// NewPlanner returns a Planner over the given regions; nil means Provinces.
func NewPlanner(baseURL string, regions []string) *Planner {
	if len(regions) == 0 {
		regions = Provinces
	}
	return &Planner{baseURL: baseURL, regions: append([]string(nil), regions...)}
}

// Base returns the unrestricted query for kw.
func (p *Planner) Base(kw crawler.SearchKeyword) (crawler.RegionQuery, error) {
	return p.query(kw, "")
}

// Plan returns one unrestricted query when highVolume is false, or one query
// per region otherwise.
func (p *Planner) Plan(kw crawler.SearchKeyword, highVolume bool) ([]crawler.RegionQuery, error) {
	if !highVolume {
		q, err := p.Base(kw)
		if err != nil {
			return nil, err
		}
		return []crawler.RegionQuery{q}, nil
	}
	out := make([]crawler.RegionQuery, 0, len(p.regions))
	for _, region := range p.regions {
		q, err := p.query(kw, region)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (p *Planner) query(kw crawler.SearchKeyword, region string) (crawler.RegionQuery, error) {
	u, err := crawler.SearchURL(p.baseURL, crawler.SearchParams{
		Keyword:    kw.Text,
		WindowDays: kw.WindowDays,
		Region:     region,
	})
	if err != nil {
		return crawler.RegionQuery{}, fmt.Errorf("build query for %q: %w", kw.Text, err)
	}
	return crawler.RegionQuery{
		Keyword:    kw.Text,
		SearchID:   kw.SearchID,
		Region:     region,
		WindowDays: kw.WindowDays,
		URL:        u,
	}, nil
}
