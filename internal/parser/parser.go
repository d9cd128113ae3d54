// Package parser extracts job postings from search result pages.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

const (
	resultListSelector = "ul.jobsearch-ResultsList"
	countSelector      = "div.jobsearch-JobCountAndSortPane-jobCount span"
	nextPageEnglish    = `a[aria-label="Next Page"]`
	nextPageDutch      = `a[aria-label="Volgende"]`
	scrapeDateLayout   = "2006-01-02"
)

var nonDigits = regexp.MustCompile(`[^0-9]`)

// denialMarkers are checked in order; the first hit names the denial.
var denialMarkers = []struct {
	selector string
	reason   crawler.DenialReason
}{
	{"div#increased_radius_result", crawler.DenialIncreasedRadius},
	{"div.bad_query", crawler.DenialBadQuery},
	{"div#suggested_queries", crawler.DenialSuggestedQueries},
	{"div.no_results", crawler.DenialNoResults},
	{"div#search_suggestions", crawler.DenialSearchSuggest},
}

// Options configures the parser.
type Options struct {
	BaseURL           string
	LegacyApostrophes bool
}

// Parser turns result page markup into postings.
type Parser struct {
	opts Options
}

// New constructs a Parser.
func New(opts Options) *Parser {
	return &Parser{opts: opts}
}

// Parse extracts the postings and the continuation link from one result page.
// A denied page yields no postings and no continuation.
func (p *Parser) Parse(body []byte, query crawler.RegionQuery, scraped time.Time) (crawler.PageResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.PageResult{}, fmt.Errorf("parse document: %w", err)
	}

	if reason := denial(doc); reason != crawler.DenialNone {
		return crawler.PageResult{Denial: reason}, nil
	}

	result := crawler.PageResult{Postings: p.postings(doc, query, scraped)}
	next, err := p.nextLink(doc)
	if err != nil {
		return crawler.PageResult{}, err
	}
	result.Next = next
	return result, nil
}

// ResultCount reads the total-result widget. ok is false when the widget is
// absent or carries no digits.
func ResultCount(body []byte) (count int, ok bool, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, false, fmt.Errorf("parse document: %w", err)
	}
	widget := doc.Find(countSelector).First()
	if widget.Length() == 0 {
		return 0, false, nil
	}
	digits := nonDigits.ReplaceAllString(widget.Text(), "")
	if digits == "" {
		return 0, false, nil
	}
	count, err = strconv.Atoi(digits)
	if err != nil {
		return 0, false, nil
	}
	return count, true, nil
}

func denial(doc *goquery.Document) crawler.DenialReason {
	for _, marker := range denialMarkers {
		if doc.Find(marker.selector).Length() > 0 {
			return marker.reason
		}
	}
	if doc.Find("td#resultsCol").Length() == 0 {
		return crawler.DenialMissingResults
	}
	return crawler.DenialNone
}

func (p *Parser) nextLink(doc *goquery.Document) (*crawler.Cursor, error) {
	navs := doc.Find("nav")
	if navs.Length() == 0 {
		return nil, nil
	}
	nav := navs.Last()
	anchor := nav.Find(nextPageEnglish).First()
	if anchor.Length() == 0 {
		anchor = nav.Find(nextPageDutch).First()
	}
	if anchor.Length() == 0 {
		return nil, nil
	}
	href, ok := anchor.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return nil, nil
	}
	abs, err := crawler.Absolute(p.opts.BaseURL, href)
	if err != nil {
		return nil, fmt.Errorf("resolve next link: %w", err)
	}
	return &crawler.Cursor{Kind: crawler.CursorURL, URL: abs}, nil
}

func (p *Parser) postings(doc *goquery.Document, query crawler.RegionQuery, scraped time.Time) []crawler.JobPosting {
	lists := doc.Find(resultListSelector)
	if lists.Length() == 0 {
		return nil
	}
	var out []crawler.JobPosting
	lists.Last().Children().Each(func(_ int, entry *goquery.Selection) {
		if entry.Find("div.mosaic-zone").Length() > 0 {
			return
		}
		out = append(out, p.posting(entry, query, scraped))
	})
	return out
}

func (p *Parser) posting(entry *goquery.Selection, query crawler.RegionQuery, scraped time.Time) crawler.JobPosting {
	posting := crawler.JobPosting{
		SearchQuery:    query.Keyword,
		SearchID:       query.SearchID,
		SearchLocation: query.Region,
		ScrapeDate:     scraped.UTC().Format(scrapeDateLayout),
	}

	link := entry.Find("a.jcs-JobTitle").First()
	if title := entry.Find("h2.jobTitle a.jcs-JobTitle").First(); title.Length() > 0 {
		posting.JobTitle = p.clean(title.Text(), "  ")
	}
	if code, ok := link.Attr("data-jk"); ok {
		posting.JobCode = &code
	}
	if href, ok := link.Attr("href"); ok {
		posting.JobURL = p.link(href)
	}

	if company := entry.Find("span.companyName").First(); company.Length() > 0 {
		posting.CompanyName = p.clean(company.Text(), " ")
		if href, ok := company.Find("a.companyOverviewLink").First().Attr("href"); ok {
			posting.CompanyURL = p.link(href)
		}
	}
	if loc := entry.Find("div.companyLocation").First(); loc.Length() > 0 {
		posting.CompanyLocation = p.clean(loc.Text(), " ")
	}
	if summary := entry.Find("div.job-snippet").First(); summary.Length() > 0 {
		posting.JobSummary = p.clean(summary.Text(), " ")
	}
	if date := entry.Find("span.date").First(); date.Length() > 0 {
		text := strings.TrimSpace(date.Text())
		posting.JobDate = &text
	}
	return posting
}

func (p *Parser) clean(text, apostrophe string) *string {
	text = strings.TrimSpace(text)
	if p.opts.LegacyApostrophes {
		text = strings.ReplaceAll(text, "'", apostrophe)
	}
	return &text
}

func (p *Parser) link(href string) *string {
	if p.opts.LegacyApostrophes {
		href = strings.ReplaceAll(href, "'", "  ")
	}
	abs, err := crawler.Absolute(p.opts.BaseURL, href)
	if err != nil {
		return nil
	}
	return &abs
}
