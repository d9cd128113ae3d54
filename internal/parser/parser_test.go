package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

const resultsPage = `<html><body>
<div class="jobsearch-JobCountAndSortPane-jobCount"><span>1.234 vacatures</span></div>
<table><tr><td id="resultsCol">
<ul class="jobsearch-ResultsList">
  <li>
    <h2 class="jobTitle"><a class="jcs-JobTitle" data-jk="abc123" href="/rc/clk?jk=abc123">Data Analyst</a></h2>
    <span class="companyName"><a class="companyOverviewLink" href="/cmp/Acme">Acme BV</a></span>
    <div class="companyLocation"> Rotterdam </div>
    <div class="job-snippet"> Analyse data for the company's board. </div>
    <span class="date">Vandaag</span>
  </li>
  <li><div class="mosaic-zone"><a class="jcs-JobTitle" data-jk="sponsored">Sponsored</a></div></li>
  <li>
    <h2 class="jobTitle"><a class="jcs-JobTitle" data-jk="def456" href="/rc/clk?jk=def456">BI Developer</a></h2>
    <span class="companyName">Initech</span>
  </li>
</ul>
</td></tr></table>
<nav><a aria-label="Next Page" href="/jobs?q=data&start=10">Next</a></nav>
</body></html>`

const lastPage = `<html><body><table><tr><td id="resultsCol">
<ul class="jobsearch-ResultsList">
  <li><h2 class="jobTitle"><a class="jcs-JobTitle" data-jk="zzz" href="/rc/clk?jk=zzz">Analist</a></h2></li>
</ul></td></tr></table>
<nav><a aria-label="Vorige" href="/jobs?q=data">Vorige</a></nav>
</body></html>`

func testQuery() crawler.RegionQuery {
	return crawler.RegionQuery{Keyword: "data analyst", SearchID: 7, Region: "Zeeland", WindowDays: 1}
}

func TestParseExtractsPostings(t *testing.T) {
	t.Parallel()

	p := New(Options{BaseURL: "https://nl.indeed.com"})
	scraped := time.Date(2024, 3, 5, 23, 30, 0, 0, time.UTC)
	res, err := p.Parse([]byte(resultsPage), testQuery(), scraped)
	require.NoError(t, err)
	require.False(t, res.Denied())
	require.Len(t, res.Postings, 2)

	first := res.Postings[0]
	require.Equal(t, "data analyst", first.SearchQuery)
	require.Equal(t, int64(7), first.SearchID)
	require.Equal(t, "Zeeland", first.SearchLocation)
	require.Equal(t, "2024-03-05", first.ScrapeDate)
	require.Equal(t, "abc123", *first.JobCode)
	require.Equal(t, "Data Analyst", *first.JobTitle)
	require.Equal(t, "https://nl.indeed.com/rc/clk?jk=abc123", *first.JobURL)
	require.Equal(t, "Acme BV", *first.CompanyName)
	require.Equal(t, "https://nl.indeed.com/cmp/Acme", *first.CompanyURL)
	require.Equal(t, "Rotterdam", *first.CompanyLocation)
	require.Equal(t, "Analyse data for the company's board.", *first.JobSummary)
	require.Equal(t, "Vandaag", *first.JobDate)

	second := res.Postings[1]
	require.Equal(t, "def456", *second.JobCode)
	require.Equal(t, "Initech", *second.CompanyName)
	require.Nil(t, second.CompanyURL)
	require.Nil(t, second.CompanyLocation)
	require.Nil(t, second.JobSummary)
	require.Nil(t, second.JobDate)
	require.Equal(t, "Zeeland", second.SearchLocation)

	require.NotNil(t, res.Next)
	require.Equal(t, crawler.CursorURL, res.Next.Kind)
	require.Equal(t, "https://nl.indeed.com/jobs?q=data&start=10", res.Next.URL)
}

func TestParseLastPageHasNoNext(t *testing.T) {
	t.Parallel()

	p := New(Options{BaseURL: "https://nl.indeed.com"})
	res, err := p.Parse([]byte(lastPage), testQuery(), time.Now())
	require.NoError(t, err)
	require.Len(t, res.Postings, 1)
	require.Nil(t, res.Next)
}

func TestParseDutchNextLabel(t *testing.T) {
	t.Parallel()

	page := `<html><body><table><tr><td id="resultsCol"><ul class="jobsearch-ResultsList"></ul></td></tr></table>
<nav>first</nav><nav><a aria-label="Volgende" href="/jobs?start=20">Volgende</a></nav></body></html>`
	p := New(Options{BaseURL: "https://nl.indeed.com"})
	res, err := p.Parse([]byte(page), testQuery(), time.Now())
	require.NoError(t, err)
	require.Empty(t, res.Postings)
	require.NotNil(t, res.Next)
	require.Equal(t, "https://nl.indeed.com/jobs?start=20", res.Next.URL)
}

func TestParseEnglishNextLabelWins(t *testing.T) {
	t.Parallel()

	page := `<html><body><table><tr><td id="resultsCol"><ul class="jobsearch-ResultsList"></ul></td></tr></table>
<nav><a aria-label="Volgende" href="/jobs?nl=1">Volgende</a><a aria-label="Next Page" href="/jobs?en=1">Next</a></nav>
</body></html>`
	res, err := New(Options{BaseURL: "https://nl.indeed.com"}).Parse([]byte(page), testQuery(), time.Now())
	require.NoError(t, err)
	require.NotNil(t, res.Next)
	require.Equal(t, "https://nl.indeed.com/jobs?en=1", res.Next.URL)
}

func TestParseDenialMarkers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		marker string
		want   crawler.DenialReason
	}{
		{"increased radius", `<div id="increased_radius_result"></div>`, crawler.DenialIncreasedRadius},
		{"bad query", `<div class="bad_query"></div>`, crawler.DenialBadQuery},
		{"suggested queries", `<div id="suggested_queries"></div>`, crawler.DenialSuggestedQueries},
		{"no results", `<div class="no_results"></div>`, crawler.DenialNoResults},
		{"search suggestions", `<div id="search_suggestions"></div>`, crawler.DenialSearchSuggest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			page := `<html><body>` + tt.marker + `<table><tr><td id="resultsCol"><ul class="jobsearch-ResultsList">
<li><h2 class="jobTitle"><a class="jcs-JobTitle" data-jk="x" href="/x">X</a></h2></li></ul></td></tr></table>
<nav><a aria-label="Next Page" href="/next">n</a></nav></body></html>`
			res, err := New(Options{BaseURL: "https://nl.indeed.com"}).Parse([]byte(page), testQuery(), time.Now())
			require.NoError(t, err)
			require.Equal(t, tt.want, res.Denial)
			require.Empty(t, res.Postings)
			require.Nil(t, res.Next)
		})
	}
}

func TestParseMissingResultsColumnIsDenied(t *testing.T) {
	t.Parallel()

	res, err := New(Options{}).Parse([]byte(`<html><body><p>captcha</p></body></html>`), testQuery(), time.Now())
	require.NoError(t, err)
	require.True(t, res.Denied())
	require.Equal(t, crawler.DenialMissingResults, res.Denial)
}

func TestParseLegacyApostrophes(t *testing.T) {
	t.Parallel()

	page := `<html><body><table><tr><td id="resultsCol"><ul class="jobsearch-ResultsList"><li>
<h2 class="jobTitle"><a class="jcs-JobTitle" data-jk="q" href="/rc/clk?jk=q">Chef d'equipe</a></h2>
<span class="companyName">O'Neill</span></li></ul></td></tr></table></body></html>`

	legacy, err := New(Options{BaseURL: "https://nl.indeed.com", LegacyApostrophes: true}).
		Parse([]byte(page), testQuery(), time.Now())
	require.NoError(t, err)
	require.Equal(t, "Chef d  equipe", *legacy.Postings[0].JobTitle)
	require.Equal(t, "O Neill", *legacy.Postings[0].CompanyName)

	plain, err := New(Options{BaseURL: "https://nl.indeed.com"}).Parse([]byte(page), testQuery(), time.Now())
	require.NoError(t, err)
	require.Equal(t, "Chef d'equipe", *plain.Postings[0].JobTitle)
	require.Equal(t, "O'Neill", *plain.Postings[0].CompanyName)
}

func TestResultCount(t *testing.T) {
	t.Parallel()

	count, ok, err := ResultCount([]byte(resultsPage))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1234, count)

	_, ok, err = ResultCount([]byte(lastPage))
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = ResultCount([]byte(`<div class="jobsearch-JobCountAndSortPane-jobCount"><span>veel</span></div>`))
	require.NoError(t, err)
	require.False(t, ok)
}
