package probe

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

type stubFetcher struct {
	body string
	err  error
}

func (s stubFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	if s.err != nil {
		return crawler.FetchResponse{}, s.err
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(s.body)}, nil
}

func countPage(text string) string {
	return fmt.Sprintf(`<html><body><div class="jobsearch-JobCountAndSortPane-jobCount"><span>%s</span></div></body></html>`, text)
}

func TestHighVolume(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "at threshold", body: countPage("1000 jobs"), want: false},
		{name: "above threshold", body: countPage("1.001 vacatures"), want: true},
		{name: "widget absent", body: `<html><body></body></html>`, want: false},
		{name: "no digits", body: countPage("many"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := New(stubFetcher{body: tt.body}, Options{}, zap.NewNop())
			got, err := p.HighVolume(context.Background(), crawler.RegionQuery{Keyword: "go", URL: "https://x/jobs"})
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestHighVolumeCustomThreshold(t *testing.T) {
	t.Parallel()

	p := New(stubFetcher{body: countPage("50")}, Options{Threshold: 10}, nil)
	got, err := p.HighVolume(context.Background(), crawler.RegionQuery{URL: "https://x/jobs"})
	require.NoError(t, err)
	require.True(t, got)
}

func TestHighVolumeFetchFailure(t *testing.T) {
	t.Parallel()

	p := New(stubFetcher{err: errors.New("timeout")}, Options{}, nil)
	_, err := p.HighVolume(context.Background(), crawler.RegionQuery{URL: "https://x/jobs"})
	require.ErrorIs(t, err, crawler.ErrTransport)
}
