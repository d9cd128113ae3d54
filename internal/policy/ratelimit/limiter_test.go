package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type delays struct {
	mu      sync.Mutex
	domains []string
}

func (d *delays) ObserveRateLimitDelay(domain string, _ time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.domains = append(d.domains, domain)
}

func TestLimiter_WaitSpacesRequestsPerHost(t *testing.T) {
	t.Parallel()

	obs := &delays{}
	l := New(Config{RPS: 10, Burst: 1}, obs)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://nl.indeed.com/jobs?q=a"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://nl.indeed.com/jobs?q=b"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	require.Equal(t, []string{"nl.indeed.com"}, obs.domains)
}

func TestLimiter_HostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1, Burst: 1}, nil)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example.com/"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example.com/"))
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiter_DisabledWhenRPSIsZero(t *testing.T) {
	t.Parallel()

	obs := &delays{}
	l := New(Config{}, obs)
	ctx := context.Background()

	start := time.Now()
	for range 20 {
		require.NoError(t, l.Wait(ctx, "https://nl.indeed.com/"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
	require.Empty(t, obs.domains)
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.1, Burst: 1}, nil)
	require.NoError(t, l.Wait(context.Background(), "https://nl.indeed.com/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://nl.indeed.com/")
	require.Error(t, err)
	require.Contains(t, err.Error(), "nl.indeed.com")
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "nl.indeed.com", hostOf("https://nl.indeed.com/jobs"))
	require.Equal(t, "unknown", hostOf("::bad"))
	require.Equal(t, "unknown", hostOf("/relative"))
}
