package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

func TestPublishRunReport(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	_, err = client.CreateTopic(ctx, "crawl-runs")
	require.NoError(t, err)

	pub := New(client)
	t.Cleanup(func() { _ = pub.Close() })

	report := crawler.RunReport{RunID: "run-1", Status: crawler.StatusSucceeded}
	id, err := pub.Publish(ctx, "crawl-runs", report)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "succeeded", msgs[0].Attributes["status"])
	require.Contains(t, string(msgs[0].Data), `"run_id":"run-1"`)
}

func TestPublishWithoutClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "crawl-runs", "x")
	require.Error(t, err)
}
