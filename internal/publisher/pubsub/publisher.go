// Package pubsub implements a Google Cloud Pub/Sub publisher.
package pubsub

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/jobposting-crawler/internal/publisher"
)

// Publisher publishes run notifications through a Pub/Sub client.
type Publisher struct {
	client *pubsub.Client

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// New creates a Publisher for the provided client.
func New(client *pubsub.Client) *Publisher {
	return &Publisher{client: client, topics: map[string]*pubsub.Topic{}}
}

// Publish marshals the payload to JSON and publishes it to topic, waiting for
// the server acknowledgement.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.client == nil {
		return "", fmt.Errorf("pubsub client is not configured")
	}
	data, attrs, err := publisher.Encode(payload)
	if err != nil {
		return "", err
	}
	result := p.topic(topic).Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message to %s: %w", topic, err)
	}
	return id, nil
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.topics = map[string]*pubsub.Topic{}
	p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

func (p *Publisher) topic(name string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.client.Topic(name)
		p.topics[name] = t
	}
	return t
}
