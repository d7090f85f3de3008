// Package pubsub publishes ingestion events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// Publisher publishes JSON payloads, keeping one topic handle per topic id.
type Publisher struct {
	client *pubsub.Client
	owned  bool
	logger *zap.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// New wraps an existing client. The caller keeps ownership of client.
func New(client *pubsub.Client, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, logger: logger.Named("pubsub"), topics: make(map[string]*pubsub.Topic)}
}

// Open creates a client for projectID from application default credentials
// and verifies that topicID exists.
func Open(ctx context.Context, projectID, topicID string, logger *zap.Logger) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	p := New(client, logger)
	p.owned = true
	exists, err := client.Topic(topicID).Exists(ctx)
	if err != nil || !exists {
		if cerr := client.Close(); cerr != nil {
			p.logger.Warn("close pubsub client", zap.Error(cerr))
		}
		if err != nil {
			return nil, fmt.Errorf("check topic %s: %w", topicID, err)
		}
		return nil, fmt.Errorf("topic %s does not exist in project %s", topicID, projectID)
	}
	return p, nil
}

// Publish marshals payload to JSON, publishes it to topic and waits for the
// server-assigned message id.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.client == nil {
		return "", fmt.Errorf("pubsub client is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"content_type": "application/json"},
	}
	id, err := p.topic(topic).Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	return id, nil
}

func (p *Publisher) topic(id string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[id]
	if !ok {
		t = p.client.Topic(id)
		p.topics[id] = t
	}
	return t
}

// Close flushes pending publishes and closes the client when Open created it.
func (p *Publisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.topics = make(map[string]*pubsub.Topic)
	p.mu.Unlock()
	if !p.owned {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
