// Package pubsub publishes run-complete notifications to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// Config names the project and default topic.
type Config struct {
	ProjectID string
	TopicName string
}

// Attributed payloads add message attributes (run_id, phase) for subscribers
// that filter without decoding the body.
type Attributed interface {
	Attributes() map[string]string
}

type sendFunc func(ctx context.Context, topic string, msg *pubsub.Message) (string, error)

// Publisher marshals payloads to JSON and publishes them.
type Publisher struct {
	client       *pubsub.Client
	defaultTopic string
	send         sendFunc
	logger       *zap.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// New opens a Pub/Sub client for cfg.ProjectID.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Publisher, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub.project_id is required")
	}
	if strings.TrimSpace(cfg.TopicName) == "" {
		return nil, errors.New("pubsub.topic_name is required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	p := newPublisher(cfg.TopicName, nil, logger)
	p.client = client
	p.send = p.sendViaClient
	return p, nil
}

func newPublisher(defaultTopic string, send sendFunc, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		defaultTopic: defaultTopic,
		send:         send,
		logger:       logger,
		topics:       make(map[string]*pubsub.Topic),
	}
}

// Publish sends payload to topic, or to the default topic when topic is empty.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p == nil || p.send == nil {
		return "", errors.New("pubsub publisher is not configured")
	}
	if topic == "" {
		topic = p.defaultTopic
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := &pubsub.Message{Data: data}
	if attributed, ok := payload.(Attributed); ok {
		msg.Attributes = attributed.Attributes()
	}
	id, err := p.send(ctx, topic, msg)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.logger.Info("published message", zap.String("topic", topic), zap.String("message_id", id))
	return id, nil
}

func (p *Publisher) sendViaClient(ctx context.Context, topic string, msg *pubsub.Message) (string, error) {
	p.mu.Lock()
	t, ok := p.topics[topic]
	if !ok {
		t = p.client.Topic(topic)
		p.topics[topic] = t
	}
	p.mu.Unlock()
	return t.Publish(ctx, msg).Get(ctx)
}

// Close flushes pending messages and releases the client.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.topics = make(map[string]*pubsub.Topic)
	p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
