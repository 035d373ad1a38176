// Package memory keeps run notifications in process, for tests and for runs
// without a Pub/Sub project.
package memory

import (
	"context"
	"strconv"
	"sync"
)

// Message is one recorded notification. Attributes are copied from payloads
// that expose them, as the Pub/Sub publisher does.
type Message struct {
	ID         string
	Topic      string
	Payload    any
	Attributes map[string]string
}

// Publisher records notifications in publish order.
type Publisher struct {
	mu      sync.Mutex
	log     []Message
	failure error
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes every later Publish return err. A nil err restores normal
// behavior.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	p.failure = err
	p.mu.Unlock()
}

// Publish implements collector.Publisher.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failure != nil {
		return "", p.failure
	}
	msg := Message{
		ID:      "memory-" + strconv.Itoa(len(p.log)+1),
		Topic:   topic,
		Payload: payload,
	}
	if a, ok := payload.(interface{ Attributes() map[string]string }); ok {
		msg.Attributes = a.Attributes()
	}
	p.log = append(p.log, msg)
	return msg.ID, nil
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.log...)
}
