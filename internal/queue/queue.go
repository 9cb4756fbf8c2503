// Package queue provides the durable inbound message queue and the
// per-user serializing dispatcher. Webhook handlers enqueue normalized
// messages and return immediately; workers drain the queue and hand each
// message to the engine, with all messages of one user processed strictly in
// order.
package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/psousaj/nexo-ai-sub000/internal/provider"
)

// Job is one queued inbound message.
type Job struct {
	Message *provider.IncomingMessage `json:"message"`
}

// Key groups jobs that must process serially: one lane per user per surface.
func (j Job) Key() string {
	m := j.Message
	if m == nil {
		return ""
	}
	return m.Provider + "|" + m.ExternalID + "|" + m.UserID
}

// Encode serializes the job for a durable backend.
func (j Job) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// DecodeJob parses a serialized job.
func DecodeJob(b []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(b, &j); err != nil {
		return Job{}, err
	}
	if j.Message == nil {
		return Job{}, errors.New("queue: job without message")
	}
	return j, nil
}

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.New("queue: closed")

// Queue is the inbound job buffer. Dequeue blocks until a job is available,
// the context is cancelled, or the queue closes.
type Queue interface {
	Enqueue(ctx context.Context, j Job) error
	Dequeue(ctx context.Context) (Job, error)
	Close() error
}

// Memory is the in-process Queue used when Redis is not configured. Jobs do
// not survive a restart.
type Memory struct {
	ch   chan Job
	done chan struct{}
}

// NewMemory builds an in-process queue with the given buffer size.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 1024
	}
	return &Memory{ch: make(chan Job, size), done: make(chan struct{})}
}

// Enqueue adds a job, blocking when the buffer is full.
func (m *Memory) Enqueue(ctx context.Context, j Job) error {
	select {
	case m.ch <- j:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue removes the oldest job.
func (m *Memory) Dequeue(ctx context.Context) (Job, error) {
	select {
	case j := <-m.ch:
		return j, nil
	case <-m.done:
		return Job{}, ErrClosed
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Close shuts the queue down. Pending jobs are dropped.
func (m *Memory) Close() error {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
	return nil
}
