package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"clarity-mcp/internal/genai/aurasr"
)

type queryStep struct {
	status *aurasr.TaskStatus
	err    error
}

// scriptedClient 按顺序返回预设结果，超出脚本后重复最后一项
type scriptedClient struct {
	mu    sync.Mutex
	steps []queryStep
	calls int
	ids   []string
}

func (c *scriptedClient) QueryEnhanceTask(ctx context.Context, sessionID string) (*aurasr.TaskStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ids = append(c.ids, sessionID)
	if len(c.steps) == 0 {
		return nil, errors.New("no scripted response")
	}
	idx := c.calls
	if idx >= len(c.steps) {
		idx = len(c.steps) - 1
	}
	c.calls++
	step := c.steps[idx]
	return step.status, step.err
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func processing() queryStep {
	return queryStep{status: &aurasr.TaskStatus{
		State: aurasr.StatusProcessing,
		Raw:   map[string]interface{}{"state": "processing"},
	}}
}

func completed(url string) queryStep {
	raw := map[string]interface{}{"state": "completed"}
	if url != "" {
		raw["data"] = map[string]interface{}{"image": map[string]interface{}{"url": url}}
	}
	return queryStep{status: &aurasr.TaskStatus{
		State:    aurasr.StatusCompleted,
		ImageURL: url,
		Raw:      raw,
	}}
}

func failed() queryStep {
	return queryStep{status: &aurasr.TaskStatus{
		State: aurasr.StatusFailed,
		Raw:   map[string]interface{}{"state": "failed", "error": "upscale failed"},
	}}
}

func transportErr(msg string) queryStep {
	return queryStep{err: errors.New(msg)}
}

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

type recordingProgress struct {
	mu     sync.Mutex
	values []int
}

func (p *recordingProgress) Report(ctx context.Context, percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, percent)
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
	}
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	s.ttls[key] = ttl
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	delete(s.ttls, key)
	return nil
}

type stubMirror struct {
	url   string
	err   error
	calls int
}

func (m *stubMirror) Mirror(ctx context.Context, imageURL string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.url, nil
}
