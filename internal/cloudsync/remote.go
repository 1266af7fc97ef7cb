package cloudsync

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Document is the remote-side shape of one collection: the serialized data
// plus the wall-clock time of the write that produced it.
type Document struct {
	Data        json.RawMessage `json:"data"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// Remote is the shared document store collaborator. Get reports false when
// the document has never been written. SetBatch must apply all documents or
// none. Subscribe delivers change notifications until the returned cancel
// func is called.
type Remote interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, name string) (Document, bool, error)
	SetBatch(ctx context.Context, docs map[string]Document) error
	Subscribe(ctx context.Context, name string, handler func(Document)) (func(), error)
	Close() error
}

// MemoryRemote is the in-process Remote used by tests and dev mode. Online
// state is switchable to exercise connectivity failures.
type MemoryRemote struct {
	mu          sync.Mutex
	docs        map[string]Document
	subscribers map[string][]func(Document)
	offline     bool
}

func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{
		docs:        make(map[string]Document),
		subscribers: make(map[string][]func(Document)),
	}
}

func (m *MemoryRemote) SetOnline(online bool) {
	m.mu.Lock()
	m.offline = !online
	m.mu.Unlock()
}

func (m *MemoryRemote) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return context.DeadlineExceeded
	}
	return nil
}

func (m *MemoryRemote) Get(ctx context.Context, name string) (Document, bool, error) {
	if err := m.Ping(ctx); err != nil {
		return Document{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[name]
	return doc, ok, nil
}

func (m *MemoryRemote) SetBatch(ctx context.Context, docs map[string]Document) error {
	if err := m.Ping(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	notify := make([]func(), 0)
	for name, doc := range docs {
		m.docs[name] = doc
		for _, handler := range m.subscribers[name] {
			handler, doc := handler, doc
			notify = append(notify, func() { handler(doc) })
		}
	}
	m.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	return nil
}

func (m *MemoryRemote) Subscribe(_ context.Context, name string, handler func(Document)) (func(), error) {
	m.mu.Lock()
	m.subscribers[name] = append(m.subscribers[name], handler)
	idx := len(m.subscribers[name]) - 1
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		if idx < len(m.subscribers[name]) {
			m.subscribers[name][idx] = func(Document) {}
		}
		m.mu.Unlock()
	}, nil
}

func (m *MemoryRemote) Close() error {
	return nil
}
