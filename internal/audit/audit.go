// Package audit keeps the append-only trail of significant actions. Entries
// are never mutated or deleted once written; the only wholesale replacement
// happens on a sync pull.
package audit

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"pharmastore/backend/internal/domain"
	"pharmastore/backend/internal/storage"
	"pharmastore/backend/internal/xid"
)

type Trail struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	storage storage.Store
}

func New(ctx context.Context, st storage.Store) (*Trail, error) {
	t := &Trail{storage: st}
	if _, err := st.Load(ctx, storage.KeyAuditLog, &t.entries); err != nil {
		return nil, fmt.Errorf("load audit log: %w", err)
	}
	return t, nil
}

func (t *Trail) persistLocked(ctx context.Context) {
	if err := t.storage.Save(ctx, storage.KeyAuditLog, t.entries); err != nil {
		log.Printf("[audit] WARN: failed to persist audit log: %v", err)
	}
}

// Record appends an entry stamped with the current time.
func (t *Trail) Record(ctx context.Context, user, action, details, ip string) domain.AuditEntry {
	if ip == "" {
		ip = "127.0.0.1"
	}
	entry := domain.AuditEntry{
		ID:        xid.New("audit"),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		User:      user,
		Action:    action,
		Details:   details,
		IPAddress: ip,
	}

	t.mu.Lock()
	t.entries = append(t.entries, entry)
	t.persistLocked(ctx)
	t.mu.Unlock()
	return entry
}

type Filter struct {
	User       string
	Action     string
	DatePrefix string
	Limit      int
}

// Find returns matching entries, most recent first. Limit defaults to 100.
func (t *Trail) Find(f Filter) []domain.AuditEntry {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.AuditEntry, 0, limit)
	for i := len(t.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := t.entries[i]
		if f.User != "" && e.User != f.User {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.DatePrefix != "" && !strings.HasPrefix(e.Timestamp, f.DatePrefix) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// List returns the full trail in append order.
func (t *Trail) List() []domain.AuditEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.AuditEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Replace swaps in a whole new trail (sync pull path only).
func (t *Trail) Replace(ctx context.Context, entries []domain.AuditEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = make([]domain.AuditEntry, len(entries))
	copy(t.entries, entries)
	t.persistLocked(ctx)
}
