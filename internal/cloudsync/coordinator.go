// Package cloudsync reconciles the local collections against a shared remote
// document store. Conflicts resolve by last-write-wins at whole-collection
// granularity: a remote document with a timestamp newer than the local sync
// watermark replaces the local collection wholesale. A local edit made after
// the watermark but before a newer remote write is discarded by design; no
// per-record merge is attempted.
package cloudsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"pharmastore/backend/internal/storage"
)

var (
	ErrNotConfigured  = errors.New("cloud sync is not configured")
	ErrNoConnectivity = errors.New("no connectivity to remote store")
	ErrSyncInProgress = errors.New("sync already in progress")
)

// Collection adapts one local collection to the generic reconcile routine.
// Export snapshots the current value; Replace swaps in remote data.
type Collection struct {
	Name    string
	Export  func() any
	Replace func(ctx context.Context, data json.RawMessage) error
}

type Status struct {
	Configured   bool      `json:"configured"`
	Enabled      bool      `json:"enabled"`
	Online       bool      `json:"online"`
	Syncing      bool      `json:"syncing"`
	LastSyncTime time.Time `json:"last_sync_time"`
}

type Result struct {
	Pushed   []string `json:"pushed,omitempty"`
	Replaced []string `json:"replaced,omitempty"`
}

type Coordinator struct {
	remote      Remote
	storage     storage.Store
	collections []Collection
	interval    time.Duration

	mu       sync.Mutex
	syncing  bool
	enabled  bool
	online   bool
	cancels  []func()
}

// New builds a coordinator. A nil remote means sync is not configured; every
// push/pull then fails with ErrNotConfigured. The enabled flag is restored
// from settings.
func New(ctx context.Context, remote Remote, st storage.Store, collections []Collection, interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	c := &Coordinator{
		remote:      remote,
		storage:     st,
		collections: collections,
		interval:    interval,
	}
	if _, err := st.Load(ctx, storage.KeyCloudSyncEnabled, &c.enabled); err != nil {
		log.Printf("[cloudsync] WARN: failed to load sync setting: %v", err)
	}
	return c
}

func (c *Coordinator) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SetEnabled toggles auto-sync and persists the setting.
func (c *Coordinator) SetEnabled(ctx context.Context, enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
	if err := c.storage.Save(ctx, storage.KeyCloudSyncEnabled, enabled); err != nil {
		log.Printf("[cloudsync] WARN: failed to persist sync setting: %v", err)
	}
}

func (c *Coordinator) watermark(ctx context.Context) time.Time {
	var mark time.Time
	if _, err := c.storage.Load(ctx, storage.KeyLastSyncTime, &mark); err != nil {
		log.Printf("[cloudsync] WARN: failed to load sync watermark: %v", err)
	}
	return mark
}

func (c *Coordinator) setWatermark(ctx context.Context, mark time.Time) {
	if err := c.storage.Save(ctx, storage.KeyLastSyncTime, mark); err != nil {
		log.Printf("[cloudsync] WARN: failed to persist sync watermark: %v", err)
	}
}

// beginCycle moves Idle -> Syncing, rejecting concurrent cycles.
func (c *Coordinator) beginCycle(ctx context.Context) error {
	if c.remote == nil {
		return ErrNotConfigured
	}

	c.mu.Lock()
	if c.syncing {
		c.mu.Unlock()
		return ErrSyncInProgress
	}
	c.syncing = true
	c.mu.Unlock()

	if err := c.remote.Ping(ctx); err != nil {
		c.endCycle(false)
		return fmt.Errorf("%w: %v", ErrNoConnectivity, err)
	}
	c.setOnline(true)
	return nil
}

func (c *Coordinator) endCycle(_ bool) {
	c.mu.Lock()
	c.syncing = false
	c.mu.Unlock()
}

func (c *Coordinator) setOnline(online bool) {
	c.mu.Lock()
	c.online = online
	c.mu.Unlock()
}

// Push writes all collections to the remote store as one batch, each tagged
// with the current wall-clock time, then records the local sync watermark.
func (c *Coordinator) Push(ctx context.Context) (Result, error) {
	if err := c.beginCycle(ctx); err != nil {
		return Result{}, err
	}
	defer c.endCycle(true)

	now := time.Now().UTC()
	docs := make(map[string]Document, len(c.collections))
	result := Result{}
	for _, col := range c.collections {
		raw, err := json.Marshal(col.Export())
		if err != nil {
			return Result{}, fmt.Errorf("encode %s: %w", col.Name, err)
		}
		docs[col.Name] = Document{Data: raw, LastUpdated: now}
		result.Pushed = append(result.Pushed, col.Name)
	}

	if err := c.remote.SetBatch(ctx, docs); err != nil {
		c.setOnline(false)
		return Result{}, fmt.Errorf("push batch: %w", err)
	}

	c.setWatermark(ctx, now)
	return result, nil
}

// Pull fetches every remote collection and, independently per collection,
// replaces the local data when the remote timestamp is strictly newer than
// the sync watermark. The watermark itself only advances on push.
func (c *Coordinator) Pull(ctx context.Context) (Result, error) {
	if err := c.beginCycle(ctx); err != nil {
		return Result{}, err
	}
	defer c.endCycle(true)

	mark := c.watermark(ctx)
	result := Result{}
	for _, col := range c.collections {
		doc, ok, err := c.remote.Get(ctx, col.Name)
		if err != nil {
			c.setOnline(false)
			return result, fmt.Errorf("fetch %s: %w", col.Name, err)
		}
		if !ok || !doc.LastUpdated.After(mark) {
			continue
		}
		if err := col.Replace(ctx, doc.Data); err != nil {
			return result, fmt.Errorf("replace %s: %w", col.Name, err)
		}
		result.Replaced = append(result.Replaced, col.Name)
	}
	return result, nil
}

// handleChange applies one real-time notification with the same
// newer-than-watermark check as Pull.
func (c *Coordinator) handleChange(ctx context.Context, col Collection, doc Document) {
	if !doc.LastUpdated.After(c.watermark(ctx)) {
		return
	}
	if err := col.Replace(ctx, doc.Data); err != nil {
		log.Printf("[cloudsync] WARN: failed to apply change to %s: %v", col.Name, err)
		return
	}
	log.Printf("[cloudsync] %s updated from remote change notification", col.Name)
}

// StartSubscriptions enables real-time mode: every remote change notification
// is reconciled as it arrives. Idempotent per coordinator; subscriptions end
// on Stop.
func (c *Coordinator) StartSubscriptions(ctx context.Context) error {
	if c.remote == nil {
		return ErrNotConfigured
	}
	for _, col := range c.collections {
		col := col
		cancel, err := c.remote.Subscribe(ctx, col.Name, func(doc Document) {
			c.handleChange(ctx, col, doc)
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", col.Name, err)
		}
		c.mu.Lock()
		c.cancels = append(c.cancels, cancel)
		c.mu.Unlock()
	}
	return nil
}

// Run drives auto-sync until the context ends: a push on every tick, plus a
// pull-first cycle right after connectivity returns from an offline spell.
// Failures are logged and the schedule continues unaffected.
func (c *Coordinator) Run(ctx context.Context) {
	if c.remote == nil {
		log.Println("[cloudsync] auto-sync disabled: no remote configured")
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	wasOnline := c.remote.Ping(ctx) == nil
	c.setOnline(wasOnline)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.Enabled() {
				continue
			}

			online := c.remote.Ping(ctx) == nil
			c.setOnline(online)
			if !online {
				wasOnline = false
				log.Printf("[cloudsync] WARN: remote unreachable, skipping cycle")
				continue
			}

			if !wasOnline {
				if _, err := c.Pull(ctx); err != nil {
					log.Printf("[cloudsync] WARN: reconnect pull failed: %v", err)
				}
			}
			wasOnline = true

			if _, err := c.Push(ctx); err != nil {
				log.Printf("[cloudsync] WARN: periodic push failed: %v", err)
			}
		}
	}
}

// Stop cancels any active change subscriptions.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancels := c.cancels
	c.cancels = nil
	c.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (c *Coordinator) Status(ctx context.Context) Status {
	c.mu.Lock()
	enabled, syncing, online := c.enabled, c.syncing, c.online
	c.mu.Unlock()

	return Status{
		Configured:   c.remote != nil,
		Enabled:      enabled,
		Online:       online,
		Syncing:      syncing,
		LastSyncTime: c.watermark(ctx),
	}
}
