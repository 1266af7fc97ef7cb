package cloudsync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"pharmastore/backend/internal/storage"
)

// fakeCollection is the smallest Collection backing possible: a named slice
// of strings.
type fakeCollection struct {
	name string
	data []string
}

func (f *fakeCollection) collection() Collection {
	return Collection{
		Name:   f.name,
		Export: func() any { return f.data },
		Replace: func(_ context.Context, raw json.RawMessage) error {
			return json.Unmarshal(raw, &f.data)
		},
	}
}

func newTestCoordinator(t *testing.T, remote Remote, cols ...Collection) (*Coordinator, storage.Store) {
	t.Helper()
	st := storage.NewMemory()
	c := New(context.Background(), remote, st, cols, time.Minute)
	return c, st
}

func TestPushWithoutRemote(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	if _, err := c.Push(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := c.Pull(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestPushWhileOffline(t *testing.T) {
	remote := NewMemoryRemote()
	remote.SetOnline(false)
	col := &fakeCollection{name: "drugs", data: []string{"a"}}
	c, _ := newTestCoordinator(t, remote, col.collection())

	if _, err := c.Push(context.Background()); !errors.Is(err, ErrNoConnectivity) {
		t.Fatalf("expected ErrNoConnectivity, got %v", err)
	}
	if st := c.Status(context.Background()); st.Online {
		t.Fatalf("coordinator must report offline after a failed ping")
	}
}

func TestPushWritesAllCollectionsAndAdvancesWatermark(t *testing.T) {
	remote := NewMemoryRemote()
	drugs := &fakeCollection{name: "drugs", data: []string{"d1"}}
	sales := &fakeCollection{name: "sales", data: []string{"s1", "s2"}}
	c, _ := newTestCoordinator(t, remote, drugs.collection(), sales.collection())

	before := time.Now().UTC()
	res, err := c.Push(context.Background())
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(res.Pushed) != 2 {
		t.Fatalf("expected both collections pushed, got %v", res.Pushed)
	}

	doc, ok, err := remote.Get(context.Background(), "sales")
	if err != nil || !ok {
		t.Fatalf("remote missing sales doc: ok=%v err=%v", ok, err)
	}
	var got []string
	if err := json.Unmarshal(doc.Data, &got); err != nil {
		t.Fatalf("decode remote doc: %v", err)
	}
	if len(got) != 2 || got[0] != "s1" {
		t.Fatalf("remote doc does not match export: %v", got)
	}

	mark := c.Status(context.Background()).LastSyncTime
	if mark.Before(before) {
		t.Fatalf("watermark not advanced: %v", mark)
	}
}

func TestPullSkipsDocumentsNotNewerThanWatermark(t *testing.T) {
	remote := NewMemoryRemote()
	col := &fakeCollection{name: "drugs", data: []string{"local"}}
	c, _ := newTestCoordinator(t, remote, col.collection())

	if _, err := c.Push(context.Background()); err != nil {
		t.Fatalf("push: %v", err)
	}

	// Local edit after push; the remote doc carries the push timestamp, which
	// is not strictly newer than the watermark, so pull must not clobber it.
	col.data = []string{"local-edited"}
	res, err := c.Pull(context.Background())
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(res.Replaced) != 0 {
		t.Fatalf("expected nothing replaced, got %v", res.Replaced)
	}
	if col.data[0] != "local-edited" {
		t.Fatalf("pull clobbered local data: %v", col.data)
	}
}

func TestPullReplacesOnlyNewerCollections(t *testing.T) {
	remote := NewMemoryRemote()
	drugs := &fakeCollection{name: "drugs", data: []string{"local-drugs"}}
	sales := &fakeCollection{name: "sales", data: []string{"local-sales"}}
	c, _ := newTestCoordinator(t, remote, drugs.collection(), sales.collection())

	if _, err := c.Push(context.Background()); err != nil {
		t.Fatalf("push: %v", err)
	}

	newer, _ := json.Marshal([]string{"remote-drugs"})
	stale, _ := json.Marshal([]string{"remote-sales"})
	err := remote.SetBatch(context.Background(), map[string]Document{
		"drugs": {Data: newer, LastUpdated: time.Now().UTC().Add(time.Minute)},
		"sales": {Data: stale, LastUpdated: time.Now().UTC().Add(-time.Hour)},
	})
	if err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	res, err := c.Pull(context.Background())
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(res.Replaced) != 1 || res.Replaced[0] != "drugs" {
		t.Fatalf("expected exactly drugs replaced, got %v", res.Replaced)
	}
	if drugs.data[0] != "remote-drugs" {
		t.Fatalf("drugs not replaced: %v", drugs.data)
	}
	if sales.data[0] != "local-sales" {
		t.Fatalf("stale remote doc must not replace sales: %v", sales.data)
	}
}

func TestPullDoesNotAdvanceWatermark(t *testing.T) {
	remote := NewMemoryRemote()
	col := &fakeCollection{name: "drugs"}
	c, _ := newTestCoordinator(t, remote, col.collection())

	raw, _ := json.Marshal([]string{"remote"})
	remoteTime := time.Now().UTC().Add(time.Minute)
	if err := remote.SetBatch(context.Background(), map[string]Document{
		"drugs": {Data: raw, LastUpdated: remoteTime},
	}); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	if _, err := c.Pull(context.Background()); err != nil {
		t.Fatalf("pull: %v", err)
	}
	if mark := c.Status(context.Background()).LastSyncTime; !mark.IsZero() {
		t.Fatalf("pull must not advance the watermark, got %v", mark)
	}

	// A second pull of the same document replaces again: still newer than the
	// untouched watermark.
	col.data = []string{"local"}
	res, err := c.Pull(context.Background())
	if err != nil {
		t.Fatalf("second pull: %v", err)
	}
	if len(res.Replaced) != 1 {
		t.Fatalf("expected replacement on second pull, got %v", res.Replaced)
	}
}

func TestSubscriptionAppliesNewerChanges(t *testing.T) {
	remote := NewMemoryRemote()
	col := &fakeCollection{name: "drugs", data: []string{"local"}}
	c, _ := newTestCoordinator(t, remote, col.collection())

	if err := c.StartSubscriptions(context.Background()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer c.Stop()

	raw, _ := json.Marshal([]string{"remote"})
	if err := remote.SetBatch(context.Background(), map[string]Document{
		"drugs": {Data: raw, LastUpdated: time.Now().UTC().Add(time.Minute)},
	}); err != nil {
		t.Fatalf("set batch: %v", err)
	}
	if col.data[0] != "remote" {
		t.Fatalf("change notification not applied: %v", col.data)
	}

	// Notifications stamped at or before the watermark are ignored.
	if _, err := c.Push(context.Background()); err != nil {
		t.Fatalf("push: %v", err)
	}
	col.data = []string{"local-again"}
	stale, _ := json.Marshal([]string{"stale"})
	if err := remote.SetBatch(context.Background(), map[string]Document{
		"drugs": {Data: stale, LastUpdated: time.Now().UTC().Add(-time.Hour)},
	}); err != nil {
		t.Fatalf("set batch: %v", err)
	}
	if col.data[0] != "local-again" {
		t.Fatalf("stale notification must be ignored: %v", col.data)
	}
}

func TestSubscriptionsRequireRemote(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	if err := c.StartSubscriptions(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestEnabledFlagSurvivesRestart(t *testing.T) {
	remote := NewMemoryRemote()
	c, st := newTestCoordinator(t, remote)

	if c.Enabled() {
		t.Fatalf("auto-sync must start disabled")
	}
	c.SetEnabled(context.Background(), true)

	again := New(context.Background(), remote, st, nil, time.Minute)
	if !again.Enabled() {
		t.Fatalf("enabled flag not restored from settings")
	}
}

func TestStatusReflectsConfiguration(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	if st := c.Status(context.Background()); st.Configured {
		t.Fatalf("nil remote must report unconfigured")
	}

	remote := NewMemoryRemote()
	c2, _ := newTestCoordinator(t, remote)
	if st := c2.Status(context.Background()); !st.Configured {
		t.Fatalf("remote present must report configured")
	}
}
