package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/LuG3Zz/Blog/pkg/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return store
}

func TestInsertAndListNotifications(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rows := []*storage.Notification{
		{Title: "maintenance", Content: "down at noon", Level: "warning", CreatedBy: "a1", CreatedByName: "Admin"},
		{Title: "welcome", Content: "hello world", Level: "info", CreatedBy: "a1", CreatedByName: "Admin", TargetUsers: []string{"u1", "u2"}},
		{Title: "incident", Content: "resolved", Level: "warning", CreatedBy: "a2", CreatedByName: "Ops"},
	}
	for _, n := range rows {
		id, err := store.InsertNotification(ctx, n)
		if err != nil {
			t.Fatalf("InsertNotification: %v", err)
		}
		if id <= 0 {
			t.Fatalf("InsertNotification returned id %d", id)
		}
	}

	all, total, err := store.ListNotifications(ctx, "", 0, 10)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Fatalf("got %d rows, total %d, want 3/3", len(all), total)
	}
	// Newest first.
	if all[0].Title != "incident" {
		t.Errorf("first row = %q, want incident", all[0].Title)
	}

	warnings, total, err := store.ListNotifications(ctx, "warning", 0, 10)
	if err != nil {
		t.Fatalf("ListNotifications(warning): %v", err)
	}
	if total != 2 || len(warnings) != 2 {
		t.Fatalf("warning filter: got %d rows, total %d, want 2/2", len(warnings), total)
	}

	page, total, err := store.ListNotifications(ctx, "", 1, 1)
	if err != nil {
		t.Fatalf("ListNotifications(page): %v", err)
	}
	if total != 3 || len(page) != 1 {
		t.Fatalf("pagination: got %d rows, total %d, want 1/3", len(page), total)
	}
	if page[0].Title != "welcome" {
		t.Errorf("page row = %q, want welcome", page[0].Title)
	}
	if len(page[0].TargetUsers) != 2 || page[0].TargetUsers[0] != "u1" {
		t.Errorf("target users not restored: %v", page[0].TargetUsers)
	}
}

func TestLocationCacheRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.GetLocation(ctx, "41.0.0.1", time.Hour); err != nil || ok {
		t.Fatalf("GetLocation on empty cache: ok=%v err=%v", ok, err)
	}

	if err := store.PutLocation(ctx, "41.0.0.1", "Somewhere"); err != nil {
		t.Fatalf("PutLocation: %v", err)
	}
	region, ok, err := store.GetLocation(ctx, "41.0.0.1", time.Hour)
	if err != nil || !ok {
		t.Fatalf("GetLocation after put: ok=%v err=%v", ok, err)
	}
	if region != "Somewhere" {
		t.Errorf("region = %q, want Somewhere", region)
	}

	// Upsert refreshes in place.
	if err := store.PutLocation(ctx, "41.0.0.1", "Elsewhere"); err != nil {
		t.Fatalf("PutLocation upsert: %v", err)
	}
	region, ok, err = store.GetLocation(ctx, "41.0.0.1", time.Hour)
	if err != nil || !ok || region != "Elsewhere" {
		t.Fatalf("after upsert: region=%q ok=%v err=%v", region, ok, err)
	}
}

func TestGetLocationExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.PutLocation(ctx, "41.0.0.1", "Somewhere"); err != nil {
		t.Fatalf("PutLocation: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok, err := store.GetLocation(ctx, "41.0.0.1", time.Millisecond); err != nil {
		t.Fatalf("GetLocation: %v", err)
	} else if ok {
		t.Error("expired entry should be treated as a miss")
	}
}

func TestPurgeLocations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, addr := range []string{"41.0.0.1", "41.0.0.2"} {
		if err := store.PutLocation(ctx, addr, "Somewhere"); err != nil {
			t.Fatalf("PutLocation: %v", err)
		}
	}

	// A negative max age puts the cutoff in the future, purging everything.
	removed, err := store.PurgeLocations(ctx, -time.Hour)
	if err != nil {
		t.Fatalf("PurgeLocations: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed %d rows, want 2", removed)
	}
	if _, ok, _ := store.GetLocation(ctx, "41.0.0.1", 0); ok {
		t.Error("entry survived purge")
	}
}
