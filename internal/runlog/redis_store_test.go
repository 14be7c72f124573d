package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create run log store: %v", err)
	}
	return store, s
}

func TestNewStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewStoreBadURL(t *testing.T) {
	if _, err := NewStore("not-a-url"); err == nil {
		t.Fatal("expected an error for a malformed redis url")
	}
}

func TestAppendAndRecent(t *testing.T) {
	store, s := setupTestStore(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		report := map[string]any{"mode": "full", "offset": i * 500}
		if err := store.Append(ctx, report); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	reports, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(reports))
	}

	// Newest first.
	var first struct {
		Offset int `json:"offset"`
	}
	if err := json.Unmarshal(reports[0], &first); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if first.Offset != 1000 {
		t.Errorf("expected the newest report first, got offset %d", first.Offset)
	}
}

func TestRecentLimit(t *testing.T) {
	store, s := setupTestStore(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := store.Append(ctx, map[string]any{"run": i}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	reports, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(reports) != 2 {
		t.Errorf("expected 2 reports, got %d", len(reports))
	}

	// A zero or out-of-range limit falls back to the retention cap.
	reports, err = store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(reports) != 5 {
		t.Errorf("expected all 5 reports, got %d", len(reports))
	}
}

func TestRetentionCap(t *testing.T) {
	store, s := setupTestStore(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < maxRetained+10; i++ {
		if err := store.Append(ctx, map[string]any{"run": fmt.Sprintf("run-%d", i)}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	reports, err := store.Recent(ctx, maxRetained)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(reports) != maxRetained {
		t.Errorf("expected the list trimmed to %d, got %d", maxRetained, len(reports))
	}
}
