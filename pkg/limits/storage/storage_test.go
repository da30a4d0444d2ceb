package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"mercator-hq/governor/pkg/config"
	"mercator-hq/governor/pkg/limits/usage"
)

var baseTime = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func testAlert(typ usage.AlertType, severity usage.Severity, user string, offset time.Duration) usage.Alert {
	return usage.Alert{
		Type:      typ,
		Severity:  severity,
		Message:   fmt.Sprintf("%s for %s", typ, user),
		UserID:    user,
		Value:     12.5,
		Threshold: 10,
		Timestamp: baseTime.Add(offset),
	}
}

// ============================================================================
// MemoryStore
// ============================================================================

func TestMemoryStore_SaveAndList(t *testing.T) {
	store := NewMemoryStore(10)
	defer store.Close()
	ctx := context.Background()

	first, err := store.Save(ctx, testAlert(usage.AlertDailyCostExceeded, usage.SeverityHigh, "", 0))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	second, _ := store.Save(ctx, testAlert(usage.AlertUserDailyLimit, usage.SeverityMedium, "u1", time.Minute))

	if first.ID != 1 || second.ID != 2 {
		t.Errorf("Expected ids 1 and 2, got %d and %d", first.ID, second.ID)
	}

	records, err := store.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].ID != 2 {
		t.Errorf("Expected newest first, got id %d", records[0].ID)
	}
}

func TestMemoryStore_RingEvictsOldest(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		store.Save(ctx, testAlert(usage.AlertSuspiciousActivity, usage.SeverityHigh, fmt.Sprintf("u%d", i), time.Duration(i)*time.Second))
	}

	if store.Len() != 3 {
		t.Errorf("Expected 3 stored alerts, got %d", store.Len())
	}
	records, _ := store.List(ctx, Filter{})
	want := []string{"u4", "u3", "u2"}
	for i, rec := range records {
		if rec.UserID != want[i] {
			t.Errorf("Record %d: expected %s, got %s", i, want[i], rec.UserID)
		}
	}
}

func TestMemoryStore_Filter(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	store.Save(ctx, testAlert(usage.AlertDailyCostExceeded, usage.SeverityHigh, "", 0))
	store.Save(ctx, testAlert(usage.AlertUserDailyLimit, usage.SeverityMedium, "u1", time.Minute))
	store.Save(ctx, testAlert(usage.AlertSuspiciousActivity, usage.SeverityHigh, "u1", 2*time.Minute))
	store.Save(ctx, testAlert(usage.AlertSuspiciousActivity, usage.SeverityHigh, "u2", 3*time.Minute))

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"severity", Filter{Severity: usage.SeverityHigh}, 3},
		{"type", Filter{Type: usage.AlertSuspiciousActivity}, 2},
		{"user", Filter{UserID: "u1"}, 2},
		{"since", Filter{Since: baseTime.Add(2 * time.Minute)}, 2},
		{"limit", Filter{Limit: 1}, 1},
		{"combined", Filter{Severity: usage.SeverityHigh, UserID: "u1"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := store.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(records) != tt.want {
				t.Errorf("Expected %d records, got %d", tt.want, len(records))
			}
		})
	}
}

func TestMemoryStore_Cleanup(t *testing.T) {
	store := NewMemoryStore(4)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		store.Save(ctx, testAlert(usage.AlertHourlyCostExceeded, usage.SeverityHigh, fmt.Sprintf("u%d", i), time.Duration(i)*time.Hour))
	}

	removed, err := store.Cleanup(ctx, baseTime.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}

	// The ring keeps working after compaction.
	store.Save(ctx, testAlert(usage.AlertHourlyCostExceeded, usage.SeverityHigh, "u9", 5*time.Hour))
	records, _ := store.List(ctx, Filter{})
	want := []string{"u9", "u3", "u2"}
	if len(records) != len(want) {
		t.Fatalf("Expected %d records, got %d", len(want), len(records))
	}
	for i, rec := range records {
		if rec.UserID != want[i] {
			t.Errorf("Record %d: expected %s, got %s", i, want[i], rec.UserID)
		}
	}
}

// ============================================================================
// Sink and factory
// ============================================================================

type failingStore struct{ MemoryStore }

func (*failingStore) Save(context.Context, usage.Alert) (*Record, error) {
	return nil, errors.New("disk full")
}

func TestSink_SavesAlerts(t *testing.T) {
	store := NewMemoryStore(10)
	sink := Sink{Store: store}

	if err := sink.HandleAlert(context.Background(), testAlert(usage.AlertDailyCostExceeded, usage.SeverityHigh, "", 0)); err != nil {
		t.Fatalf("HandleAlert failed: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("Expected 1 stored alert, got %d", store.Len())
	}

	failing := Sink{Store: &failingStore{}}
	if err := failing.HandleAlert(context.Background(), usage.Alert{Type: usage.AlertDailyCostExceeded}); err == nil {
		t.Error("Expected store error to propagate")
	}
}

func TestSink_WithNotifier(t *testing.T) {
	store := NewMemoryStore(10)
	notifier := usage.NewNotifier(4, nil)
	notifier.AddSink(Sink{Store: store})
	go notifier.Run(context.Background())

	notifier.Publish(testAlert(usage.AlertSuspiciousActivity, usage.SeverityHigh, "u1", 0))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := notifier.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("Expected alert persisted through notifier, got %d", store.Len())
	}
}

func TestPruner(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()
	store.Save(ctx, testAlert(usage.AlertDailyCostExceeded, usage.SeverityHigh, "", 0))
	store.Save(ctx, testAlert(usage.AlertDailyCostExceeded, usage.SeverityHigh, "", 48*time.Hour))

	prune := Pruner(store, 24*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	prune(baseTime.Add(49 * time.Hour))

	if store.Len() != 1 {
		t.Errorf("Expected 1 alert after pruning, got %d", store.Len())
	}
}

func TestOpen(t *testing.T) {
	cfg := config.Base().Storage.Alerts

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Errorf("Expected memory store by default, got %T", store)
	}

	cfg.Backend = "postgres"
	if _, err := Open(cfg); err == nil {
		t.Error("Expected error for unsupported backend")
	}
}
