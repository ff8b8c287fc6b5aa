package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"stargazerbot/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none", "off"} {
		st, err := Open(Config{Driver: driver}, logx.Logger{})
		if err != nil {
			t.Fatalf("driver %q: %v", driver, err)
		}
		if st != nil {
			t.Fatalf("driver %q: expected nil store", driver)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "postgres"}, logx.Logger{}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func testStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	records := []DeliveryRecord{
		{At: now.Add(-2 * time.Hour), Topic: "alice", Kind: "live", Recipients: 3, Delivered: 3},
		{At: now.Add(-10 * time.Minute), Topic: "alice", Kind: "upcoming", Recipients: 2, Delivered: 1, Dropped: 1},
		{At: now.Add(-5 * time.Minute), Topic: "bob", Kind: "live", Recipients: 4, Delivered: 3, Degraded: 1},
	}
	for _, rec := range records {
		if err := st.AppendDelivery(ctx, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	sum, err := st.Summary(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Events != 2 {
		t.Fatalf("events = %d, want 2", sum.Events)
	}
	if sum.Recipients != 6 || sum.Delivered != 4 || sum.Degraded != 1 || sum.Dropped != 1 {
		t.Fatalf("unexpected tallies: %+v", sum)
	}
	if sum.Topics["alice"] != 1 || sum.Topics["bob"] != 1 {
		t.Fatalf("unexpected topics: %v", sum.Topics)
	}

	all, err := st.Summary(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if all.Events != 3 {
		t.Fatalf("events = %d, want 3", all.Events)
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deliveries.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Logger{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	testStore(t, st)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deliveries.db")
	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Logger{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	testStore(t, st)
}

func TestFileStoreAppendAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deliveries.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Logger{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := st.AppendDelivery(context.Background(), DeliveryRecord{Topic: "x"}); err == nil {
		t.Fatal("expected error after close")
	}
}
