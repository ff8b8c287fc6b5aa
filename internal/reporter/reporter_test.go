package reporter

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stargazerbot/internal/dispatch"
	"stargazerbot/internal/eventbus"
	"stargazerbot/internal/storage"
	"stargazerbot/pkg/logx"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRecordsDispatchResults(t *testing.T) {
	st, err := storage.Open(storage.Config{
		Driver: "file",
		Path:   filepath.Join(t.TempDir(), "deliveries.jsonl"),
	}, logx.Logger{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	bus := eventbus.New()
	svc := New(Config{}, st, bus, nil, logx.Logger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Run(ctx)
	}()

	bus.Publish(eventbus.Event{Type: "dispatch.finished", Data: dispatch.DispatchEvent{
		Topic: "alice", Kind: "live", Recipients: 3, Delivered: 2, Dropped: 1,
	}})
	bus.Publish(eventbus.Event{Type: "other", Data: "ignored"})

	waitFor(t, func() bool {
		sum, err := st.Summary(context.Background(), time.Time{})
		return err == nil && sum.Events == 1
	})

	sum, err := st.Summary(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Recipients != 3 || sum.Delivered != 2 || sum.Dropped != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	cancel()
	<-done
}

func TestFormatDigest(t *testing.T) {
	text := formatDigest(storage.Summary{
		Since:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Events:     5,
		Recipients: 12,
		Delivered:  10,
		Degraded:   1,
		Dropped:    1,
		Topics:     map[string]int{"bob": 2, "alice": 3},
	})
	for _, want := range []string{
		"events: 5, recipients: 12",
		"delivered: 10, degraded: 1, dropped: 1",
		"alice=3 bob=2",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("digest missing %q:\n%s", want, text)
		}
	}
}

func TestBadScheduleFails(t *testing.T) {
	st, err := storage.Open(storage.Config{
		Driver: "file",
		Path:   filepath.Join(t.TempDir(), "deliveries.jsonl"),
	}, logx.Logger{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	svc := New(Config{Enabled: true, Schedule: "not a cron"}, st, eventbus.New(), nil, logx.Logger{})
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected schedule parse error")
	}
}
