package render

import (
	"strings"
	"testing"

	"stargazerbot/internal/event"
)

func TestBuildKnownKind(t *testing.T) {
	msg, err := Build(event.Event{
		Topic: "alice",
		Kind:  "ytb_live",
		Data:  event.Data{Title: "Live now", Link: "https://x/y"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if want := "\\#alice \\#Youtube直播\nLive now\n"; msg.Body != want {
		t.Errorf("body = %q, want %q", msg.Body, want)
	}
	if msg.Button == nil || msg.Button.URL != "https://x/y" {
		t.Errorf("button = %+v, want URL https://x/y", msg.Button)
	}
	if len(msg.Images) != 0 {
		t.Errorf("images = %v, want none", msg.Images)
	}
}

func TestBuildUnknownKindPassesThrough(t *testing.T) {
	msg, err := Build(event.Event{Topic: "bob", Kind: "tiktok_live"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(msg.Body, "tiktok\\_live") {
		t.Errorf("body %q does not carry the raw kind tag", msg.Body)
	}
}

func TestBuildLineOrder(t *testing.T) {
	msg, err := Build(event.Event{
		Topic: "carol",
		Kind:  "ytb_sched",
		Data: event.Data{
			Title:              "title",
			Text:               "text",
			ScheduledStartTime: "2026-09-01T12:00:00Z",
			ActualStartTime:    "2026-09-01T12:03:00Z",
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	idxTitle := strings.Index(msg.Body, "title")
	idxText := strings.Index(msg.Body, "text")
	idxSched := strings.Index(msg.Body, "预定时间")
	idxActual := strings.Index(msg.Body, "上播时间")
	if !(idxTitle < idxText && idxText < idxSched && idxSched < idxActual) {
		t.Errorf("body lines out of order: %q", msg.Body)
	}
	if !strings.HasSuffix(msg.Body, "\n") {
		t.Errorf("body %q missing trailing newline", msg.Body)
	}
}

func TestBuildMalformed(t *testing.T) {
	if _, err := Build(event.Event{Kind: "ytb_live"}); err != ErrMalformedEvent {
		t.Errorf("missing topic: err = %v, want ErrMalformedEvent", err)
	}
	if _, err := Build(event.Event{Topic: "alice"}); err != ErrMalformedEvent {
		t.Errorf("missing kind: err = %v, want ErrMalformedEvent", err)
	}
}

func TestBuildCarriesImages(t *testing.T) {
	imgs := []string{"https://img/1.png", "https://img/2.png"}
	msg, err := Build(event.Event{Topic: "d", Kind: "bili_img_dyn", Data: event.Data{Images: imgs}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(msg.Images) != 2 || msg.Images[0] != imgs[0] || msg.Images[1] != imgs[1] {
		t.Errorf("images = %v, want %v", msg.Images, imgs)
	}
}
