package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"stargazerbot/internal/event"
	"stargazerbot/internal/eventbus"
	"stargazerbot/internal/render"
	"stargazerbot/internal/subscribers"
	"stargazerbot/internal/transport"
	logx "stargazerbot/pkg/logx"
)

type fakeResolver struct {
	targets []transport.ChatTarget
	err     error
	topic   string
	kind    string
}

func (r *fakeResolver) Resolve(_ context.Context, topic, kind string) ([]transport.ChatTarget, error) {
	r.topic, r.kind = topic, kind
	return r.targets, r.err
}

func TestDispatchEndToEnd(t *testing.T) {
	fa := newFakeAdapter()
	res := &fakeResolver{targets: targets(1, 2, 3)}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	d := New(Config{}, fa, res, bus, logx.Nop(), Hooks{})

	ev := event.Event{
		Topic: "alice",
		Kind:  "ytb_live",
		Data:  event.Data{Title: "Live now", Link: "https://x/y"},
	}
	if err := d.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if res.topic != "alice" || res.kind != "ytb_live" {
		t.Errorf("resolver called with %q/%q", res.topic, res.kind)
	}

	wantMsg, err := render.Build(ev)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, id := range []int64{1, 2, 3} {
		calls := fa.callsTo("text", id)
		if len(calls) != 1 {
			t.Fatalf("chat %d: %d text calls, want 1", id, len(calls))
		}
		if calls[0].text != wantMsg.Body {
			t.Errorf("chat %d: body = %q, want %q", id, calls[0].text, wantMsg.Body)
		}
		if calls[0].opt == nil || calls[0].opt.Button == nil || calls[0].opt.Button.URL != "https://x/y" {
			t.Errorf("chat %d: missing call-to-action", id)
		}
	}

	select {
	case be := <-events:
		de, ok := be.Data.(DispatchEvent)
		if !ok || be.Type != "dispatch.finished" {
			t.Fatalf("unexpected bus event %+v", be)
		}
		if de.Recipients != 3 || de.Delivered != 3 || de.Dropped != 0 {
			t.Errorf("dispatch event = %+v", de)
		}
	case <-time.After(time.Second):
		t.Fatal("no dispatch event published")
	}
}

func TestDispatchMalformedEvent(t *testing.T) {
	fa := newFakeAdapter()
	d := New(Config{}, fa, &fakeResolver{}, nil, logx.Nop(), Hooks{})

	err := d.Dispatch(context.Background(), event.Event{Kind: "ytb_live"})
	if !errors.Is(err, render.ErrMalformedEvent) {
		t.Fatalf("err = %v, want ErrMalformedEvent", err)
	}
	if len(fa.calls) != 0 {
		t.Fatalf("unexpected sends: %+v", fa.calls)
	}
}

func TestDispatchResolveFailureAbortsEvent(t *testing.T) {
	fa := newFakeAdapter()
	res := &fakeResolver{err: subscribers.ErrBackendUnavailable}
	d := New(Config{}, fa, res, nil, logx.Nop(), Hooks{})

	err := d.Dispatch(context.Background(), event.Event{Topic: "alice", Kind: "ytb_live"})
	if !errors.Is(err, subscribers.ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable", err)
	}
	if len(fa.calls) != 0 {
		t.Fatalf("unexpected sends: %+v", fa.calls)
	}
}
