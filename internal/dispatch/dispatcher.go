// Package dispatch orchestrates rendering, subscriber resolution and
// fan-out delivery for one event at a time.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"stargazerbot/internal/event"
	"stargazerbot/internal/eventbus"
	"stargazerbot/internal/render"
	"stargazerbot/internal/transport"
	logx "stargazerbot/pkg/logx"
)

// Resolver yields the recipient set for one topic/kind pair.
type Resolver interface {
	Resolve(ctx context.Context, topic, kind string) ([]transport.ChatTarget, error)
}

// Hooks carries metric callbacks injected by main. Using a struct keeps the
// dispatcher free of a direct metrics dependency.
type Hooks struct {
	OnSend    func(method string, err error)
	OnOutcome func(outcome Outcome)
	OnFlood   func(wait time.Duration)
}

// DispatchEvent is published on the event bus after every dispatch.
type DispatchEvent struct {
	ID         string        `json:"id"`
	Topic      string        `json:"topic"`
	Kind       string        `json:"kind"`
	Recipients int           `json:"recipients"`
	Delivered  int           `json:"delivered"`
	Degraded   int           `json:"degraded"`
	Dropped    int           `json:"dropped"`
	Took       time.Duration `json:"took"`
}

const defaultFloodMargin = 5 * time.Second

type Config struct {
	// SendRatePerSec caps outbound sends across all recipients and workers.
	// 0 disables the limiter; reactive flood-control handling still applies.
	SendRatePerSec int
}

type Dispatcher struct {
	adapter  transport.Adapter
	resolver Resolver
	log      logx.Logger
	bus      eventbus.Bus
	hooks    Hooks

	limiter     *rate.Limiter
	floodMargin time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, adapter transport.Adapter, resolver Resolver, bus eventbus.Bus, log logx.Logger, hooks Hooks) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		adapter:     adapter,
		resolver:    resolver,
		log:         log,
		bus:         bus,
		hooks:       hooks,
		floodMargin: defaultFloodMargin,
		sleep:       sleepCtx,
	}
	if cfg.SendRatePerSec > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.SendRatePerSec), cfg.SendRatePerSec)
	}
	return d
}

// Dispatch renders the event, resolves its recipients and delivers to all of
// them. The returned error covers render/resolve failures only; per-recipient
// delivery failures are absorbed by the engine and never surface here.
func (d *Dispatcher) Dispatch(ctx context.Context, ev event.Event) error {
	start := time.Now()
	id := uuid.NewString()
	log := d.log.With(
		logx.String("dispatch_id", id),
		logx.String("topic", ev.Topic),
		logx.String("kind", ev.Kind),
	)
	log.Info("incoming event")

	msg, err := render.Build(ev)
	if err != nil {
		return err
	}

	targets, err := d.resolver.Resolve(ctx, ev.Topic, ev.Kind)
	if err != nil {
		return err
	}
	log.Info("delivering", logx.Int("recipients", len(targets)))

	tally := d.deliver(ctx, log, msg, targets)

	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: "dispatch.finished", Data: DispatchEvent{
			ID:         id,
			Topic:      ev.Topic,
			Kind:       ev.Kind,
			Recipients: len(targets),
			Delivered:  tally.delivered,
			Degraded:   tally.degraded,
			Dropped:    tally.dropped,
			Took:       time.Since(start),
		}})
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}
