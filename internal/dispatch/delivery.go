package dispatch

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"stargazerbot/internal/markup"
	"stargazerbot/internal/render"
	"stargazerbot/internal/transport"
	logx "stargazerbot/pkg/logx"
)

// Outcome is the terminal result of one recipient's delivery loop.
type Outcome int

const (
	OutcomeDelivered Outcome = iota
	OutcomeDegraded          // delivered, but via a fallback shape
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

const photoFetchAttempts = 3

type tally struct {
	delivered int
	degraded  int
	dropped   int
}

// deliver fans the message out to every recipient concurrently. One
// recipient's outcome (including an indefinite flood-control stall) never
// affects another's. It returns once every recipient reached a terminal
// outcome.
func (d *Dispatcher) deliver(ctx context.Context, log logx.Logger, msg render.Message, targets []transport.ChatTarget) tally {
	var delivered, degraded, dropped atomic.Int64

	var wg sync.WaitGroup
	for _, to := range targets {
		wg.Add(1)
		go func(to transport.ChatTarget) {
			defer wg.Done()
			out := d.deliverOne(ctx, log.With(logx.Int64("chat_id", to.ChatID)), msg, to)
			switch out {
			case OutcomeDelivered:
				delivered.Add(1)
			case OutcomeDegraded:
				degraded.Add(1)
			default:
				dropped.Add(1)
			}
			if d.hooks.OnOutcome != nil {
				d.hooks.OnOutcome(out)
			}
		}(to)
	}
	wg.Wait()

	return tally{
		delivered: int(delivered.Load()),
		degraded:  int(degraded.Load()),
		dropped:   int(dropped.Load()),
	}
}

// deliverOne runs one recipient's delivery loop, choosing the send shape by
// image count.
func (d *Dispatcher) deliverOne(ctx context.Context, log logx.Logger, msg render.Message, to transport.ChatTarget) Outcome {
	opt := &transport.SendOptions{ParseMode: transport.ModeMarkdownV2, Button: msg.Button}

	switch {
	case len(msg.Images) == 0:
		err := d.trySend(ctx, log, "text", func() error {
			_, err := d.adapter.SendText(ctx, to, msg.Body, opt)
			return err
		})
		return d.absorb(log, err)

	case len(msg.Images) == 1:
		return d.deliverPhoto(ctx, log, msg, to, opt)

	default:
		return d.deliverGroup(ctx, log, msg, to, opt)
	}
}

// deliverPhoto sends a single image with the body as caption. Transient
// remote-fetch failures are retried a fixed number of attempts; a rejected
// file reference falls back immediately to a text message carrying the URL.
func (d *Dispatcher) deliverPhoto(ctx context.Context, log logx.Logger, msg render.Message, to transport.ChatTarget, opt *transport.SendOptions) Outcome {
	img := msg.Images[0]
	for attempt := 1; attempt <= photoFetchAttempts; attempt++ {
		err := d.trySend(ctx, log, "photo", func() error {
			_, err := d.adapter.SendPhoto(ctx, to, img, msg.Body, opt)
			return err
		})
		if err == nil {
			return OutcomeDelivered
		}

		switch transport.KindOf(err) {
		case transport.FailFetch:
			log.Warn("remote content fetch failed",
				logx.String("image", img),
				logx.Int("attempt", attempt),
				logx.Int("max_attempts", photoFetchAttempts))
			continue

		case transport.FailBadReference:
			log.Warn("image send rejected, falling back to plaintext", logx.String("image", img))
			fallback := msg.Body + "\n" + markup.EscapeMarkdownV2(img)
			ferr := d.trySend(ctx, log, "text", func() error {
				_, err := d.adapter.SendText(ctx, to, fallback, opt)
				return err
			})
			if ferr != nil {
				return d.absorb(log, ferr)
			}
			return OutcomeDegraded

		default:
			return d.absorb(log, err)
		}
	}
	log.Warn("image send abandoned after repeated fetch failures", logx.String("image", img))
	return OutcomeDropped
}

// deliverGroup sends the text body first, then the images as one grouped
// message. A rejected group send degrades to the raw image URLs as plain
// text rather than failing the delivery.
func (d *Dispatcher) deliverGroup(ctx context.Context, log logx.Logger, msg render.Message, to transport.ChatTarget, opt *transport.SendOptions) Outcome {
	terr := d.trySend(ctx, log, "text", func() error {
		_, err := d.adapter.SendText(ctx, to, msg.Body, opt)
		return err
	})
	if terr != nil && transport.KindOf(terr) == transport.FailPermanent {
		return d.absorb(log, terr)
	}
	textOut := d.absorb(log, terr)

	gerr := d.trySend(ctx, log, "media_group", func() error {
		return d.adapter.SendMediaGroup(ctx, to, msg.Images)
	})
	if gerr == nil {
		if textOut == OutcomeDropped {
			return OutcomeDegraded
		}
		return OutcomeDelivered
	}
	if transport.KindOf(gerr) == transport.FailPermanent {
		return d.absorb(log, gerr)
	}

	log.Warn("group send failed, falling back to plaintext", logx.Strings("images", msg.Images), logx.Err(gerr))
	ferr := d.trySend(ctx, log, "text", func() error {
		_, err := d.adapter.SendText(ctx, to, strings.Join(msg.Images, "\n"), nil)
		return err
	})
	if ferr != nil {
		return d.absorb(log, ferr)
	}
	return OutcomeDegraded
}

// trySend performs one logical send, retrying indefinitely under flood
// control with the transport's required wait plus a fixed safety margin.
// Retries for the same recipient are strictly sequential. Any non-flood
// failure is returned for the caller to classify.
func (d *Dispatcher) trySend(ctx context.Context, log logx.Logger, method string, send func() error) error {
	for {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		err := send()
		if d.hooks.OnSend != nil {
			d.hooks.OnSend(method, err)
		}
		if err == nil {
			return nil
		}

		se, ok := transport.AsSendError(err)
		if !ok || se.Kind != transport.FailFlood {
			return err
		}

		wait := se.RetryAfter + d.floodMargin
		log.Warn("flood control exceeded", logx.Duration("wait", wait))
		if d.hooks.OnFlood != nil {
			d.hooks.OnFlood(wait)
		}
		if err := d.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// absorb turns a terminal send error into the recipient's outcome. Permanent
// and malformed-request failures are logged and dropped, never escalated.
func (d *Dispatcher) absorb(log logx.Logger, err error) Outcome {
	if err == nil {
		return OutcomeDelivered
	}
	switch transport.KindOf(err) {
	case transport.FailPermanent:
		log.Warn("recipient unreachable, dropping", logx.Err(err))
	default:
		log.Error("send rejected, dropping", logx.Err(err))
	}
	return OutcomeDropped
}
