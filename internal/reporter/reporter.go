// Package reporter records per-event delivery outcomes and periodically
// posts a digest of them to an operator chat.
package reporter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"stargazerbot/internal/dispatch"
	"stargazerbot/internal/eventbus"
	"stargazerbot/internal/storage"
	"stargazerbot/internal/transport"
	"stargazerbot/pkg/logx"
)

type Config struct {
	Enabled bool `json:"enabled"`
	// Schedule is a standard 5-field cron expression, e.g. "0 9 * * *".
	Schedule string `json:"schedule"`
	// ChatID receives the digest. 0 logs the digest without sending it.
	ChatID int64 `json:"chat_id"`
}

type Service struct {
	cfg     Config
	store   storage.Store
	bus     eventbus.Bus
	adapter transport.Adapter
	log     logx.Logger

	mu        sync.Mutex
	lastSince time.Time
}

// New wires the reporter. store may be nil (record-keeping off); adapter
// may be nil (log-only digests).
func New(cfg Config, store storage.Store, bus eventbus.Bus, adapter transport.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:       cfg,
		store:     store,
		bus:       bus,
		adapter:   adapter,
		log:       log,
		lastSince: time.Now().UTC(),
	}
}

// Run consumes dispatch results until ctx is cancelled. It blocks.
func (s *Service) Run(ctx context.Context) error {
	ch, unsub := s.bus.Subscribe(64)
	defer unsub()

	var c *cron.Cron
	if s.cfg.Enabled && s.cfg.Schedule != "" {
		c = cron.New()
		if _, err := c.AddFunc(s.cfg.Schedule, func() { s.digest(ctx) }); err != nil {
			return fmt.Errorf("reporter: bad schedule %q: %w", s.cfg.Schedule, err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
		s.log.Info("reporter.started", logx.String("schedule", s.cfg.Schedule))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-ch:
			if ev.Type != "dispatch.finished" {
				continue
			}
			res, ok := ev.Data.(dispatch.DispatchEvent)
			if !ok {
				continue
			}
			s.record(ctx, ev.Time, res)
		}
	}
}

func (s *Service) record(ctx context.Context, at time.Time, res dispatch.DispatchEvent) {
	if s.store == nil {
		return
	}
	err := s.store.AppendDelivery(ctx, storage.DeliveryRecord{
		At:         at.UTC(),
		Topic:      res.Topic,
		Kind:       res.Kind,
		Recipients: res.Recipients,
		Delivered:  res.Delivered,
		Degraded:   res.Degraded,
		Dropped:    res.Dropped,
		TookMS:     res.Took.Milliseconds(),
	})
	if err != nil {
		s.log.Error("reporter.record_failed", logx.Err(err))
	}
}

func (s *Service) digest(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	since := s.lastSince
	s.lastSince = time.Now().UTC()
	s.mu.Unlock()

	sum, err := s.store.Summary(ctx, since)
	if err != nil {
		s.log.Error("reporter.summary_failed", logx.Err(err))
		return
	}
	s.log.Info("reporter.digest",
		logx.Int("events", sum.Events),
		logx.Int("recipients", sum.Recipients),
		logx.Int("delivered", sum.Delivered),
		logx.Int("degraded", sum.Degraded),
		logx.Int("dropped", sum.Dropped),
	)
	if s.adapter == nil || s.cfg.ChatID == 0 {
		return
	}
	text := formatDigest(sum)
	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := s.adapter.SendText(sendCtx, transport.ChatTarget{ChatID: s.cfg.ChatID}, text, nil); err != nil {
		s.log.Error("reporter.send_failed", logx.Err(err))
	}
}

func formatDigest(sum storage.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Delivery digest since %s\n", sum.Since.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "events: %d, recipients: %d\n", sum.Events, sum.Recipients)
	fmt.Fprintf(&b, "delivered: %d, degraded: %d, dropped: %d\n", sum.Delivered, sum.Degraded, sum.Dropped)
	if len(sum.Topics) > 0 {
		topics := make([]string, 0, len(sum.Topics))
		for t := range sum.Topics {
			topics = append(topics, t)
		}
		sort.Strings(topics)
		b.WriteString("by topic:")
		for _, t := range topics {
			fmt.Fprintf(&b, " %s=%d", t, sum.Topics[t])
		}
	}
	return b.String()
}
