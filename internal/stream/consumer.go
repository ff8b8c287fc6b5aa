// Package stream maintains the persistent upstream connection and runs the
// worker pool that feeds events to the dispatcher.
package stream

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"stargazerbot/internal/event"
	rtsup "stargazerbot/internal/runtime/supervisor"
	logx "stargazerbot/pkg/logx"
)

// Handler consumes one parsed event. Any error it returns is logged and the
// event is dropped; it never terminates a worker.
type Handler interface {
	Dispatch(ctx context.Context, ev event.Event) error
}

// Hooks carries metric callbacks injected by main.
type Hooks struct {
	OnMessage       func()
	OnParseError    func()
	OnDispatchError func()
	QueueDepth      func(n int)
}

type Config struct {
	URL            string
	Workers        int
	ReconnectDelay time.Duration
}

const (
	defaultWorkers        = 10
	defaultReconnectDelay = 5 * time.Second
	handshakeTimeout      = 10 * time.Second
)

type Service struct {
	cfg     Config
	handler Handler
	log     logx.Logger
	hooks   Hooks
	queue   *queue
}

func New(cfg Config, handler Handler, log logx.Logger, hooks Hooks) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		handler: handler,
		log:     log,
		hooks:   hooks,
		queue:   newQueue(),
	}
}

// Run starts the worker pool and the consumer loop and blocks until ctx is
// canceled. The consumer reconnects indefinitely: stream closure, DNS
// failure and connection-refused are all transient.
func (s *Service) Run(ctx context.Context) error {
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(s.log))

	for i := 0; i < s.cfg.Workers; i++ {
		idx := i
		// Workers only stop on shutdown; a panicking worker restarts.
		sup.GoRestart0("stream.worker", func(c context.Context) {
			s.worker(c, idx)
		}, rtsup.WithRestartBackoff(250*time.Millisecond, 5*time.Second))
	}
	s.log.Info("worker pool up", logx.Int("workers", s.cfg.Workers))

	sup.GoRestart("stream.consume", s.consume,
		rtsup.WithFixedRestartDelay(s.cfg.ReconnectDelay),
		rtsup.WithStopOnCleanExit(false),
	)

	<-ctx.Done()
	wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return sup.Stop(wctx)
}

// consume dials the stream endpoint and pushes every received message into
// the queue. It returns on any connection error; the surrounding restart
// loop applies the reconnect delay.
func (s *Service) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return err
	}
	s.log.Info("stream connected", logx.String("url", s.cfg.URL))

	// Unblock ReadMessage on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		s.queue.Push(raw)
		if s.hooks.OnMessage != nil {
			s.hooks.OnMessage()
		}
		if s.hooks.QueueDepth != nil {
			s.hooks.QueueDepth(s.queue.Len())
		}
	}
}

// worker pulls raw items, parses them and invokes the dispatcher. Per-event
// failures of any stage are logged and the event is dropped; the worker
// itself never exits before shutdown.
func (s *Service) worker(ctx context.Context, idx int) {
	log := s.log.With(logx.Int("worker", idx))
	log.Debug("worker up")

	for {
		raw, err := s.queue.Pop(ctx)
		if err != nil {
			return
		}
		if s.hooks.QueueDepth != nil {
			s.hooks.QueueDepth(s.queue.Len())
		}

		ev, err := event.Parse(raw)
		if err != nil {
			log.Warn("dropping unparseable stream message", logx.Err(err))
			if s.hooks.OnParseError != nil {
				s.hooks.OnParseError()
			}
			continue
		}

		if err := s.handler.Dispatch(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("dispatch failed, event dropped",
				logx.String("topic", ev.Topic),
				logx.String("kind", ev.Kind),
				logx.Err(err))
			if s.hooks.OnDispatchError != nil {
				s.hooks.OnDispatchError()
			}
		}
	}
}
