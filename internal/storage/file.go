package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"stargazerbot/pkg/logx"
)

// fileStore appends one JSON line per delivery record. Summaries scan the
// whole file; fine for the volumes a single bot produces.
type fileStore struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
	log  logx.Logger
}

func openFile(path string, log logx.Logger) (*fileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return &fileStore{
		path: path,
		f:    f,
		w:    bufio.NewWriter(f),
		log:  log,
	}, nil
}

func (s *fileStore) AppendDelivery(_ context.Context, rec DeliveryRecord) error {
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("storage: marshal record: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return fmt.Errorf("storage: store closed")
	}
	if _, err := s.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("storage: append: %w", err)
	}
	return s.w.Flush()
}

func (s *fileStore) Summary(ctx context.Context, since time.Time) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{Since: since, Topics: map[string]int{}}
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return sum, nil
		}
		return sum, fmt.Errorf("storage: open %s: %w", s.path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		var rec DeliveryRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			s.log.Warn("storage.file.bad_line", logx.Err(err))
			continue
		}
		if rec.At.Before(since) {
			continue
		}
		sum.Events++
		sum.Recipients += rec.Recipients
		sum.Delivered += rec.Delivered
		sum.Degraded += rec.Degraded
		sum.Dropped += rec.Dropped
		sum.Topics[rec.Topic]++
	}
	if err := sc.Err(); err != nil {
		return sum, fmt.Errorf("storage: scan %s: %w", s.path, err)
	}
	return sum, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	flushErr := s.w.Flush()
	closeErr := s.f.Close()
	s.f = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
