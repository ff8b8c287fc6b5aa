package storage

import (
	"context"
	"time"
)

// Config selects and tunes the delivery-stats driver.
type Config struct {
	// Driver is one of "", "none", "file", "sqlite". Empty disables
	// persistence.
	Driver string `json:"driver"`
	// Path is the database file ("sqlite") or JSONL file ("file").
	Path string `json:"path"`
	// BusyTimeout applies to the sqlite driver only.
	BusyTimeout time.Duration `json:"busy_timeout"`
}

// DeliveryRecord is one dispatched event's outcome tally.
type DeliveryRecord struct {
	At         time.Time `json:"at"`
	Topic      string    `json:"topic"`
	Kind       string    `json:"kind"`
	Recipients int       `json:"recipients"`
	Delivered  int       `json:"delivered"`
	Degraded   int       `json:"degraded"`
	Dropped    int       `json:"dropped"`
	TookMS     int64     `json:"took_ms"`
}

// Summary aggregates delivery records over a window.
type Summary struct {
	Since      time.Time
	Events     int
	Recipients int
	Delivered  int
	Degraded   int
	Dropped    int
	Topics     map[string]int
}

// Store persists delivery records.
type Store interface {
	AppendDelivery(ctx context.Context, rec DeliveryRecord) error
	Summary(ctx context.Context, since time.Time) (Summary, error)
	Close() error
}
