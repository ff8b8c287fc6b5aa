package storage

import (
	"fmt"
	"strings"

	"stargazerbot/pkg/logx"
)

// Open builds a Store from cfg. A disabled driver returns (nil, nil);
// callers must treat a nil Store as "persistence off".
func Open(cfg Config, log logx.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none", "off":
		return nil, nil
	case "file", "jsonl":
		if cfg.Path == "" {
			return nil, fmt.Errorf("storage: file driver requires path")
		}
		return openFile(cfg.Path, log)
	case "sqlite", "sqlite3":
		if cfg.Path == "" {
			return nil, fmt.Errorf("storage: sqlite driver requires path")
		}
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}
