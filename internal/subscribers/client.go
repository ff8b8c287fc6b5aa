// Package subscribers talks to the backend's subscriber-storage and
// token-issuance endpoints.
package subscribers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stargazerbot/internal/transport"
	logx "stargazerbot/pkg/logx"
)

// channelPrefix identifies subscriber entries belonging to this transport.
// The backend stores every channel's subscribers in one list, each as
// "<prefix>+<channel-specific-id>".
const channelPrefix = "tg"

// ErrBackendUnavailable wraps any transport-level failure of a backend
// query. It aborts dispatch for the whole event.
var ErrBackendUnavailable = errors.New("subscriber backend unavailable")

// ErrUserExists and ErrUserNotFound surface account-state conflicts to the
// command layer.
var (
	ErrUserExists   = errors.New("account already exists")
	ErrUserNotFound = errors.New("account not found")
)

type Config struct {
	BaseURL string
	Token   string
}

// Client is a stateless backend client, safe for concurrent use by all
// workers.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
	log   logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("backend base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.New("backend base url must be absolute")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("backend m2m token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base:  base,
		token: cfg.Token,
		http:  &http.Client{Timeout: 15 * time.Second},
		log:   log,
	}, nil
}

// Resolve returns the validated recipient set subscribed to topic for the
// given event kind. Entries with a foreign channel prefix or a malformed
// shape are dropped silently; an empty result is valid.
func (c *Client) Resolve(ctx context.Context, topic, kind string) ([]transport.ChatTarget, error) {
	u := c.base.JoinPath("m2m", "subs", topic)
	q := u.Query()
	q.Set("type", kind)
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	var raw []string
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decoding subscriber list: %v", ErrBackendUnavailable, err)
	}

	targets := make([]transport.ChatTarget, 0, len(raw))
	for _, s := range raw {
		id, ok := parseSubscriber(s)
		if !ok {
			continue
		}
		targets = append(targets, transport.ChatTarget{ChatID: id})
	}
	return targets, nil
}

// parseSubscriber splits "<prefix>+<id>" and keeps only well-formed entries
// for this channel.
func parseSubscriber(s string) (int64, bool) {
	prefix, rest, found := strings.Cut(s, "+")
	if !found || prefix != channelPrefix {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Register creates a subscriber account for the given chat.
// Returns ErrUserExists when the account is already registered.
func (c *Client) Register(ctx context.Context, chatID int64) error {
	u := c.base.JoinPath("users")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(),
		strings.NewReader(subscriberID(chatID)))
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil
	case http.StatusConflict:
		return ErrUserExists
	default:
		return unexpectedStatus(resp)
	}
}

// Delete removes the subscriber account and all its data.
func (c *Client) Delete(ctx context.Context, chatID int64) error {
	u := c.base.JoinPath("users", subscriberID(chatID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrUserNotFound
	default:
		return unexpectedStatus(resp)
	}
}

// SettingsToken issues a short-lived preference-page token for the chat.
func (c *Client) SettingsToken(ctx context.Context, chatID int64) (string, error) {
	u := c.base.JoinPath("m2m", "get_token", subscriberID(chatID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		b, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	case http.StatusNotFound:
		return "", ErrUserNotFound
	default:
		return "", unexpectedStatus(resp)
	}
}

func subscriberID(chatID int64) string {
	return channelPrefix + "+" + strconv.FormatInt(chatID, 10)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, unexpectedStatus(resp)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.http.Do(req)
}

func unexpectedStatus(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}
