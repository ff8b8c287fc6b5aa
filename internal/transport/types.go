package transport

import "context"

// ModeMarkdownV2 is the markup mode the renderer escapes for.
const ModeMarkdownV2 = "MarkdownV2"

// ChatTarget identifies one delivery destination.
type ChatTarget struct {
	ChatID int64
}

// Button is an optional call-to-action attached to a message. It is passed
// to the transport as structured markup, never embedded in the text body.
type Button struct {
	Label string
	URL   string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Button         *Button
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Adapter is the outbound messaging surface the relay core needs.
// Implementations must be safe for concurrent use by all workers.
type Adapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, imageURL, caption string, opt *SendOptions) (MessageRef, error)
	SendMediaGroup(ctx context.Context, to ChatTarget, imageURLs []string) error
}
