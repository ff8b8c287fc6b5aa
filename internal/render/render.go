// Package render turns a raw event into a channel-ready message.
package render

import (
	"errors"
	"strings"

	"stargazerbot/internal/event"
	"stargazerbot/internal/markup"
	"stargazerbot/internal/transport"
)

// ErrMalformedEvent is returned when an event lacks its identifying fields.
var ErrMalformedEvent = errors.New("malformed event: missing topic or kind")

// kindTags maps event kinds to their display tags. Unknown kinds pass
// through unchanged so new upstream kinds render without a code change.
var kindTags = map[string]string{
	"t_tweet":       "Twitter推文",
	"t_rt":          "Twitter转推",
	"bili_plain_dyn": "Bilibili动态",
	"bili_rt_dyn":   "Bilibili转发",
	"bili_img_dyn":  "Bilibili图片动态",
	"bili_video":    "Bilibili视频",
	"bili_live":     "Bilibili直播",
	"ytb_video":     "Youtube视频",
	"ytb_reminder":  "Youtube直播提醒",
	"ytb_live":      "Youtube直播",
	"ytb_sched":     "Youtube新直播计划",
}

const linkButtonLabel = "链接"

// Message is the rendered, ephemeral delivery payload: an escaped
// MarkdownV2 body, the image URLs carried through unmodified, and an
// optional structured call-to-action button.
type Message struct {
	Body   string
	Images []string
	Button *transport.Button
}

// Build renders one event. The body is fully escaped; the button label and
// target are structured markup and deliberately not escaped.
func Build(ev event.Event) (Message, error) {
	if ev.Topic == "" || ev.Kind == "" {
		return Message{}, ErrMalformedEvent
	}

	tag := kindTags[ev.Kind]
	if tag == "" {
		tag = ev.Kind
	}

	var lines []string
	if ev.Data.Title != "" {
		lines = append(lines, ev.Data.Title)
	}
	if ev.Data.Text != "" {
		lines = append(lines, ev.Data.Text)
	}
	if ev.Data.ScheduledStartTime != "" {
		lines = append(lines, "预定时间："+ev.Data.ScheduledStartTime)
	}
	if ev.Data.ActualStartTime != "" {
		lines = append(lines, "上播时间："+ev.Data.ActualStartTime)
	}

	body := "#" + ev.Topic + " #" + tag + "\n" + strings.Join(lines, "\n") + "\n"

	msg := Message{
		Body:   markup.EscapeMarkdownV2(body),
		Images: ev.Data.Images,
	}
	if ev.Data.Link != "" {
		msg.Button = &transport.Button{Label: linkButtonLabel, URL: ev.Data.Link}
	}
	return msg, nil
}
