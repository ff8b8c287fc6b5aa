// Package event defines the life-cycle event record received from the
// upstream stream.
package event

import "encoding/json"

// Event is one immutable record from the stream. Field names follow the
// upstream wire format: the creator identifier arrives as "vtuber" and the
// event kind as "type".
type Event struct {
	Topic string `json:"vtuber"`
	Kind  string `json:"type"`
	Data  Data   `json:"data"`
}

// Data carries the kind-specific payload. All fields are optional; unknown
// fields from newer event kinds are ignored.
type Data struct {
	Title              string   `json:"title,omitempty"`
	Text               string   `json:"text,omitempty"`
	ScheduledStartTime string   `json:"scheduled_start_time,omitempty"`
	ActualStartTime    string   `json:"actual_start_time,omitempty"`
	Link               string   `json:"link,omitempty"`
	Images             []string `json:"images,omitempty"`
}

// Parse decodes one raw stream message.
func Parse(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}
