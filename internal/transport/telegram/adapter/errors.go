package adapter

import (
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "stargazerbot/internal/transport"
)

// classify maps telebot's error surface onto the closed transport.SendError
// taxonomy. The delivery policy never sees a raw telebot error.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &kit.SendError{
			Kind:       kit.FailFlood,
			RetryAfter: time.Duration(flood.RetryAfter) * time.Second,
			Err:        err,
		}
	}

	switch {
	case errors.Is(err, tele.ErrBlockedByUser),
		errors.Is(err, tele.ErrNotStartedByUser),
		errors.Is(err, tele.ErrUserIsDeactivated),
		errors.Is(err, tele.ErrKickedFromGroup),
		errors.Is(err, tele.ErrKickedFromSuperGroup),
		errors.Is(err, tele.ErrKickedFromChannel),
		errors.Is(err, tele.ErrChatNotFound):
		return &kit.SendError{Kind: kit.FailPermanent, Err: err}

	case errors.Is(err, tele.ErrWrongFileID),
		errors.Is(err, tele.ErrWrongFileIDSymbol),
		errors.Is(err, tele.ErrWrongFileIDLength),
		errors.Is(err, tele.ErrWrongFileIDCharacter),
		errors.Is(err, tele.ErrWrongFileIDPadding):
		return &kit.SendError{Kind: kit.FailBadReference, Err: err}
	}

	// Telegram reports unreachable image URLs with a handful of
	// descriptions; match loosely on the ones seen in the wild.
	desc := strings.ToLower(err.Error())
	switch {
	case strings.Contains(desc, "failed to get http url content"),
		strings.Contains(desc, "wrong http url"),
		errors.Is(err, tele.ErrWrongURL):
		return &kit.SendError{Kind: kit.FailFetch, Err: err}
	}

	return &kit.SendError{Kind: kit.FailBadRequest, Err: err}
}
