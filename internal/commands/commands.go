// Package commands implements the bot's account-management slash commands.
//
// In private chats anyone can run them; in groups they are restricted to
// the chat's administrators. The settings link is always delivered to the
// sender privately, even when the command came from a group.
package commands

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"stargazerbot/internal/subscribers"
	"stargazerbot/internal/transport"
	tgadapter "stargazerbot/internal/transport/telegram/adapter"
	"stargazerbot/pkg/logx"
)

const helpText = "Stargazer Telegram Bot\n" +
	"/register - Register account\n" +
	"/settings - Set preference\n" +
	"/delete_account - Delete account\n" +
	"Only group owner/admins can send commands to me if I'm in a group\n" +
	"In this case settings link will be sent to the sender privately."

// Bot is the slice of the telegram adapter the command layer uses.
type Bot interface {
	HandleCommand(command string, fn func(ctx context.Context, m tgadapter.IncomingMessage) error)
	IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error)
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

// Backend is the slice of the subscriber client the command layer uses.
type Backend interface {
	Register(ctx context.Context, chatID int64) error
	Delete(ctx context.Context, chatID int64) error
	SettingsToken(ctx context.Context, chatID int64) (string, error)
}

type Config struct {
	// FrontendURL is the preference page base, e.g. "https://stargazer.example".
	FrontendURL string `json:"frontend_url"`
}

type Service struct {
	cfg     Config
	bot     Bot
	backend Backend
	log     logx.Logger
}

func New(cfg Config, bot Bot, backend Backend, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, bot: bot, backend: backend, log: log}
}

// Install registers all command handlers. Must run before the adapter starts.
func (s *Service) Install() {
	s.bot.HandleCommand("/start", s.handleHelp)
	s.bot.HandleCommand("/help", s.handleHelp)
	s.bot.HandleCommand("/register", s.privileged(s.handleRegister))
	s.bot.HandleCommand("/delete_account", s.privileged(s.handleDelete))
	s.bot.HandleCommand("/settings", s.privileged(s.handleSettings))
}

// privileged drops group messages from non-admins. Private chats pass.
func (s *Service) privileged(fn func(ctx context.Context, m tgadapter.IncomingMessage) error) func(ctx context.Context, m tgadapter.IncomingMessage) error {
	return func(ctx context.Context, m tgadapter.IncomingMessage) error {
		if !m.IsPrivate {
			ok, err := s.bot.IsChatAdmin(ctx, m.ChatID, m.FromID)
			if err != nil {
				return fmt.Errorf("admin check: %w", err)
			}
			if !ok {
				return nil
			}
		}
		return fn(ctx, m)
	}
}

func (s *Service) handleHelp(ctx context.Context, m tgadapter.IncomingMessage) error {
	return s.reply(ctx, m.ChatID, helpText)
}

func (s *Service) handleRegister(ctx context.Context, m tgadapter.IncomingMessage) error {
	err := s.backend.Register(ctx, m.ChatID)
	switch {
	case err == nil:
		return s.reply(ctx, m.ChatID, "Account created. Please use command /settings to set your preference.")
	case errors.Is(err, subscribers.ErrUserExists):
		return s.reply(ctx, m.ChatID, "Account already exists. Please use command /settings to set your preference.")
	default:
		s.log.Error("register failed", logx.Int64("chat", m.ChatID), logx.Err(err))
		return s.reply(ctx, m.ChatID, "Registration failed. Please try again later.")
	}
}

func (s *Service) handleDelete(ctx context.Context, m tgadapter.IncomingMessage) error {
	args := strings.Fields(m.Text)
	if len(args) != 2 || args[1] != "!force" {
		return s.reply(ctx, m.ChatID,
			"You are going to delete your account.\n"+
				"Your account and data will be removed from the database immediately!\n"+
				"Please confirm your request by sending /delete_account !force")
	}
	if err := s.backend.Delete(ctx, m.ChatID); err != nil {
		s.log.Error("delete failed", logx.Int64("chat", m.ChatID), logx.Err(err))
		return s.reply(ctx, m.ChatID, "Account deletion failed. Please try again later.")
	}
	return s.reply(ctx, m.ChatID, "Account deleted.")
}

func (s *Service) handleSettings(ctx context.Context, m tgadapter.IncomingMessage) error {
	token, err := s.backend.SettingsToken(ctx, m.ChatID)
	if err != nil {
		if errors.Is(err, subscribers.ErrUserNotFound) {
			return s.reply(ctx, m.ChatID, "User doesn't exist. Please first register by command /register.")
		}
		s.log.Error("settings token failed", logx.Int64("chat", m.ChatID), logx.Err(err))
		return s.reply(ctx, m.ChatID, "Settings are unavailable right now. Please try again later.")
	}

	// The link always goes to the sender privately; the account it manages
	// stays bound to the originating chat.
	_, err = s.bot.SendText(ctx, transport.ChatTarget{ChatID: m.FromID},
		"Please click the link below to set your preference.\n"+
			"The link will expire in 10 minutes.",
		&transport.SendOptions{
			DisablePreview: true,
			Button:         &transport.Button{Label: "Go to settings", URL: s.settingsURL(token)},
		})
	if err != nil {
		if serr, ok := transport.AsSendError(err); ok && serr.Kind == transport.FailPermanent {
			return s.reply(ctx, m.ChatID,
				"Oops! I can't send you the link because I don't know you.\n"+
					"Please say something to me privately and try again!")
		}
		return fmt.Errorf("send settings link: %w", err)
	}
	return nil
}

func (s *Service) settingsURL(token string) string {
	return strings.TrimRight(s.cfg.FrontendURL, "/") + "/auth?token=" + url.QueryEscape(token)
}

func (s *Service) reply(ctx context.Context, chatID int64, text string) error {
	_, err := s.bot.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, nil)
	return err
}
