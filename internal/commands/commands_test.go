package commands

import (
	"context"
	"errors"
	"strings"
	"testing"

	"stargazerbot/internal/subscribers"
	"stargazerbot/internal/transport"
	tgadapter "stargazerbot/internal/transport/telegram/adapter"
	"stargazerbot/pkg/logx"
)

type sentMessage struct {
	chatID int64
	text   string
	opt    *transport.SendOptions
}

type fakeBot struct {
	handlers map[string]func(ctx context.Context, m tgadapter.IncomingMessage) error
	admins   map[int64]bool
	sent     []sentMessage
	sendErr  map[int64]error
}

func newFakeBot() *fakeBot {
	return &fakeBot{
		handlers: map[string]func(ctx context.Context, m tgadapter.IncomingMessage) error{},
		admins:   map[int64]bool{},
		sendErr:  map[int64]error{},
	}
}

func (b *fakeBot) HandleCommand(command string, fn func(ctx context.Context, m tgadapter.IncomingMessage) error) {
	b.handlers[command] = fn
}

func (b *fakeBot) IsChatAdmin(_ context.Context, _, userID int64) (bool, error) {
	return b.admins[userID], nil
}

func (b *fakeBot) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if err := b.sendErr[to.ChatID]; err != nil {
		return transport.MessageRef{}, err
	}
	b.sent = append(b.sent, sentMessage{chatID: to.ChatID, text: text, opt: opt})
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (b *fakeBot) invoke(t *testing.T, command string, m tgadapter.IncomingMessage) {
	t.Helper()
	fn, ok := b.handlers[command]
	if !ok {
		t.Fatalf("no handler for %s", command)
	}
	if err := fn(context.Background(), m); err != nil {
		t.Fatalf("%s: %v", command, err)
	}
}

type fakeBackend struct {
	registerErr error
	deleteErr   error
	token       string
	tokenErr    error
	deleted     []int64
}

func (f *fakeBackend) Register(context.Context, int64) error { return f.registerErr }

func (f *fakeBackend) Delete(_ context.Context, chatID int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, chatID)
	return nil
}

func (f *fakeBackend) SettingsToken(context.Context, int64) (string, error) {
	return f.token, f.tokenErr
}

func setup(backend *fakeBackend) (*fakeBot, *Service) {
	bot := newFakeBot()
	svc := New(Config{FrontendURL: "https://stargazer.example/"}, bot, backend, logx.Logger{})
	svc.Install()
	return bot, svc
}

func private(chatID int64, text string) tgadapter.IncomingMessage {
	return tgadapter.IncomingMessage{ChatID: chatID, FromID: chatID, Text: text, IsPrivate: true}
}

func TestHelp(t *testing.T) {
	bot, _ := setup(&fakeBackend{})
	bot.invoke(t, "/help", private(7, "/help"))
	if len(bot.sent) != 1 || !strings.Contains(bot.sent[0].text, "/register - Register account") {
		t.Fatalf("unexpected help reply: %+v", bot.sent)
	}
}

func TestRegister(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"created", nil, "Account created"},
		{"exists", subscribers.ErrUserExists, "Account already exists"},
		{"backend down", subscribers.ErrBackendUnavailable, "Registration failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bot, _ := setup(&fakeBackend{registerErr: tc.err})
			bot.invoke(t, "/register", private(7, "/register"))
			if len(bot.sent) != 1 || !strings.Contains(bot.sent[0].text, tc.want) {
				t.Fatalf("reply = %+v, want substring %q", bot.sent, tc.want)
			}
		})
	}
}

func TestDeleteRequiresForce(t *testing.T) {
	backend := &fakeBackend{}
	bot, _ := setup(backend)

	bot.invoke(t, "/delete_account", private(7, "/delete_account"))
	if len(backend.deleted) != 0 {
		t.Fatal("account deleted without confirmation")
	}
	if len(bot.sent) != 1 || !strings.Contains(bot.sent[0].text, "/delete_account !force") {
		t.Fatalf("expected confirmation prompt, got %+v", bot.sent)
	}

	bot.invoke(t, "/delete_account", private(7, "/delete_account !force"))
	if len(backend.deleted) != 1 || backend.deleted[0] != 7 {
		t.Fatalf("deleted = %v, want [7]", backend.deleted)
	}
	if !strings.Contains(bot.sent[len(bot.sent)-1].text, "Account deleted.") {
		t.Fatalf("unexpected reply: %+v", bot.sent)
	}
}

func TestSettingsSendsPrivateLink(t *testing.T) {
	bot, _ := setup(&fakeBackend{token: "tok en"})
	bot.invoke(t, "/settings", tgadapter.IncomingMessage{ChatID: -100, FromID: 42, Text: "/settings"})
	// -100 is a group chat: command allowed only because sender is admin
	bot.admins[42] = true
	bot.sent = nil
	bot.invoke(t, "/settings", tgadapter.IncomingMessage{ChatID: -100, FromID: 42, Text: "/settings"})

	if len(bot.sent) != 1 {
		t.Fatalf("sent = %+v, want exactly one message", bot.sent)
	}
	msg := bot.sent[0]
	if msg.chatID != 42 {
		t.Fatalf("link sent to chat %d, want sender 42", msg.chatID)
	}
	if msg.opt == nil || msg.opt.Button == nil {
		t.Fatal("missing settings button")
	}
	if got, want := msg.opt.Button.URL, "https://stargazer.example/auth?token=tok+en"; got != want {
		t.Fatalf("button url = %q, want %q", got, want)
	}
	if msg.opt.Button.Label != "Go to settings" {
		t.Fatalf("button label = %q", msg.opt.Button.Label)
	}
}

func TestSettingsUnknownUser(t *testing.T) {
	bot, _ := setup(&fakeBackend{tokenErr: subscribers.ErrUserNotFound})
	bot.invoke(t, "/settings", private(7, "/settings"))
	if len(bot.sent) != 1 || !strings.Contains(bot.sent[0].text, "register by command /register") {
		t.Fatalf("unexpected reply: %+v", bot.sent)
	}
}

func TestSettingsFallbackWhenPrivateSendFails(t *testing.T) {
	bot, _ := setup(&fakeBackend{token: "tok"})
	bot.admins[42] = true
	bot.sendErr[42] = &transport.SendError{Kind: transport.FailPermanent, Err: errors.New("blocked")}

	bot.invoke(t, "/settings", tgadapter.IncomingMessage{ChatID: -100, FromID: 42, Text: "/settings"})
	if len(bot.sent) != 1 || bot.sent[0].chatID != -100 {
		t.Fatalf("expected fallback reply in origin chat, got %+v", bot.sent)
	}
	if !strings.Contains(bot.sent[0].text, "say something to me privately") {
		t.Fatalf("unexpected fallback text: %q", bot.sent[0].text)
	}
}

func TestGroupCommandsRequireAdmin(t *testing.T) {
	backend := &fakeBackend{}
	bot, _ := setup(backend)

	bot.invoke(t, "/delete_account", tgadapter.IncomingMessage{ChatID: -100, FromID: 9, Text: "/delete_account !force"})
	if len(backend.deleted) != 0 || len(bot.sent) != 0 {
		t.Fatal("non-admin group command was not ignored")
	}
}
