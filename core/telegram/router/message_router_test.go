package router

import (
	"testing"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/vinylbot/core/telegram"
	"github.com/m3rciful/vinylbot/core/telegram/commands"
)

type stubConversation struct {
	active bool
	texts  []string
}

func (s *stubConversation) InProgress(int64) bool { return s.active }

func (s *stubConversation) HandleText(c tele.Context) error {
	s.texts = append(s.texts, c.Text())
	return nil
}

// textContext fakes the parts of tele.Context the text route touches.
type textContext struct {
	tele.Context
	text   string
	values map[string]interface{}
}

func newTextContext(text string) *textContext {
	return &textContext{text: text, values: make(map[string]interface{})}
}

func (c *textContext) Text() string       { return c.text }
func (c *textContext) Sender() *tele.User { return &tele.User{ID: 42} }
func (c *textContext) Chat() *tele.Chat   { return &tele.Chat{ID: 42} }

func (c *textContext) Update() tele.Update {
	return tele.Update{ID: 1, Message: &tele.Message{Text: c.text}}
}

func (c *textContext) Get(key string) interface{}    { return c.values[key] }
func (c *textContext) Set(key string, v interface{}) { c.values[key] = v }

func registryWith(t *testing.T, names ...string) (*tg.Registry, map[string]*int) {
	t.Helper()
	reg := tg.NewRegistry()
	calls := make(map[string]*int, len(names))
	for _, name := range names {
		n := new(int)
		calls[name] = n
		reg.RegisterCommand(name, commands.Command{
			Handler:     func(tele.Context) error { *n++; return nil },
			Description: "test command",
		})
	}
	return reg, calls
}

func TestTextRouteCommandBeatsConversation(t *testing.T) {
	reg, calls := registryWith(t, "/cancel")
	conv := &stubConversation{active: true}
	route := TextRoute(conv, reg, TextOptions{})

	if err := route.Handler(newTextContext("/cancel")); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if *calls["/cancel"] != 1 {
		t.Fatalf("/cancel handler calls = %d, want 1", *calls["/cancel"])
	}
	if len(conv.texts) != 0 {
		t.Fatalf("conversation received %q, want nothing", conv.texts)
	}
}

func TestTextRoutePlainTextGoesToConversation(t *testing.T) {
	reg, calls := registryWith(t, "/start")
	conv := &stubConversation{active: true}
	route := TextRoute(conv, reg, TextOptions{})

	if err := route.Handler(newTextContext("Jane Doe")); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(conv.texts) != 1 || conv.texts[0] != "Jane Doe" {
		t.Fatalf("conversation texts = %q", conv.texts)
	}
	if *calls["/start"] != 0 {
		t.Fatal("/start handler ran for plain text")
	}
}

func TestTextRouteUnknownCommandFallsToConversation(t *testing.T) {
	reg, _ := registryWith(t, "/start")
	conv := &stubConversation{active: true}
	route := TextRoute(conv, reg, TextOptions{})

	if err := route.Handler(newTextContext("/unknown")); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(conv.texts) != 1 || conv.texts[0] != "/unknown" {
		t.Fatalf("conversation texts = %q", conv.texts)
	}
}

func TestTextRouteCommandWhenIdle(t *testing.T) {
	reg, calls := registryWith(t, "/start")
	conv := &stubConversation{}
	route := TextRoute(conv, reg, TextOptions{})

	if err := route.Handler(newTextContext("/start")); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if *calls["/start"] != 1 {
		t.Fatalf("/start handler calls = %d, want 1", *calls["/start"])
	}
	if len(conv.texts) != 0 {
		t.Fatalf("conversation received %q, want nothing", conv.texts)
	}
}

func TestTextRouteUnknownTextFallback(t *testing.T) {
	reg, _ := registryWith(t, "/start")
	fallbackCalls := 0
	route := TextRoute(&stubConversation{}, reg, TextOptions{
		UnknownText: func(tele.Context) error { fallbackCalls++; return nil },
	})

	if err := route.Handler(newTextContext("hello there")); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if fallbackCalls != 1 {
		t.Fatalf("fallback calls = %d, want 1", fallbackCalls)
	}
}
