package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhaopengme/mcprelay/pkg/bus"
	"github.com/zhaopengme/mcprelay/pkg/config"
)

const testBotToken = "123456789:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

type apiCall struct {
	method string
	body   map[string]any
}

// fakeBotAPI answers every Bot API method with success and records the calls.
type fakeBotAPI struct {
	mu    sync.Mutex
	calls []apiCall
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := path.Base(r.URL.Path)
	body := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{method: method, body: body})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if method == "sendMessage" {
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":99,"type":"private"}}}`))
		return
	}
	_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
}

func (f *fakeBotAPI) callsTo(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

// newRoutedChannel wires a channel to a fake Bot API and starts its router on
// a local update channel.
func newRoutedChannel(t *testing.T, allowFrom []string) (*TelegramChannel, *fakeBotAPI, *bus.MessageBus, chan telego.Update) {
	t.Helper()
	api := &fakeBotAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	bot, err := telego.NewBot(testBotToken, telego.WithAPIServer(srv.URL), telego.WithDiscardLogger())
	require.NoError(t, err)

	mb := bus.NewMessageBus(8)
	c := &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", mb, allowFrom),
		bot:         bot,
		mode:        config.ModeWebhook,
		done:        make(chan struct{}),
	}
	c.setRunning(true)

	updates := make(chan telego.Update, 8)
	bh, err := c.newRouter(updates)
	require.NoError(t, err)
	go func() { _ = bh.Start() }()
	t.Cleanup(func() { _ = bh.Stop() })

	return c, api, mb, updates
}

func textUpdate(id int, fromID int64, username, text string) telego.Update {
	return telego.Update{
		UpdateID: id,
		Message: &telego.Message{
			MessageID: id,
			Chat:      telego.Chat{ID: 99, Type: telego.ChatTypePrivate},
			From:      &telego.User{ID: fromID, FirstName: "A", Username: username},
			Text:      text,
		},
	}
}

func expectInbound(t *testing.T, mb *bus.MessageBus) bus.InboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := mb.ConsumeInbound(ctx)
	require.True(t, ok, "expected an inbound message")
	return msg
}

func expectNoInbound(t *testing.T, mb *bus.MessageBus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	msg, ok := mb.ConsumeInbound(ctx)
	assert.False(t, ok, "unexpected inbound message %q", msg.Content)
}

func TestRouterCommands(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"/start", "/start"},
		{"/start@MCPBot", "/start"},
		{"/help", "/help"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, api, mb, updates := newRoutedChannel(t, nil)
			updates <- textUpdate(1, 7, "alice", tt.text)

			msg := expectInbound(t, mb)
			assert.Equal(t, tt.want, msg.Content)
			assert.Equal(t, "true", msg.Metadata[bus.MetadataCommand])
			assert.Equal(t, "99", msg.ChatID)
			assert.Equal(t, "7", msg.SenderID)
			assert.Empty(t, api.callsTo("sendChatAction"))
		})
	}
}

func TestRouterDropsUnknownCommand(t *testing.T) {
	_, _, mb, updates := newRoutedChannel(t, nil)
	updates <- textUpdate(1, 7, "", "/foo")
	expectNoInbound(t, mb)
}

func TestRouterRelaysPlainText(t *testing.T) {
	tests := []string{"hello", "/ hello", "/path/to/file"}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			_, api, mb, updates := newRoutedChannel(t, nil)
			updates <- textUpdate(1, 7, "alice", text)

			msg := expectInbound(t, mb)
			assert.Equal(t, text, msg.Content)
			assert.Empty(t, msg.Metadata[bus.MetadataCommand])
			assert.Equal(t, "alice", msg.Metadata["username"])
			assert.Eventually(t, func() bool { return len(api.callsTo("sendChatAction")) == 1 }, time.Second, 5*time.Millisecond)
		})
	}
}

func TestRouterAllowList(t *testing.T) {
	_, _, mb, updates := newRoutedChannel(t, []string{"@alice"})

	updates <- textUpdate(1, 8, "mallory", "hi")
	expectNoInbound(t, mb)

	updates <- textUpdate(2, 7, "alice", "hi")
	msg := expectInbound(t, mb)
	assert.Equal(t, "7", msg.SenderID)
}

func TestRouterForumTopicChatID(t *testing.T) {
	_, _, mb, updates := newRoutedChannel(t, nil)
	update := textUpdate(1, 7, "", "hello")
	update.Message.MessageThreadID = 5
	updates <- update

	msg := expectInbound(t, mb)
	assert.Equal(t, "99:5", msg.ChatID)
}

func TestSendSplitsLongMessages(t *testing.T) {
	c, api, _, _ := newRoutedChannel(t, nil)

	text := strings.Repeat("a", maxMessageRunes) + strings.Repeat("b", 10)
	require.NoError(t, c.Send(context.Background(), bus.OutboundMessage{Channel: "telegram", ChatID: "99:5", Content: text}))

	calls := api.callsTo("sendMessage")
	require.Len(t, calls, 2)
	assert.Equal(t, strings.Repeat("a", maxMessageRunes), calls[0].body["text"])
	assert.Equal(t, strings.Repeat("b", 10), calls[1].body["text"])
	for _, call := range calls {
		assert.EqualValues(t, 99, call.body["chat_id"])
		assert.EqualValues(t, 5, call.body["message_thread_id"])
	}
}
