package telegram_bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-escrow/internal/moderation"
)

type fakeTelegram struct {
	mu   sync.Mutex
	sent []string
	chat []string
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/botTOKEN/getMe":
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"alerts","username":"alerts_bot"}}`))
	case "/botTOKEN/sendMessage":
		_ = r.ParseForm()
		f.mu.Lock()
		f.sent = append(f.sent, r.PostForm.Get("text"))
		f.chat = append(f.chat, r.PostForm.Get("chat_id"))
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":10,"date":0,"chat":{"id":42,"type":"group"}}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
	}
}

func TestNotifyFlagged(t *testing.T) {
	fake := &fakeTelegram{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	n, err := NewNotifier(Config{BotToken: "TOKEN", ChatID: 42, APIEndpoint: srv.URL + "/bot%s/%s"}, zap.NewNop())
	require.NoError(t, err)

	err = n.NotifyFlagged(context.Background(), moderation.FlagAlert{MessageID: "m1", Reason: "threat", Category: "violence"})
	require.NoError(t, err)

	require.Len(t, fake.sent, 1)
	assert.Equal(t, "42", fake.chat[0])
	assert.Contains(t, fake.sent[0], "m1")
	assert.Contains(t, fake.sent[0], "violence")
	assert.Contains(t, fake.sent[0], "threat")
}

func TestNewNotifierRequiresToken(t *testing.T) {
	_, err := NewNotifier(Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestFormatAlertOmitsEmptyFields(t *testing.T) {
	text := FormatAlert(moderation.FlagAlert{MessageID: "m1"})
	assert.Contains(t, text, "Message ID: m1")
	assert.NotContains(t, text, "Category")
	assert.NotContains(t, text, "Reason")
}
