package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/watchtower/internal/domain"
)

func TestTelegramDispatcher_Send(t *testing.T) {
	var gotPath string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	d, err := NewTelegramDispatcher(srv.URL, "token", "42")
	require.NoError(t, err)

	err = d.Send(context.Background(), domain.Message{Text: "*hi*", ParseMode: domain.ParseModeMarkdown})
	require.NoError(t, err)
	assert.Equal(t, "/bottoken/sendMessage", gotPath)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*hi*", got["text"])
	assert.Equal(t, "Markdown", got["parse_mode"])

	err = d.Send(context.Background(), domain.Message{Text: "chart", PhotoURL: "https://img/1.png"})
	require.NoError(t, err)
	assert.Equal(t, "/bottoken/sendPhoto", gotPath)
	assert.Equal(t, "chart", got["caption"])
	assert.Equal(t, "https://img/1.png", got["photo"])
}

func TestTelegramDispatcher_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"chat not found"}`))
	}))
	defer srv.Close()

	d, err := NewTelegramDispatcher(srv.URL, "token", "42")
	require.NoError(t, err)

	err = d.Send(context.Background(), domain.Message{Text: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstream))
	assert.Contains(t, err.Error(), "chat not found")
}

func TestNewTelegramDispatcher_RequiresCredentials(t *testing.T) {
	_, err := NewTelegramDispatcher("", "", "42")
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}
