package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordedCall struct {
	method string
	body   map[string]any
}

func newTestAPI(t *testing.T, handler func(method string, body map[string]any) string) (*API, *[]recordedCall) {
	t.Helper()
	var mu sync.Mutex
	calls := &[]recordedCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		method := parts[len(parts)-1]
		body := map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		*calls = append(*calls, recordedCall{method: method, body: body})
		mu.Unlock()
		_, _ = w.Write([]byte(handler(method, body)))
	}))
	t.Cleanup(srv.Close)
	return NewAPI(srv.Client(), srv.URL, "TOKEN"), calls
}

func TestGetUpdatesAdvancesOffset(t *testing.T) {
	api, _ := newTestAPI(t, func(method string, body map[string]any) string {
		return `{"ok":true,"result":[
			{"update_id":10,"message":{"message_id":1,"chat":{"id":42,"type":"private"},"from":{"id":42,"first_name":"A"},"text":"hi"}},
			{"update_id":11,"callback_query":{"id":"cb1","from":{"id":100},"data":"admin_stats"}}
		]}`
	})

	updates, next, err := api.GetUpdates(context.Background(), 0, time.Second)
	if err != nil {
		t.Fatalf("GetUpdates() error = %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(updates))
	}
	if next != 12 {
		t.Fatalf("next offset = %d, want 12", next)
	}
	if updates[1].CallbackQuery == nil || updates[1].CallbackQuery.Data != "admin_stats" {
		t.Fatalf("callback query not decoded: %+v", updates[1])
	}
}

func TestSendMessageFallsBackToPlainText(t *testing.T) {
	api, calls := newTestAPI(t, func(method string, body map[string]any) string {
		if mode, _ := body["parse_mode"].(string); mode != "" {
			return `{"ok":false}`
		}
		return `{"ok":true}`
	})

	if err := api.SendMessage(context.Background(), 42, "hello *broken markdown"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if len(*calls) != 3 {
		t.Fatalf("send attempts = %d, want 3 (MarkdownV2, Markdown, plain)", len(*calls))
	}
}

func TestSendMessageChunkedSplitsLongText(t *testing.T) {
	api, calls := newTestAPI(t, func(method string, body map[string]any) string {
		return `{"ok":true}`
	})

	long := strings.Repeat("a", maxChunkLen+100)
	if err := api.SendMessageChunked(context.Background(), 42, long); err != nil {
		t.Fatalf("SendMessageChunked() error = %v", err)
	}
	if len(*calls) != 2 {
		t.Fatalf("chunks sent = %d, want 2", len(*calls))
	}
	first, _ := (*calls)[0].body["text"].(string)
	if len(first) != maxChunkLen {
		t.Fatalf("first chunk len = %d, want %d", len(first), maxChunkLen)
	}
}

func TestSendMessageKeyboardCarriesButtons(t *testing.T) {
	api, calls := newTestAPI(t, func(method string, body map[string]any) string {
		return `{"ok":true}`
	})

	kb := Keyboard{Row("Stats", "admin_stats"), Row("Logout", "admin_logout")}
	if err := api.SendMessageKeyboard(context.Background(), 7, "menu", kb); err != nil {
		t.Fatalf("SendMessageKeyboard() error = %v", err)
	}
	markup, ok := (*calls)[0].body["reply_markup"].(map[string]any)
	if !ok {
		t.Fatalf("reply_markup missing: %+v", (*calls)[0].body)
	}
	rows, _ := markup["inline_keyboard"].([]any)
	if len(rows) != 2 {
		t.Fatalf("keyboard rows = %d, want 2", len(rows))
	}
}

func TestEscapeMarkdownUnderscores(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"identifier", "top_p is set", "top\\_p is set"},
		{"inline_code_untouched", "use `top_p` here_", "use `top_p` here\\_"},
		{"code_block_untouched", "```\nmy_var = 1\n```", "```\nmy_var = 1\n```"},
		{"already_escaped", `a\_b`, `a\_b`},
		{"no_underscores", "plain text", "plain text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeMarkdownUnderscores(tt.in); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		in   *User
		want string
	}{
		{&User{FirstName: "Ada", LastName: "L"}, "Ada L"},
		{&User{FirstName: "Ada"}, "Ada"},
		{&User{Username: "ada"}, "@ada"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.in); got != tt.want {
			t.Fatalf("DisplayName(%+v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
