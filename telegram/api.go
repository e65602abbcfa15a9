// Package telegram is a minimal Bot API client covering exactly what the bot
// uses: long-poll updates, text sends with inline keyboards, callback-query
// acknowledgement, and chat actions.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

type API struct {
	http    *http.Client
	baseURL string
	token   string
}

func NewAPI(httpClient *http.Client, baseURL, token string) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.telegram.org"
	}
	return &API{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

type getUpdatesResponse struct {
	OK     bool     `json:"ok"`
	Result []Update `json:"result"`
}

type getMeResponse struct {
	OK     bool `json:"ok"`
	Result User `json:"result"`
}

type sendMessageRequest struct {
	ChatID                int64                 `json:"chat_id"`
	Text                  string                `json:"text"`
	ParseMode             string                `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool                  `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup           *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

type editMessageTextRequest struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	Text        string                `json:"text"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

type answerCallbackQueryRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
}

type sendChatActionRequest struct {
	ChatID int64  `json:"chat_id"`
	Action string `json:"action"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

func (api *API) GetMe(ctx context.Context) (*User, error) {
	raw, err := api.call(ctx, "getMe", nil)
	if err != nil {
		return nil, err
	}
	var out getMeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("telegram getMe: ok=false")
	}
	return &out.Result, nil
}

// GetUpdates long-polls for messages and callback queries. It returns the
// next offset alongside the updates; the caller feeds it back in.
func (api *API) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()
	raw, err := api.call(reqCtx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        secs,
		AllowedUpdates: []string{"message", "edited_message", "callback_query"},
	})
	if err != nil {
		return nil, offset, err
	}

	var out getUpdatesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, offset, err
	}
	if !out.OK {
		return nil, offset, fmt.Errorf("telegram getUpdates: ok=false")
	}

	next := offset
	for _, u := range out.Result {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return out.Result, next, nil
}

// SendMessage delivers text with formatting fallback: Telegram's Markdown
// parsers are picky, so try MarkdownV2 first, then Markdown, then plain.
func (api *API) SendMessage(ctx context.Context, chatID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(empty)"
	}
	text = escapeMarkdownUnderscores(text)

	if err := api.sendWithParseMode(ctx, chatID, text, nil, "MarkdownV2"); err == nil {
		return nil
	}
	if err := api.sendWithParseMode(ctx, chatID, text, nil, "Markdown"); err == nil {
		return nil
	}
	return api.sendWithParseMode(ctx, chatID, text, nil, "")
}

// SendMessageKeyboard sends plain text with an inline keyboard attached.
func (api *API) SendMessageKeyboard(ctx context.Context, chatID int64, text string, keyboard Keyboard) error {
	return api.sendWithParseMode(ctx, chatID, text, keyboard, "")
}

const maxChunkLen = 3500

// SendMessageChunked splits long replies so each piece stays under the Bot
// API message-length ceiling.
func (api *API) SendMessageChunked(ctx context.Context, chatID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return api.SendMessage(ctx, chatID, "(empty)")
	}
	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxChunkLen {
			chunk = chunk[:maxChunkLen]
		}
		if err := api.SendMessage(ctx, chatID, chunk); err != nil {
			return err
		}
		text = strings.TrimSpace(text[len(chunk):])
	}
	return nil
}

func (api *API) EditMessageText(ctx context.Context, chatID, messageID int64, text string, keyboard Keyboard) error {
	req := editMessageTextRequest{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	}
	if len(keyboard) > 0 {
		req.ReplyMarkup = &InlineKeyboardMarkup{InlineKeyboard: keyboard}
	}
	raw, err := api.call(ctx, "editMessageText", req)
	if err != nil {
		return err
	}
	var ok okResponse
	_ = json.Unmarshal(raw, &ok)
	if !ok.OK {
		return fmt.Errorf("telegram editMessageText: ok=false")
	}
	return nil
}

// AnswerCallbackQuery stops the client-side loading spinner on a button.
func (api *API) AnswerCallbackQuery(ctx context.Context, callbackQueryID string) error {
	raw, err := api.call(ctx, "answerCallbackQuery", answerCallbackQueryRequest{CallbackQueryID: callbackQueryID})
	if err != nil {
		return err
	}
	var ok okResponse
	_ = json.Unmarshal(raw, &ok)
	if !ok.OK {
		return fmt.Errorf("telegram answerCallbackQuery: ok=false")
	}
	return nil
}

func (api *API) SendChatAction(ctx context.Context, chatID int64, action string) error {
	action = strings.TrimSpace(action)
	if action == "" {
		action = "typing"
	}
	_, err := api.call(ctx, "sendChatAction", sendChatActionRequest{ChatID: chatID, Action: action})
	return err
}

func (api *API) sendWithParseMode(ctx context.Context, chatID int64, text string, keyboard Keyboard, parseMode string) error {
	req := sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             strings.TrimSpace(parseMode),
		DisableWebPagePreview: true,
	}
	if len(keyboard) > 0 {
		req.ReplyMarkup = &InlineKeyboardMarkup{InlineKeyboard: keyboard}
	}
	raw, err := api.call(ctx, "sendMessage", req)
	if err != nil {
		return err
	}
	var ok okResponse
	_ = json.Unmarshal(raw, &ok)
	if !ok.OK {
		return fmt.Errorf("telegram sendMessage: ok=false")
	}
	return nil
}

func (api *API) call(ctx context.Context, method string, body any) ([]byte, error) {
	url := fmt.Sprintf("%s/bot%s/%s", api.baseURL, api.token, method)

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := api.http.Do(req)
	if err != nil {
		return nil, err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("telegram http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

// StartTypingTicker keeps the "typing…" indicator alive until the returned
// stop function runs. Telegram drops the indicator after ~5s, so re-send on
// an interval.
func StartTypingTicker(ctx context.Context, api *API, chatID int64, interval time.Duration) func() {
	if ctx == nil {
		ctx = context.Background()
	}
	if api == nil || chatID == 0 {
		return func() {}
	}
	if interval <= 0 {
		interval = 4 * time.Second
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		_ = api.SendChatAction(ctx, chatID, "typing")
		for {
			select {
			case <-ticker.C:
				_ = api.SendChatAction(ctx, chatID, "typing")
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
