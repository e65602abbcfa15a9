package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ysnrfd/render/admin"
	"github.com/ysnrfd/render/dispatch"
	"github.com/ysnrfd/render/internal/retryutil"
	"github.com/ysnrfd/render/llm"
	"github.com/ysnrfd/render/moderation"
	"github.com/ysnrfd/render/store"
	"github.com/ysnrfd/render/telegram"
)

const (
	maintenanceNotice = "The bot is under maintenance. Please try again later."
	timeoutNotice     = "The model took too long to answer. Please try again."
	failureNotice     = "Something went wrong while generating a reply. Please try again."
)

type bot struct {
	api            *telegram.API
	store          *store.FileStore
	policy         *moderation.Policy
	panel          *admin.Panel
	dispatch       *dispatch.Dispatcher
	llm            llm.Client
	logger         *slog.Logger
	pollTimeout    time.Duration
	typingInterval time.Duration
	retry          retryutil.Policy
}

func (b *bot) run(ctx context.Context) {
	var offset int64
	for {
		updates, next, err := b.api.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Warn("telegram_get_updates_error", "error", err.Error())
			time.Sleep(1 * time.Second)
			continue
		}
		offset = next

		for _, u := range updates {
			if u.CallbackQuery != nil {
				b.panel.HandleCallback(ctx, u.CallbackQuery)
				continue
			}
			msg := u.Message
			if msg == nil {
				msg = u.EditedMessage
			}
			if msg == nil || msg.Chat == nil || msg.From == nil {
				continue
			}
			if msg.LeftChatMember != nil {
				goodbye := renderTemplate(b.store.GoodbyeMessage(), telegram.DisplayName(msg.LeftChatMember))
				if err := b.api.SendMessage(ctx, msg.Chat.ID, goodbye); err != nil {
					b.logger.Warn("telegram_send_error", "error", err.Error())
				}
				continue
			}
			text := strings.TrimSpace(msg.Text)
			if text == "" {
				continue
			}
			b.handleMessage(ctx, msg.Chat.ID, msg.From, text)
		}
	}
}

func (b *bot) handleMessage(ctx context.Context, chatID int64, from *telegram.User, text string) {
	userID := from.ID

	switch b.policy.Check(userID) {
	case moderation.VerdictDrop:
		// Banned senders get no reply at all.
		b.logger.Debug("message_dropped", "user_id", userID)
		return
	case moderation.VerdictMaintenanceNotice:
		if err := b.api.SendMessage(ctx, chatID, maintenanceNotice); err != nil {
			b.logger.Warn("telegram_send_error", "error", err.Error())
		}
		return
	}

	switch text {
	case "/admin":
		b.panel.HandleCommand(ctx, userID)
		return
	case "/start":
		if _, err := b.store.RecordMessage(userID, from.FirstName, from.Username); err != nil {
			b.logger.Error("store_save_error", "error", err.Error())
		}
		welcome := renderTemplate(b.store.WelcomeMessage(), telegram.DisplayName(from))
		if err := b.api.SendMessage(ctx, chatID, welcome); err != nil {
			b.logger.Warn("telegram_send_error", "error", err.Error())
		}
		return
	}

	if b.panel.HandleText(ctx, userID, text) {
		return
	}

	firstName, username := from.FirstName, from.Username
	b.dispatch.Submit(userID, func(taskCtx context.Context) {
		b.processUserRequest(taskCtx, chatID, userID, firstName, username, text)
	})
}

// processUserRequest is the unit of work for one accepted chat message. It
// runs under the task context issued by the dispatcher; once that context
// is cancelled the unit must not send a reply or touch the stats.
func (b *bot) processUserRequest(ctx context.Context, chatID, userID int64, firstName, username, text string) {
	stopTyping := telegram.StartTypingTicker(ctx, b.api, chatID, b.typingInterval)
	defer stopTyping()

	settings := b.store.Settings()
	req := llm.Request{
		Model:       settings.Model,
		Temperature: settings.Temperature,
		TopP:        settings.TopP,
		Messages:    []llm.Message{{Role: "user", Content: text}},
	}

	var res llm.Result
	err := retryutil.Do(ctx, b.retry, llm.IsTimeout, func(ctx context.Context) error {
		var callErr error
		res, callErr = b.llm.Chat(ctx, req)
		return callErr
	})
	stopTyping()

	if ctx.Err() != nil {
		return
	}
	if _, serr := b.store.RecordMessage(userID, firstName, username); serr != nil {
		b.logger.Error("store_save_error", "error", serr.Error())
	}

	if err != nil {
		notice := failureNotice
		if llm.IsTimeout(err) {
			notice = timeoutNotice
		}
		b.logger.Warn("llm_request_error", "user_id", userID, "error", err.Error())
		if serr := b.api.SendMessage(ctx, chatID, notice); serr != nil {
			b.logger.Warn("telegram_send_error", "error", serr.Error())
		}
		return
	}

	if serr := b.api.SendMessageChunked(ctx, chatID, res.Text); serr != nil {
		b.logger.Warn("telegram_send_error", "error", serr.Error())
	}
}

func renderTemplate(template, name string) string {
	return strings.ReplaceAll(template, "{name}", name)
}
