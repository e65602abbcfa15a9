package admin

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ysnrfd/render/store"
)

// HandleText interprets a free-text message against the sender's session.
// It reports whether the message was consumed by the admin surface; an
// unconsumed message flows on to the regular chat path.
func (p *Panel) HandleText(ctx context.Context, userID int64, text string) bool {
	if !p.policy.IsAdmin(userID) {
		return false
	}

	p.mu.Lock()
	s, ok := p.sessions[userID]
	if !ok {
		p.mu.Unlock()
		return false
	}
	stage := s.Stage
	prompt := s.Prompt
	p.mu.Unlock()

	switch stage {
	case StageAwaitingUsername:
		p.handleUsername(ctx, userID, text)
		return true
	case StageAwaitingPassword:
		p.handlePassword(ctx, userID, text)
		return true
	case StageAuthenticated:
		if prompt == PromptNone {
			return false
		}
		p.handlePrompt(ctx, userID, prompt, text)
		return true
	}
	return false
}

func (p *Panel) handleUsername(ctx context.Context, userID int64, text string) {
	if strings.TrimSpace(text) != p.creds.Username {
		// Wrong first credential keeps the stage and reprompts.
		p.send(ctx, userID, "Wrong username. Enter the username:")
		return
	}
	p.mu.Lock()
	if s, ok := p.sessions[userID]; ok && s.Stage == StageAwaitingUsername {
		s.Stage = StageAwaitingPassword
	}
	p.mu.Unlock()
	p.send(ctx, userID, "Enter the password:")
}

func (p *Panel) handlePassword(ctx context.Context, userID int64, text string) {
	if text != p.creds.Password {
		// Wrong second credential discards the whole session.
		p.mu.Lock()
		delete(p.sessions, userID)
		p.mu.Unlock()
		p.audit.Record(userID, "login failed")
		p.logger.Warn("admin_login_failed", "user_id", userID)
		p.send(ctx, userID, "Authentication failed. Start over with /admin.")
		return
	}
	p.mu.Lock()
	if s, ok := p.sessions[userID]; ok && s.Stage == StageAwaitingPassword {
		s.Stage = StageAuthenticated
		s.Prompt = PromptNone
	}
	p.mu.Unlock()
	p.audit.Record(userID, "login")
	p.logger.Info("admin_login", "user_id", userID)
	p.sendMenu(ctx, userID, nil)
}

// handlePrompt applies one free-text answer to the active prompt. Invalid
// input reprompts and keeps the prompt; valid input clears it.
func (p *Panel) handlePrompt(ctx context.Context, userID int64, prompt Prompt, text string) {
	switch prompt {
	case PromptTemperature:
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil || v < 0 || v > 2 {
			p.send(ctx, userID, "Temperature must be a number between 0.0 and 2.0. Try again:")
			return
		}
		p.applySetting(ctx, userID, fmt.Sprintf("set temperature %.2f", v), func(s *store.Settings) { s.Temperature = v })
		p.send(ctx, userID, fmt.Sprintf("Temperature set to %.2f.", v))
	case PromptTopP:
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil || v <= 0 || v > 1 {
			p.send(ctx, userID, "Top-p must be a number above 0.0 and up to 1.0. Try again:")
			return
		}
		p.applySetting(ctx, userID, fmt.Sprintf("set top_p %.2f", v), func(s *store.Settings) { s.TopP = v })
		p.send(ctx, userID, fmt.Sprintf("Top-p set to %.2f.", v))
	case PromptModel:
		model := strings.TrimSpace(text)
		if model == "" || strings.ContainsAny(model, "\r\n") {
			p.send(ctx, userID, "Model must be a non-empty single line. Try again:")
			return
		}
		p.applySetting(ctx, userID, "set model "+model, func(s *store.Settings) { s.Model = model })
		p.send(ctx, userID, "Model set to "+model+".")
	case PromptWelcome:
		if strings.TrimSpace(text) == "" {
			p.send(ctx, userID, "Welcome message must not be empty. Try again:")
			return
		}
		if err := p.store.SetWelcomeMessage(text); err != nil {
			p.logger.Error("admin_setting_save_error", "error", err)
		}
		p.clearPrompt(userID)
		p.audit.Record(userID, "set welcome message")
		p.send(ctx, userID, "Welcome message updated.")
	case PromptBroadcast:
		if strings.TrimSpace(text) == "" {
			p.send(ctx, userID, "Broadcast text must not be empty. Try again:")
			return
		}
		p.clearPrompt(userID)
		p.runBroadcast(ctx, userID, text)
	case PromptDirectMessage:
		target, body, ok := splitDirect(text)
		if !ok {
			p.send(ctx, userID, "Send: <user id> <message text>. Try again:")
			return
		}
		p.clearPrompt(userID)
		p.audit.Record(userID, fmt.Sprintf("direct message to %d", target))
		if err := p.msg.SendMessage(ctx, target, body); err != nil {
			p.send(ctx, userID, fmt.Sprintf("Delivery to %d failed.", target))
			return
		}
		p.send(ctx, userID, fmt.Sprintf("Delivered to %d.", target))
	case PromptBanID:
		target, ok := parseID(text)
		if !ok {
			p.send(ctx, userID, "Send a numeric user id. Try again:")
			return
		}
		p.clearPrompt(userID)
		if err := p.store.Ban(target); err != nil {
			p.logger.Error("admin_ban_save_error", "error", err)
		}
		p.audit.Record(userID, fmt.Sprintf("ban %d", target))
		p.send(ctx, userID, fmt.Sprintf("User %d is banned.", target))
	case PromptUnbanID:
		target, ok := parseID(text)
		if !ok {
			p.send(ctx, userID, "Send a numeric user id. Try again:")
			return
		}
		p.clearPrompt(userID)
		if err := p.store.Unban(target); err != nil {
			p.logger.Error("admin_unban_save_error", "error", err)
		}
		p.audit.Record(userID, fmt.Sprintf("unban %d", target))
		p.send(ctx, userID, fmt.Sprintf("User %d is unbanned.", target))
	case PromptLookupID:
		target, ok := parseID(text)
		if !ok {
			p.send(ctx, userID, "Send a numeric user id. Try again:")
			return
		}
		p.clearPrompt(userID)
		p.send(ctx, userID, p.lookupView(target))
	}
}

func (p *Panel) applySetting(ctx context.Context, userID int64, action string, mutate func(*store.Settings)) {
	if _, err := p.store.UpdateSettings(mutate); err != nil {
		p.logger.Error("admin_setting_save_error", "error", err)
		p.send(ctx, userID, "The change is applied in memory but could not be persisted.")
	}
	p.clearPrompt(userID)
	p.audit.Record(userID, action)
}

func (p *Panel) runBroadcast(ctx context.Context, userID int64, text string) {
	recipients := p.store.UserIDs()
	p.audit.Record(userID, fmt.Sprintf("broadcast to %d recipients", len(recipients)))
	res := p.engine.Broadcast(ctx, text, recipients, p.store.Settings().BroadcastPace())
	p.send(ctx, userID, fmt.Sprintf("Broadcast done. Sent %d, failed %d, skipped %d.", res.Sent, res.Failed, res.Skipped))
}

func (p *Panel) lookupView(target int64) string {
	u, ok := p.store.User(target)
	if !ok {
		return fmt.Sprintf("No record for %d.", target)
	}
	banned := "no"
	if p.store.IsBanned(target) {
		banned = "yes"
	}
	return fmt.Sprintf("ID: %d\nName: %s\nUsername: %s\nFirst seen: %s\nLast seen: %s\nMessages: %d\nBanned: %s",
		u.ID, u.FirstName, u.Username,
		u.FirstSeen.UTC().Format("2006-01-02 15:04:05"),
		u.LastSeen.UTC().Format("2006-01-02 15:04:05"),
		u.MessageCount, banned)
}

func parseID(text string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func splitDirect(text string) (int64, string, bool) {
	fields := strings.SplitN(strings.TrimSpace(text), " ", 2)
	if len(fields) != 2 {
		return 0, "", false
	}
	id, ok := parseID(fields[0])
	body := strings.TrimSpace(fields[1])
	if !ok || body == "" {
		return 0, "", false
	}
	return id, body, true
}
