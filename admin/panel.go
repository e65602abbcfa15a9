package admin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ysnrfd/render/broadcast"
	"github.com/ysnrfd/render/moderation"
	"github.com/ysnrfd/render/store"
	"github.com/ysnrfd/render/telegram"
)

// Messenger is the outbound surface the panel talks through.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendMessageKeyboard(ctx context.Context, chatID int64, text string, keyboard telegram.Keyboard) error
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, keyboard telegram.Keyboard) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID string) error
}

// Broadcaster delivers one text to a recipient set. Satisfied by
// broadcast.Engine.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string, recipients []int64, pace time.Duration) broadcast.Result
}

// TaskCounter reports how many units of work are currently in flight.
type TaskCounter interface {
	Active() int
}

// Credentials are the two challenge values, supplied at startup.
type Credentials struct {
	Username string
	Password string
}

// Panel is the admin console: the two-factor credential challenge, the
// inline-keyboard menu, and the prompt-driven settings editor. One mutex
// guards the whole session registry.
type Panel struct {
	store   *store.FileStore
	audit   *store.AuditLog
	policy  *moderation.Policy
	msg     Messenger
	engine  Broadcaster
	tasks   TaskCounter
	creds   Credentials
	restart func()
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewPanel(st *store.FileStore, audit *store.AuditLog, policy *moderation.Policy, msg Messenger, engine Broadcaster, tasks TaskCounter, creds Credentials, restart func(), logger *slog.Logger) *Panel {
	if restart == nil {
		restart = func() {}
	}
	return &Panel{
		store:    st,
		audit:    audit,
		policy:   policy,
		msg:      msg,
		engine:   engine,
		tasks:    tasks,
		creds:    creds,
		restart:  restart,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[int64]*Session),
	}
}

// Session returns a copy of the identity's current session state.
func (p *Panel) Session(userID int64) Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[userID]; ok {
		return *s
	}
	return Session{Stage: StageUnauthenticated}
}

// HandleCommand services the admin entry command. Non-admin identities
// are dropped without a reply.
func (p *Panel) HandleCommand(ctx context.Context, userID int64) {
	if !p.policy.IsAdmin(userID) {
		p.logger.Debug("admin_command_denied", "user_id", userID)
		return
	}

	p.mu.Lock()
	s, ok := p.sessions[userID]
	if !ok {
		s = &Session{Stage: StageAwaitingUsername}
		p.sessions[userID] = s
	}
	stage := s.Stage
	if stage == StageAuthenticated {
		s.Prompt = PromptNone
	}
	p.mu.Unlock()

	if stage == StageAuthenticated {
		p.sendMenu(ctx, userID, nil)
		return
	}
	p.send(ctx, userID, "Admin login. Enter the username:")
}

// HandleCallback services a menu button press. It reports whether the
// callback belonged to the admin surface.
func (p *Panel) HandleCallback(ctx context.Context, cb *telegram.CallbackQuery) bool {
	if cb == nil || cb.From == nil || !strings.HasPrefix(cb.Data, "admin_") {
		return false
	}
	userID := cb.From.ID
	if err := p.msg.AnswerCallbackQuery(ctx, cb.ID); err != nil {
		p.logger.Warn("admin_callback_ack_error", "error", err)
	}

	if !p.policy.IsAdmin(userID) || !p.authenticated(userID) {
		p.logger.Debug("admin_callback_denied", "user_id", userID, "data", cb.Data)
		return true
	}

	switch cb.Data {
	case "admin_menu":
		p.clearPrompt(userID)
		p.sendMenu(ctx, userID, cb.Message)
	case "admin_stats":
		p.send(ctx, userID, p.statsView())
	case "admin_logs":
		p.send(ctx, userID, p.logsView())
	case "admin_users":
		p.send(ctx, userID, p.usersView())
	case "admin_settings":
		p.sendSettingsMenu(ctx, userID, cb.Message)
	case "admin_set_temperature":
		p.setPrompt(ctx, userID, PromptTemperature, "Send the new temperature (0.0 to 2.0):")
	case "admin_set_top_p":
		p.setPrompt(ctx, userID, PromptTopP, "Send the new top-p (above 0.0, up to 1.0):")
	case "admin_set_model":
		p.setPrompt(ctx, userID, PromptModel, "Send the new model identifier:")
	case "admin_set_welcome":
		p.setPrompt(ctx, userID, PromptWelcome, "Send the new welcome message. {name} expands to the user's name:")
	case "admin_broadcast":
		p.setPrompt(ctx, userID, PromptBroadcast, "Send the broadcast text:")
	case "admin_direct":
		p.setPrompt(ctx, userID, PromptDirectMessage, "Send: <user id> <message text>")
	case "admin_ban":
		p.setPrompt(ctx, userID, PromptBanID, "Send the user id to ban:")
	case "admin_unban":
		p.setPrompt(ctx, userID, PromptUnbanID, "Send the user id to unban:")
	case "admin_lookup":
		p.setPrompt(ctx, userID, PromptLookupID, "Send the user id to look up:")
	case "admin_maintenance":
		p.toggleMaintenance(ctx, userID)
	case "admin_clear_users":
		p.clearUsers(ctx, userID)
	case "admin_export":
		p.exportData(ctx, userID)
	case "admin_restart":
		p.audit.Record(userID, "restart")
		p.send(ctx, userID, "Restarting.")
		p.logger.Info("admin_restart", "user_id", userID)
		p.restart()
	case "admin_logout":
		p.logout(ctx, userID)
	default:
		p.logger.Debug("admin_callback_unknown", "data", cb.Data)
	}
	return true
}

func (p *Panel) authenticated(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[userID]
	return ok && s.Stage == StageAuthenticated
}

func (p *Panel) setPrompt(ctx context.Context, userID int64, prompt Prompt, ask string) {
	p.mu.Lock()
	if s, ok := p.sessions[userID]; ok && s.Stage == StageAuthenticated {
		// A new prompt discards any unfinished prior one.
		s.Prompt = prompt
	}
	p.mu.Unlock()
	p.send(ctx, userID, ask)
}

func (p *Panel) clearPrompt(userID int64) {
	p.mu.Lock()
	if s, ok := p.sessions[userID]; ok {
		s.Prompt = PromptNone
	}
	p.mu.Unlock()
}

func (p *Panel) logout(ctx context.Context, userID int64) {
	p.mu.Lock()
	delete(p.sessions, userID)
	p.mu.Unlock()
	p.audit.Record(userID, "logout")
	p.send(ctx, userID, "Logged out.")
}

func (p *Panel) toggleMaintenance(ctx context.Context, userID int64) {
	on := !p.store.MaintenanceMode()
	if err := p.store.SetMaintenance(on); err != nil {
		p.logger.Error("admin_maintenance_error", "error", err)
		p.send(ctx, userID, "Could not persist the change. It is applied in memory.")
	}
	p.audit.Record(userID, fmt.Sprintf("maintenance %v", on))
	if on {
		p.send(ctx, userID, "Maintenance mode is ON. Non-admin messages are refused.")
	} else {
		p.send(ctx, userID, "Maintenance mode is OFF.")
	}
}

func (p *Panel) clearUsers(ctx context.Context, userID int64) {
	if err := p.store.ClearUsers(); err != nil {
		p.logger.Error("admin_clear_users_error", "error", err)
	}
	p.audit.Record(userID, "clear users")
	p.send(ctx, userID, "User records and counters cleared. The ban list is kept.")
}

func (p *Panel) exportData(ctx context.Context, userID int64) {
	out, err := yaml.Marshal(p.store.Snapshot())
	if err != nil {
		p.logger.Error("admin_export_error", "error", err)
		p.send(ctx, userID, "Export failed.")
		return
	}
	p.audit.Record(userID, "export")
	p.send(ctx, userID, string(out))
}

// showKeyboard edits the pressed menu message in place when the callback
// carried it, otherwise sends a fresh one.
func (p *Panel) showKeyboard(ctx context.Context, userID int64, origin *telegram.Message, text string, kb telegram.Keyboard) {
	if origin != nil && origin.Chat != nil {
		if err := p.msg.EditMessageText(ctx, origin.Chat.ID, origin.MessageID, text, kb); err == nil {
			return
		}
	}
	if err := p.msg.SendMessageKeyboard(ctx, userID, text, kb); err != nil {
		p.logger.Warn("admin_menu_send_error", "error", err)
	}
}

func (p *Panel) sendMenu(ctx context.Context, userID int64, origin *telegram.Message) {
	kb := telegram.Keyboard{
		telegram.Row("Stats", "admin_stats"),
		telegram.Row("Logs", "admin_logs"),
		telegram.Row("Users", "admin_users"),
		telegram.Row("Settings", "admin_settings"),
		telegram.Row("Broadcast", "admin_broadcast"),
		telegram.Row("Direct message", "admin_direct"),
		telegram.Row("Ban", "admin_ban"),
		telegram.Row("Unban", "admin_unban"),
		telegram.Row("Lookup user", "admin_lookup"),
		telegram.Row("Toggle maintenance", "admin_maintenance"),
		telegram.Row("Clear users", "admin_clear_users"),
		telegram.Row("Export data", "admin_export"),
		telegram.Row("Restart", "admin_restart"),
		telegram.Row("Logout", "admin_logout"),
	}
	p.showKeyboard(ctx, userID, origin, "Admin panel", kb)
}

func (p *Panel) sendSettingsMenu(ctx context.Context, userID int64, origin *telegram.Message) {
	s := p.store.Settings()
	text := fmt.Sprintf("Model: %s\nTemperature: %.2f\nTop-p: %.2f\nMaintenance: %v\nBroadcast pace: %dms",
		s.Model, s.Temperature, s.TopP, s.MaintenanceMode, s.BroadcastPaceMS)
	kb := telegram.Keyboard{
		telegram.Row("Set temperature", "admin_set_temperature"),
		telegram.Row("Set top-p", "admin_set_top_p"),
		telegram.Row("Set model", "admin_set_model"),
		telegram.Row("Set welcome message", "admin_set_welcome"),
		telegram.Row("Back", "admin_menu"),
	}
	p.showKeyboard(ctx, userID, origin, text, kb)
}

func (p *Panel) statsView() string {
	st := p.store.Stats()
	return fmt.Sprintf("Users: %d\nMessages: %d\nBanned: %d\nActive tasks: %d\nAudit entries: %d\nMaintenance: %v\nTime: %s",
		st.TotalUsers, st.TotalMessages, len(p.store.BannedIDs()), p.tasks.Active(), p.audit.Len(),
		p.store.MaintenanceMode(), p.now().UTC().Format(time.RFC3339))
}

func (p *Panel) logsView() string {
	entries := p.audit.Recent(20)
	if len(entries) == 0 {
		return "No audit entries yet."
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s  %d  %s\n", e.Time.UTC().Format("2006-01-02 15:04:05"), e.ActorID, e.Action)
	}
	return b.String()
}

func (p *Panel) usersView() string {
	users := p.store.Users()
	if len(users) == 0 {
		return "No users yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d users\n", len(users))
	const maxListed = 30
	for i, u := range users {
		if i == maxListed {
			fmt.Fprintf(&b, "... and %d more\n", len(users)-maxListed)
			break
		}
		name := u.FirstName
		if u.Username != "" {
			name += " @" + u.Username
		}
		banned := ""
		if p.store.IsBanned(u.ID) {
			banned = " [banned]"
		}
		fmt.Fprintf(&b, "%d  %s  msgs=%d%s\n", u.ID, name, u.MessageCount, banned)
	}
	return b.String()
}

func (p *Panel) send(ctx context.Context, userID int64, text string) {
	if err := p.msg.SendMessage(ctx, userID, text); err != nil {
		p.logger.Warn("admin_send_error", "user_id", userID, "error", err)
	}
}
