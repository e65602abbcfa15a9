package store

import "time"

// UserRecord tracks one sender. Created on the first accepted message and
// mutated on every one after; only ClearUsers removes records.
type UserRecord struct {
	ID           int64     `json:"id"`
	FirstName    string    `json:"first_name,omitempty"`
	Username     string    `json:"username,omitempty"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	MessageCount int64     `json:"message_count"`
}

// Settings is the single shared configuration record. Read on every request,
// written only through authenticated admin operations.
type Settings struct {
	Model           string  `json:"model"`
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"top_p"`
	MaintenanceMode bool    `json:"maintenance_mode"`
	BroadcastPaceMS int64   `json:"broadcast_pace_ms"`
}

func (s Settings) BroadcastPace() time.Duration {
	return time.Duration(s.BroadcastPaceMS) * time.Millisecond
}

type Stats struct {
	TotalMessages int64 `json:"total_messages"`
	TotalUsers    int64 `json:"total_users"`
}

// Snapshot is a point-in-time copy of the whole store, used by the admin
// export and by tests. The ban set appears as a sorted sequence.
type Snapshot struct {
	Users          []UserRecord `json:"users" yaml:"users"`
	BannedUsers    []int64      `json:"banned_users" yaml:"banned_users"`
	Stats          Stats        `json:"stats" yaml:"stats"`
	Settings       Settings     `json:"settings" yaml:"settings"`
	WelcomeMessage string       `json:"welcome_message" yaml:"welcome_message"`
	GoodbyeMessage string       `json:"goodbye_message" yaml:"goodbye_message"`
}

func DefaultSettings() Settings {
	return Settings{
		Model:           "huihui-ai/gemma-3-27b-it-abliterated:featherless-ai",
		Temperature:     0.7,
		TopP:            0.95,
		MaintenanceMode: false,
		BroadcastPaceMS: 50,
	}
}

const (
	defaultWelcomeMessage = "Hello {name}! I am an assistant bot, ask me anything. If you send a new message while one is still processing, the older request is cancelled."
	defaultGoodbyeMessage = "{name} left. Goodbye!"
)
