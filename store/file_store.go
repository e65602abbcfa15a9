// Package store owns the bot's durable state: user records, the ban set,
// settings, message templates, and the admin audit trail. State lives in one
// JSON document rewritten atomically after every mutation; the in-memory copy
// stays authoritative if a write fails.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ysnrfd/render/internal/fsstore"
)

const stateFileVersion = 1

// ErrSaveFailed wraps any persistence failure. Callers report a generic
// failure and keep going; the write is not retried automatically.
var ErrSaveFailed = errors.New("store: save failed")

type stateFile struct {
	Version        int                  `json:"version"`
	Users          map[int64]UserRecord `json:"users"`
	BannedUsers    []int64              `json:"banned_users"`
	Stats          Stats                `json:"stats"`
	Settings       Settings             `json:"settings"`
	WelcomeMessage string               `json:"welcome_message"`
	GoodbyeMessage string               `json:"goodbye_message"`
}

type FileStore struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	users    map[int64]UserRecord
	banned   map[int64]struct{}
	stats    Stats
	settings Settings
	welcome  string
	goodbye  string
}

// Open loads the state file at path. A missing or corrupt file yields the
// documented default state and a logged anomaly; Open never fails.
func Open(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileStore{
		path:     strings.TrimSpace(path),
		logger:   logger,
		now:      time.Now,
		users:    make(map[int64]UserRecord),
		banned:   make(map[int64]struct{}),
		settings: DefaultSettings(),
		welcome:  defaultWelcomeMessage,
		goodbye:  defaultGoodbyeMessage,
	}
	s.load()
	return s
}

func (s *FileStore) load() {
	var file stateFile
	ok, err := fsstore.ReadJSON(s.path, &file)
	if err != nil {
		s.logger.Error("store_load_error", "path", s.path, "error", err.Error())
		return
	}
	if !ok {
		s.logger.Info("store_file_absent", "path", s.path)
		return
	}
	if file.Version != 0 && file.Version != stateFileVersion {
		s.logger.Error("store_unsupported_version", "path", s.path, "version", file.Version)
		return
	}

	for id, rec := range file.Users {
		rec.ID = id
		s.users[id] = rec
	}
	for _, id := range file.BannedUsers {
		s.banned[id] = struct{}{}
	}
	s.stats = file.Stats
	if file.Settings != (Settings{}) {
		s.settings = file.Settings
	}
	if strings.TrimSpace(file.WelcomeMessage) != "" {
		s.welcome = file.WelcomeMessage
	}
	if strings.TrimSpace(file.GoodbyeMessage) != "" {
		s.goodbye = file.GoodbyeMessage
	}
	s.logger.Info("store_loaded", "path", s.path, "users", len(s.users), "banned", len(s.banned))
}

// saveLocked rewrites the whole document. The ban set is serialized as a
// sorted sequence so round trips are byte-stable.
func (s *FileStore) saveLocked() error {
	file := stateFile{
		Version:        stateFileVersion,
		Users:          s.users,
		BannedUsers:    sortedIDs(s.banned),
		Stats:          s.stats,
		Settings:       s.settings,
		WelcomeMessage: s.welcome,
		GoodbyeMessage: s.goodbye,
	}
	if err := fsstore.WriteJSONAtomic(s.path, file, fsstore.FileOptions{}); err != nil {
		s.logger.Error("store_save_error", "path", s.path, "error", err.Error())
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

// RecordMessage upserts the sender's record and bumps the aggregate
// counters, then persists immediately. Durability over batching.
func (s *FileStore) RecordMessage(id int64, firstName, username string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	rec, ok := s.users[id]
	if !ok {
		rec = UserRecord{
			ID:        id,
			FirstSeen: now,
		}
		s.stats.TotalUsers++
		s.logger.Info("store_new_user", "user_id", id, "first_name", firstName)
	}
	if strings.TrimSpace(firstName) != "" {
		rec.FirstName = strings.TrimSpace(firstName)
	}
	if strings.TrimSpace(username) != "" {
		rec.Username = strings.TrimSpace(username)
	}
	rec.LastSeen = now
	rec.MessageCount++
	s.users[id] = rec
	s.stats.TotalMessages++

	return rec, s.saveLocked()
}

// Ban adds id to the ban set. Idempotent; a no-op mutation skips the save.
func (s *FileStore) Ban(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.banned[id]; ok {
		return nil
	}
	s.banned[id] = struct{}{}
	return s.saveLocked()
}

func (s *FileStore) Unban(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.banned[id]; !ok {
		return nil
	}
	delete(s.banned, id)
	return s.saveLocked()
}

func (s *FileStore) IsBanned(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.banned[id]
	return ok
}

func (s *FileStore) BannedIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedIDs(s.banned)
}

func (s *FileStore) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings applies mutate under the store lock and persists the
// result. Returns the settings as saved.
func (s *FileStore) UpdateSettings(mutate func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mutate != nil {
		mutate(&s.settings)
	}
	return s.settings, s.saveLocked()
}

func (s *FileStore) SetMaintenance(on bool) error {
	_, err := s.UpdateSettings(func(cfg *Settings) { cfg.MaintenanceMode = on })
	return err
}

func (s *FileStore) MaintenanceMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.MaintenanceMode
}

func (s *FileStore) User(id int64) (UserRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[id]
	return rec, ok
}

func (s *FileStore) Users() []UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedUsersLocked(s.users)
}

func (s *FileStore) UserIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.users))
	for id := range s.users {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ClearUsers is the explicit bulk-clear: drops every user record and resets
// the aggregate counters. The ban set survives.
func (s *FileStore) ClearUsers() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[int64]UserRecord)
	s.stats = Stats{}
	return s.saveLocked()
}

func (s *FileStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *FileStore) WelcomeMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.welcome
}

func (s *FileStore) GoodbyeMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goodbye
}

func (s *FileStore) SetWelcomeMessage(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("welcome message is required")
	}
	s.welcome = text
	return s.saveLocked()
}

func (s *FileStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Users:          sortedUsersLocked(s.users),
		BannedUsers:    sortedIDs(s.banned),
		Stats:          s.stats,
		Settings:       s.settings,
		WelcomeMessage: s.welcome,
		GoodbyeMessage: s.goodbye,
	}
}

func sortedIDs(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedUsersLocked(users map[int64]UserRecord) []UserRecord {
	out := make([]UserRecord, 0, len(users))
	for _, rec := range users {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
