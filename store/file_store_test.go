package store

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot_data.json")
	return Open(path, discardLogger()), path
}

func TestRecordMessageUpserts(t *testing.T) {
	s, _ := openTestStore(t)

	rec, err := s.RecordMessage(42, "Arman", "arman")
	if err != nil {
		t.Fatalf("RecordMessage() error = %v", err)
	}
	if rec.MessageCount != 1 {
		t.Fatalf("first message_count = %d, want 1", rec.MessageCount)
	}
	if rec.FirstSeen.IsZero() || rec.LastSeen.IsZero() {
		t.Fatalf("timestamps not set: %+v", rec)
	}

	rec, err = s.RecordMessage(42, "Arman", "arman")
	if err != nil {
		t.Fatalf("RecordMessage() error = %v", err)
	}
	if rec.MessageCount != 2 {
		t.Fatalf("second message_count = %d, want 2", rec.MessageCount)
	}
	if !rec.LastSeen.After(rec.FirstSeen) && !rec.LastSeen.Equal(rec.FirstSeen) {
		t.Fatalf("last_seen before first_seen: %+v", rec)
	}

	stats := s.Stats()
	if stats.TotalUsers != 1 || stats.TotalMessages != 2 {
		t.Fatalf("stats = %+v, want 1 user / 2 messages", stats)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, path := openTestStore(t)

	if _, err := s.RecordMessage(7, "A", "a"); err != nil {
		t.Fatalf("RecordMessage() error = %v", err)
	}
	if _, err := s.RecordMessage(9, "B", ""); err != nil {
		t.Fatalf("RecordMessage() error = %v", err)
	}
	for _, id := range []int64{9, 3, 7} {
		if err := s.Ban(id); err != nil {
			t.Fatalf("Ban(%d) error = %v", id, err)
		}
	}
	if _, err := s.UpdateSettings(func(cfg *Settings) { cfg.Temperature = 0.9 }); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}

	reopened := Open(path, discardLogger())
	if got, want := reopened.BannedIDs(), []int64{3, 7, 9}; !reflect.DeepEqual(got, want) {
		t.Fatalf("banned ids = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(reopened.Users(), s.Users()) {
		t.Fatalf("user map mismatch after reload:\n got=%+v\nwant=%+v", reopened.Users(), s.Users())
	}
	if got := reopened.Settings().Temperature; got != 0.9 {
		t.Fatalf("temperature = %v, want 0.9", got)
	}
}

func TestBanIsIdempotent(t *testing.T) {
	s, path := openTestStore(t)

	if err := s.Ban(11); err != nil {
		t.Fatalf("Ban() error = %v", err)
	}
	if err := s.Ban(11); err != nil {
		t.Fatalf("repeat Ban() error = %v", err)
	}
	if got := s.BannedIDs(); len(got) != 1 || got[0] != 11 {
		t.Fatalf("banned ids = %v, want [11]", got)
	}

	reopened := Open(path, discardLogger())
	if got := reopened.BannedIDs(); len(got) != 1 || got[0] != 11 {
		t.Fatalf("persisted banned ids = %v, want [11]", got)
	}

	if err := s.Unban(11); err != nil {
		t.Fatalf("Unban() error = %v", err)
	}
	if err := s.Unban(11); err != nil {
		t.Fatalf("repeat Unban() error = %v", err)
	}
	if s.IsBanned(11) {
		t.Fatalf("IsBanned(11) = true after unban")
	}
}

func TestOpenCorruptFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot_data.json")
	if err := os.WriteFile(path, []byte("{{{"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	s := Open(path, discardLogger())
	if got := len(s.Users()); got != 0 {
		t.Fatalf("users = %d, want 0", got)
	}
	if got := s.Settings(); got != DefaultSettings() {
		t.Fatalf("settings = %+v, want defaults", got)
	}
	// The store must stay writable after a corrupt load.
	if _, err := s.RecordMessage(1, "x", ""); err != nil {
		t.Fatalf("RecordMessage() after corrupt load error = %v", err)
	}
}

func TestClearUsersKeepsBanSet(t *testing.T) {
	s, _ := openTestStore(t)
	if _, err := s.RecordMessage(5, "E", ""); err != nil {
		t.Fatalf("RecordMessage() error = %v", err)
	}
	if err := s.Ban(6); err != nil {
		t.Fatalf("Ban() error = %v", err)
	}
	if err := s.ClearUsers(); err != nil {
		t.Fatalf("ClearUsers() error = %v", err)
	}
	if got := len(s.Users()); got != 0 {
		t.Fatalf("users after clear = %d, want 0", got)
	}
	if got := s.Stats(); got != (Stats{}) {
		t.Fatalf("stats after clear = %+v, want zero", got)
	}
	if !s.IsBanned(6) {
		t.Fatalf("ban set should survive ClearUsers")
	}
}

func TestSaveFailureKeepsMemoryAuthoritative(t *testing.T) {
	// Point the state file under a regular file so the atomic rewrite cannot
	// create its parent directory.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	s := Open(filepath.Join(blocker, "bot_data.json"), discardLogger())

	if err := s.Ban(2); !errors.Is(err, ErrSaveFailed) {
		t.Fatalf("Ban() error = %v, want ErrSaveFailed", err)
	}
	if !s.IsBanned(2) {
		t.Fatalf("in-memory ban must stick despite save failure")
	}
}
