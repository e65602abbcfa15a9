package store

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ysnrfd/render/internal/fsstore"
)

// maxRecentAuditEntries bounds the in-memory tail; the full history goes to
// the rotating JSONL file when one is configured.
const maxRecentAuditEntries = 200

type AuditEntry struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	ActorID int64     `json:"actor_id"`
	Action  string    `json:"action"`
}

type AuditLog struct {
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	recent []AuditEntry
	total  int
	sink   *fsstore.JSONLWriter
}

// NewAuditLog opens an audit trail. An empty path keeps the trail in memory
// only; a sink open failure degrades to memory-only rather than failing.
func NewAuditLog(path string, rotateMaxBytes int64, logger *slog.Logger) *AuditLog {
	if logger == nil {
		logger = slog.Default()
	}
	l := &AuditLog{logger: logger, now: time.Now}
	path = strings.TrimSpace(path)
	if path != "" {
		sink, err := fsstore.NewJSONLWriter(path, rotateMaxBytes)
		if err != nil {
			logger.Error("audit_sink_open_error", "path", path, "error", err.Error())
		} else {
			l.sink = sink
		}
	}
	return l
}

func (l *AuditLog) Record(actorID int64, action string) {
	entry := AuditEntry{
		ID:      uuid.NewString(),
		Time:    l.now().UTC(),
		ActorID: actorID,
		Action:  strings.TrimSpace(action),
	}

	l.mu.Lock()
	l.recent = append(l.recent, entry)
	if len(l.recent) > maxRecentAuditEntries {
		l.recent = l.recent[len(l.recent)-maxRecentAuditEntries:]
	}
	l.total++
	sink := l.sink
	l.mu.Unlock()

	l.logger.Info("admin_audit", "actor_id", actorID, "action", entry.Action)
	if sink != nil {
		if err := sink.AppendJSON(entry); err != nil {
			l.logger.Error("audit_sink_write_error", "error", err.Error())
		}
	}
}

// Recent returns up to n entries, oldest first.
func (l *AuditLog) Recent(n int) []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.recent) {
		n = len(l.recent)
	}
	out := make([]AuditEntry, n)
	copy(out, l.recent[len(l.recent)-n:])
	return out
}

// Len counts every entry recorded this process lifetime, including entries
// already evicted from the in-memory tail.
func (l *AuditLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

func (l *AuditLog) Close() error {
	l.mu.Lock()
	sink := l.sink
	l.sink = nil
	l.mu.Unlock()
	if sink == nil {
		return nil
	}
	return sink.Close()
}
