package session

import (
	"time"

	"github.com/manseok-song/readlock-sub000/internal/rewards"
)

type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
	StatusEnding Status = "ending"
)

// OfflineIDPrefix marks locally issued ids so they can never collide with
// server-issued ones.
const OfflineIDPrefix = "offline-"

// ReadingSession is one continuous-or-paused attempt at reading a library
// entry. At most one session per device has a zero EndTime.
type ReadingSession struct {
	ID             string        `json:"id"`
	LibraryEntryID string        `json:"library_entry_id"`
	Title          string        `json:"title,omitempty"`
	Status         Status        `json:"status"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time,omitempty"`
	StartPage      int           `json:"start_page"`
	EndPage        int           `json:"end_page,omitempty"`
	TotalPause     time.Duration `json:"total_pause_ns"`
	PausedAt       time.Time     `json:"paused_at,omitempty"`
	FocusScore     float64       `json:"focus_score,omitempty"`
	LastHeartbeat  time.Time     `json:"last_heartbeat,omitempty"`
	ElapsedHint    int64         `json:"elapsed_hint,omitempty"`
	IsOffline      bool          `json:"is_offline"`
	NeedsSync      bool          `json:"needs_sync"`
}

// Elapsed derives reading time from wall clocks. The periodic UI tick is
// never the source of truth; suspension of the process cannot desync this.
func (s ReadingSession) Elapsed(now time.Time) time.Duration {
	pause := s.TotalPause
	if !s.PausedAt.IsZero() {
		pause += now.Sub(s.PausedAt)
	}
	d := now.Sub(s.StartTime) - pause
	if d < 0 {
		// clock went backwards; fall back to the lock service hint
		if s.ElapsedHint > 0 {
			return time.Duration(s.ElapsedHint) * time.Second
		}
		return 0
	}
	return d
}

// Result is the authoritative or estimated outcome of a completed session.
// IsOffline marks a local estimate pending correction.
type Result struct {
	SessionID       string          `json:"session_id"`
	DurationSeconds int64           `json:"duration_seconds"`
	PagesRead       int             `json:"pages_read"`
	StreakDays      int             `json:"streak_days"`
	Rewards         rewards.Rewards `json:"rewards"`
	IsOffline       bool            `json:"is_offline"`
}

// PendingRecord is a session snapshot awaiting replay against the authority.
// It is owned by the sync orchestrator until acknowledged.
type PendingRecord struct {
	Session        ReadingSession `json:"session"`
	EndPage        int            `json:"end_page"`
	FocusScore     float64        `json:"focus_score,omitempty"`
	Completed      bool           `json:"completed"`
	IdempotencyKey string         `json:"idempotency_key"`
	EnqueuedAt     time.Time      `json:"enqueued_at"`
}

// HistoryEntry is a completed session kept for offline display and archival.
type HistoryEntry struct {
	SessionID      string    `json:"session_id"`
	LibraryEntryID string    `json:"library_entry_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	StartPage      int       `json:"start_page"`
	EndPage        int       `json:"end_page"`
	Result         Result    `json:"result"`
}

func NewHistoryEntry(s ReadingSession, res Result) HistoryEntry {
	return HistoryEntry{
		SessionID:      s.ID,
		LibraryEntryID: s.LibraryEntryID,
		StartTime:      s.StartTime,
		EndTime:        s.EndTime,
		StartPage:      s.StartPage,
		EndPage:        s.EndPage,
		Result:         res,
	}
}
