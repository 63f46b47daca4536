package history

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/manseok-song/readlock-sub000/internal/db"
	"github.com/manseok-song/readlock-sub000/internal/session"
)

// Cache is the store-backed fallback used when the device runs without a
// postgres archive.
type Cache interface {
	History(ctx context.Context, limit int) ([]session.HistoryEntry, error)
}

type Filter struct {
	LibraryEntryID string
	From           time.Time
	To             time.Time
	Limit          int
}

// Service archives completed sessions and serves filtered history queries,
// falling back to the bounded redis cache when the archive is absent.
type Service struct {
	db    db.Querier
	cache Cache
	log   *zap.Logger
}

func NewService(q db.Querier, cache Cache, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: q, cache: cache, log: log}
}

// Archive upserts an entry. An authoritative result arriving after an
// estimate overwrites the estimated row.
func (s *Service) Archive(ctx context.Context, e session.HistoryEntry) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO reading_history
			(session_id, library_entry_id, start_time, end_time, start_page, end_page,
			 duration_seconds, pages_read, streak_days, coins, exp, bonus_coins, bonus_exp, is_estimate)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (session_id) DO UPDATE SET
			end_time=EXCLUDED.end_time,
			end_page=EXCLUDED.end_page,
			duration_seconds=EXCLUDED.duration_seconds,
			pages_read=EXCLUDED.pages_read,
			streak_days=EXCLUDED.streak_days,
			coins=EXCLUDED.coins,
			exp=EXCLUDED.exp,
			bonus_coins=EXCLUDED.bonus_coins,
			bonus_exp=EXCLUDED.bonus_exp,
			is_estimate=EXCLUDED.is_estimate
	`, e.SessionID, e.LibraryEntryID, e.StartTime, e.EndTime, e.StartPage, e.EndPage,
		e.Result.DurationSeconds, e.Result.PagesRead, e.Result.StreakDays,
		e.Result.Rewards.CoinsEarned, e.Result.Rewards.ExpEarned,
		e.Result.Rewards.BonusCoins, e.Result.Rewards.BonusExp, e.Result.IsOffline)
	return err
}

func (s *Service) List(ctx context.Context, f Filter) ([]session.HistoryEntry, error) {
	if s.db == nil {
		return s.cache.History(ctx, f.Limit)
	}

	query := `
		SELECT session_id, library_entry_id, start_time, end_time, start_page, end_page,
		       duration_seconds, pages_read, streak_days, coins, exp, bonus_coins, bonus_exp, is_estimate
		FROM reading_history WHERE 1=1`
	var args []any
	if f.LibraryEntryID != "" {
		args = append(args, f.LibraryEntryID)
		query += fmt.Sprintf(" AND library_entry_id=$%d", len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		query += fmt.Sprintf(" AND start_time>=$%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		query += fmt.Sprintf(" AND start_time<$%d", len(args))
	}
	query += " ORDER BY start_time DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []session.HistoryEntry
	for rows.Next() {
		var e session.HistoryEntry
		if err := rows.Scan(&e.SessionID, &e.LibraryEntryID, &e.StartTime, &e.EndTime,
			&e.StartPage, &e.EndPage,
			&e.Result.DurationSeconds, &e.Result.PagesRead, &e.Result.StreakDays,
			&e.Result.Rewards.CoinsEarned, &e.Result.Rewards.ExpEarned,
			&e.Result.Rewards.BonusCoins, &e.Result.Rewards.BonusExp, &e.Result.IsOffline); err != nil {
			return nil, err
		}
		e.Result.SessionID = e.SessionID
		entries = append(entries, e)
	}
	return entries, nil
}
