package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/manseok-song/readlock-sub000/internal/session"
)

const (
	activeKey        = "readlock:session:active"
	pendingListKey   = "readlock:pending:ids"
	pendingKeyPrefix = "readlock:pending:rec:"
	historyKey       = "readlock:history"
)

// Store is the durable local persistence layer: a fixed active-session slot,
// a FIFO pending-sync queue and a bounded history cache. Every write is
// acknowledged by redis before the method returns, which is what makes
// crash recovery correct.
type Store struct {
	redis        *redis.Client
	historyLimit int
}

func New(client *redis.Client, historyLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &Store{redis: client, historyLimit: historyLimit}
}

func (s *Store) Active(ctx context.Context) (*session.ReadingSession, error) {
	raw, err := s.redis.Get(ctx, activeKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess session.ReadingSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) PutActive(ctx context.Context, sess session.ReadingSession) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, activeKey, raw, 0).Err()
}

func (s *Store) ClearActive(ctx context.Context) error {
	return s.redis.Del(ctx, activeKey).Err()
}

// EnqueuePending upserts a record keyed by session id. A record that is
// already queued keeps its queue position so FIFO replay order is preserved
// when an offline start is later completed with end data.
func (s *Store) EnqueuePending(ctx context.Context, rec session.PendingRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	recKey := pendingKeyPrefix + rec.Session.ID
	exists, err := s.redis.Exists(ctx, recKey).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		if err := s.redis.RPush(ctx, pendingListKey, rec.Session.ID).Err(); err != nil {
			return err
		}
	}
	return s.redis.Set(ctx, recKey, raw, 0).Err()
}

// ListPending returns queued records oldest first.
func (s *Store) ListPending(ctx context.Context) ([]session.PendingRecord, error) {
	ids, err := s.redis.LRange(ctx, pendingListKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	var recs []session.PendingRecord
	for _, id := range ids {
		raw, err := s.redis.Get(ctx, pendingKeyPrefix+id).Bytes()
		if errors.Is(err, redis.Nil) {
			// orphaned id; drop it from the queue
			s.redis.LRem(ctx, pendingListKey, 0, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec session.PendingRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *Store) RemovePending(ctx context.Context, id string) error {
	if err := s.redis.LRem(ctx, pendingListKey, 0, id).Err(); err != nil {
		return err
	}
	return s.redis.Del(ctx, pendingKeyPrefix+id).Err()
}

// CacheHistory prepends an entry and evicts both older duplicates of the same
// session (an authoritative result silently replaces its estimate) and
// anything beyond the configured cap, oldest first.
func (s *Store) CacheHistory(ctx context.Context, entry session.HistoryEntry) error {
	entries, err := s.History(ctx, 0)
	if err != nil {
		return err
	}

	kept := make([]session.HistoryEntry, 0, len(entries)+1)
	kept = append(kept, entry)
	for _, e := range entries {
		if e.SessionID == entry.SessionID {
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) > s.historyLimit {
		kept = kept[:s.historyLimit]
	}

	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, historyKey)
	for _, e := range kept {
		raw, err := json.Marshal(e)
		if err != nil {
			return err
		}
		pipe.RPush(ctx, historyKey, raw)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// History returns cached entries newest first. A non-positive limit means all.
func (s *Store) History(ctx context.Context, limit int) ([]session.HistoryEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	raws, err := s.redis.LRange(ctx, historyKey, 0, stop).Result()
	if err != nil {
		return nil, err
	}

	var entries []session.HistoryEntry
	for _, raw := range raws {
		var e session.HistoryEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
