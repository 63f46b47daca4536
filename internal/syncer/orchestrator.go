package syncer

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/manseok-song/readlock-sub000/internal/session"
)

type Store interface {
	Active(ctx context.Context) (*session.ReadingSession, error)
	ListPending(ctx context.Context) ([]session.PendingRecord, error)
	RemovePending(ctx context.Context, id string) error
	CacheHistory(ctx context.Context, e session.HistoryEntry) error
}

type Remote interface {
	Replay(ctx context.Context, rec session.PendingRecord) (session.Result, error)
	Finalize(ctx context.Context, id string, endPage int, focusScore float64) (session.Result, error)
}

type Archiver interface {
	Archive(ctx context.Context, e session.HistoryEntry) error
}

// Orchestrator drains the pending-sync queue against the authority. It runs
// opportunistically: on reconnect, on app foreground and after a successful
// session end. Failures are never surfaced to the UI.
type Orchestrator struct {
	store    Store
	remote   Remote
	archiver Archiver
	log      *zap.Logger
	trigger  chan struct{}
	mu       sync.Mutex
}

func New(store Store, remote Remote, archiver Archiver, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		store:    store,
		remote:   remote,
		archiver: archiver,
		log:      log,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests a drain without blocking. Triggers are coalesced.
func (o *Orchestrator) Trigger() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// Run services triggers until the context ends.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.trigger:
			if err := o.Drain(ctx); err != nil {
				o.log.Warn("drain aborted", zap.Error(err))
			}
		}
	}
}

// Drain replays queued records oldest first. Replays stop at the first
// retryable failure so a later session is never sent before an earlier one
// completes. The drain never runs concurrently with itself.
func (o *Orchestrator) Drain(ctx context.Context) error {
	if !o.mu.TryLock() {
		return nil
	}
	defer o.mu.Unlock()

	recs, err := o.store.ListPending(ctx)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	active, err := o.store.Active(ctx)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		if active != nil && active.ID == rec.Session.ID {
			// still running locally; its record replays after it ends
			continue
		}

		var res session.Result
		if rec.Session.IsOffline {
			res, err = o.remote.Replay(ctx, rec)
		} else {
			res, err = o.remote.Finalize(ctx, rec.Session.ID, rec.EndPage, rec.FocusScore)
		}

		switch {
		case err == nil:
			if err := o.store.RemovePending(ctx, rec.Session.ID); err != nil {
				return err
			}
			o.acknowledge(ctx, rec, res)
		case errors.Is(err, session.ErrDuplicate):
			// the authority already applied this record; drop it without
			// touching previously granted rewards
			if err := o.store.RemovePending(ctx, rec.Session.ID); err != nil {
				return err
			}
			o.log.Info("replay already applied", zap.String("session_id", rec.Session.ID))
		case session.IsRetryable(err):
			o.log.Info("authority unreachable, record stays queued",
				zap.String("session_id", rec.Session.ID), zap.Error(err))
			return nil
		default:
			// terminal; keeping the record would wedge the queue
			if rmErr := o.store.RemovePending(ctx, rec.Session.ID); rmErr != nil {
				return rmErr
			}
			o.log.Warn("replay rejected, record dropped",
				zap.String("session_id", rec.Session.ID), zap.Error(err))
		}
	}
	return nil
}

// acknowledge replaces the client-visible estimate with the authoritative
// result. The UI owns whether to surface the correction.
func (o *Orchestrator) acknowledge(ctx context.Context, rec session.PendingRecord, res session.Result) {
	entry := session.NewHistoryEntry(rec.Session, res)
	if err := o.store.CacheHistory(ctx, entry); err != nil {
		o.log.Warn("history cache update failed", zap.Error(err))
	}
	if o.archiver != nil {
		if err := o.archiver.Archive(ctx, entry); err != nil {
			o.log.Warn("history archive update failed", zap.Error(err))
		}
	}
	o.log.Info("session reconciled",
		zap.String("session_id", rec.Session.ID),
		zap.Int64("duration_seconds", res.DurationSeconds))
}
