package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/manseok-song/readlock-sub000/internal/locker"
	"github.com/manseok-song/readlock-sub000/internal/rewards"
)

// Store is the durable local persistence for the active slot, the
// pending-sync queue and the history cache. Writes complete before returning.
type Store interface {
	Active(ctx context.Context) (*ReadingSession, error)
	PutActive(ctx context.Context, s ReadingSession) error
	ClearActive(ctx context.Context) error
	EnqueuePending(ctx context.Context, rec PendingRecord) error
	CacheHistory(ctx context.Context, e HistoryEntry) error
}

// Remote is the boundary to the authoritative reading service.
type Remote interface {
	Create(ctx context.Context, s ReadingSession) (string, error)
	Finalize(ctx context.Context, id string, endPage int, focusScore float64) (Result, error)
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Active(ctx context.Context) (*ReadingSession, error)
}

// Locker issues commands to the native phone-lock collaborator.
type Locker interface {
	Start(sessionID, displayTitle string)
	Pause()
	Resume()
	Stop()
}

// Trigger kicks the sync orchestrator opportunistically.
type Trigger interface {
	Trigger()
}

// Archiver records completed sessions in the durable history archive.
type Archiver interface {
	Archive(ctx context.Context, e HistoryEntry) error
}

// Service is the session state machine. All transitions persist to the store
// before returning; a single mutex serializes them so concurrent starts
// resolve to exactly one active session.
type Service struct {
	store    Store
	remote   Remote
	locker   Locker
	syncer   Trigger
	archiver Archiver
	log      *zap.Logger
	now      func() time.Time
	mu       sync.Mutex
}

func NewService(store Store, remote Remote, lk Locker, syncer Trigger, archiver Archiver, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:    store,
		remote:   remote,
		locker:   lk,
		syncer:   syncer,
		archiver: archiver,
		log:      log,
		now:      time.Now,
	}
}

func (s *Service) StartSession(ctx context.Context, libraryEntryID string, startPage int, title string) (ReadingSession, error) {
	if libraryEntryID == "" {
		return ReadingSession{}, fmt.Errorf("%w: library entry id required", ErrValidation)
	}
	if startPage < 0 {
		return ReadingSession{}, fmt.Errorf("%w: start page must not be negative", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.store.Active(ctx)
	if err != nil {
		return ReadingSession{}, err
	}
	if active != nil {
		return ReadingSession{}, ErrAlreadyActive
	}

	now := s.now()
	sess := ReadingSession{
		LibraryEntryID: libraryEntryID,
		Title:          title,
		Status:         StatusActive,
		StartTime:      now,
		StartPage:      startPage,
	}

	id, err := s.remote.Create(ctx, sess)
	switch {
	case err == nil:
		sess.ID = id
	case IsRetryable(err):
		sess.ID = OfflineIDPrefix + uuid.NewString()
		sess.IsOffline = true
		sess.NeedsSync = true
		// enqueue right away so a crash before reconnection cannot lose it
		rec := PendingRecord{
			Session:        sess,
			IdempotencyKey: idempotencyKey(sess),
			EnqueuedAt:     now,
		}
		if err := s.store.EnqueuePending(ctx, rec); err != nil {
			return ReadingSession{}, err
		}
		s.log.Info("authority unreachable, session started offline",
			zap.String("session_id", sess.ID), zap.Error(err))
	default:
		return ReadingSession{}, err
	}

	if err := s.store.PutActive(ctx, sess); err != nil {
		return ReadingSession{}, err
	}
	if s.locker != nil {
		s.locker.Start(sess.ID, title)
	}
	return sess, nil
}

// PauseSession freezes the timer. A no-op when idle or already paused.
func (s *Service) PauseSession(ctx context.Context) (*ReadingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.store.Active(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil || active.Status == StatusPaused {
		return active, nil
	}

	active.Status = StatusPaused
	active.PausedAt = s.now()
	if err := s.store.PutActive(ctx, *active); err != nil {
		return nil, err
	}

	if !active.IsOffline {
		if err := s.remote.Pause(ctx, active.ID); err != nil {
			s.log.Warn("remote pause failed, local state stands",
				zap.String("session_id", active.ID), zap.Error(err))
		}
	}
	if s.locker != nil {
		s.locker.Pause()
	}
	return active, nil
}

// ResumeSession folds the pause interval into TotalPause and restarts the
// timer. A no-op when idle or not paused.
func (s *Service) ResumeSession(ctx context.Context) (*ReadingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.store.Active(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil || active.Status != StatusPaused {
		return active, nil
	}

	active.TotalPause += s.now().Sub(active.PausedAt)
	active.PausedAt = time.Time{}
	active.Status = StatusActive
	if err := s.store.PutActive(ctx, *active); err != nil {
		return nil, err
	}

	if !active.IsOffline {
		if err := s.remote.Resume(ctx, active.ID); err != nil {
			s.log.Warn("remote resume failed, local state stands",
				zap.String("session_id", active.ID), zap.Error(err))
		}
	}
	if s.locker != nil {
		s.locker.Resume()
	}
	return active, nil
}

func (s *Service) EndSession(ctx context.Context, endPage int, focusScore float64) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.store.Active(ctx)
	if err != nil {
		return Result{}, err
	}
	if active == nil {
		return Result{}, ErrNoActiveSession
	}
	if endPage < active.StartPage {
		return Result{}, fmt.Errorf("%w: end page %d before start page %d", ErrValidation, endPage, active.StartPage)
	}

	now := s.now()
	if active.Status == StatusPaused {
		active.TotalPause += now.Sub(active.PausedAt)
		active.PausedAt = time.Time{}
	}

	prev := *active
	active.Status = StatusEnding
	active.EndTime = now
	active.EndPage = endPage
	active.FocusScore = focusScore
	if err := s.store.PutActive(ctx, *active); err != nil {
		return Result{}, err
	}

	durationSeconds := int64(active.Elapsed(now).Seconds())
	pagesRead := endPage - active.StartPage

	if active.IsOffline {
		// the authority never saw this session; it replays whole on sync
		return s.finishOffline(ctx, *active, durationSeconds, pagesRead)
	}

	res, err := s.remote.Finalize(ctx, active.ID, endPage, focusScore)
	switch {
	case err == nil:
		if err := s.complete(ctx, *active, res); err != nil {
			return Result{}, err
		}
		return res, nil
	case IsRetryable(err):
		active.NeedsSync = true
		s.log.Info("authority unreachable, session ended offline",
			zap.String("session_id", active.ID), zap.Error(err))
		return s.finishOffline(ctx, *active, durationSeconds, pagesRead)
	default:
		// terminal: keep the session alive so the caller can correct and retry
		prev.Status = StatusActive
		if putErr := s.store.PutActive(ctx, prev); putErr != nil {
			s.log.Error("restoring session after terminal finalize failed", zap.Error(putErr))
		}
		return Result{}, err
	}
}

// finishOffline computes the estimated result, queues the record for replay
// and clears the active slot so the UI proceeds as if complete.
func (s *Service) finishOffline(ctx context.Context, sess ReadingSession, durationSeconds int64, pagesRead int) (Result, error) {
	res := Result{
		SessionID:       sess.ID,
		DurationSeconds: durationSeconds,
		PagesRead:       pagesRead,
		Rewards:         rewards.Estimate(durationSeconds, pagesRead),
		IsOffline:       true,
	}

	rec := PendingRecord{
		Session:        sess,
		EndPage:        sess.EndPage,
		FocusScore:     sess.FocusScore,
		Completed:      true,
		IdempotencyKey: idempotencyKey(sess),
		EnqueuedAt:     s.now(),
	}
	if err := s.store.EnqueuePending(ctx, rec); err != nil {
		return Result{}, err
	}
	if err := s.complete(ctx, sess, res); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (s *Service) complete(ctx context.Context, sess ReadingSession, res Result) error {
	if err := s.store.ClearActive(ctx); err != nil {
		return err
	}
	entry := NewHistoryEntry(sess, res)
	if err := s.store.CacheHistory(ctx, entry); err != nil {
		s.log.Warn("history cache write failed", zap.Error(err))
	}
	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, entry); err != nil {
			s.log.Warn("history archive write failed", zap.Error(err))
		}
	}
	if s.locker != nil {
		s.locker.Stop()
	}
	if s.syncer != nil {
		s.syncer.Trigger()
	}
	return nil
}

// ActiveSession reads through to the store so the answer survives restarts.
func (s *Service) ActiveSession(ctx context.Context) (*ReadingSession, error) {
	return s.store.Active(ctx)
}

// RecoverRemote adopts a session the authority still considers active when
// the local slot is empty, e.g. after a reinstall.
func (s *Service) RecoverRemote(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.store.Active(ctx)
	if err != nil || active != nil {
		return err
	}

	remote, err := s.remote.Active(ctx)
	if err != nil || remote == nil {
		if err != nil && !IsRetryable(err) {
			return err
		}
		return nil
	}
	remote.Status = StatusActive
	s.log.Info("adopting active session from authority", zap.String("session_id", remote.ID))
	return s.store.PutActive(ctx, *remote)
}

const heartbeatDriftTolerance = 30 * time.Second

// HandleLockerEvent consumes the native lock service status stream. The
// heartbeat elapsed value is a trusted correction hint, never the source of
// truth for duration.
func (s *Service) HandleLockerEvent(ctx context.Context, ev locker.Event) {
	switch ev.Status {
	case locker.StatusHeartbeat:
		s.mu.Lock()
		defer s.mu.Unlock()
		active, err := s.store.Active(ctx)
		if err != nil || active == nil || active.ID != ev.SessionID {
			return
		}
		now := s.now()
		derived := active.Elapsed(now)
		hint := time.Duration(ev.ElapsedSeconds) * time.Second
		if diff := derived - hint; diff > heartbeatDriftTolerance || diff < -heartbeatDriftTolerance {
			s.log.Warn("lock service elapsed drifts from derived duration",
				zap.Duration("derived", derived), zap.Duration("reported", hint))
		}
		active.LastHeartbeat = now
		active.ElapsedHint = ev.ElapsedSeconds
		if err := s.store.PutActive(ctx, *active); err != nil {
			s.log.Warn("heartbeat persist failed", zap.Error(err))
		}
	case locker.StatusStopped:
		// the native side cannot report an end page; pause and let the user finish
		if _, err := s.PauseSession(ctx); err != nil {
			s.log.Warn("pause after external stop failed", zap.Error(err))
		}
	default:
		s.log.Debug("lock service ack", zap.String("status", ev.Status), zap.String("session_id", ev.SessionID))
	}
}

func idempotencyKey(s ReadingSession) string {
	seed := s.LibraryEntryID + "|" + s.StartTime.UTC().Format(time.RFC3339Nano) + "|" + s.ID
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}
