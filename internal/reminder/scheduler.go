// Package reminder schedules user reminders: it parses natural-language time
// expressions, persists pending reminders and delivers exactly one
// notification per reminder across one-shot timers, a periodic sweep and
// process restarts.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xaenox/justask-bot/internal/models"
	"github.com/xaenox/justask-bot/internal/storage"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when a reminder id is unknown, terminal, or
	// owned by another user.
	ErrNotFound = errors.New("reminder not found")

	// ErrTooManyReminders is returned when a user is at the pending cap.
	ErrTooManyReminders = errors.New("too many pending reminders")
)

// NotifyFunc delivers a fired reminder to the user. Invoked at most once per
// reminder.
type NotifyFunc func(r *models.Reminder)

type Scheduler struct {
	store      storage.Storage
	logger     *zap.Logger
	maxPerUser int

	mu     sync.Mutex
	notify NotifyFunc
	timers map[int64]*time.Timer

	cron *cron.Cron
}

func NewScheduler(store storage.Storage, maxPerUser int, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:      store,
		logger:     logger,
		maxPerUser: maxPerUser,
		timers:     make(map[int64]*time.Timer),
		cron:       cron.New(),
	}
}

// SetNotify registers the delivery callback. Must be called before Start.
func (s *Scheduler) SetNotify(fn NotifyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

// Start re-reads all pending reminders, re-arms timers for future ones and
// fires past-due ones immediately, then starts a periodic sweep that catches
// anything a timer missed.
func (s *Scheduler) Start(ctx context.Context) error {
	pending, err := s.store.PendingReminders(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending reminders: %w", err)
	}

	now := time.Now()
	rearmed, overdue := 0, 0
	for _, r := range pending {
		if r.FireAt.After(now) {
			s.arm(r)
			rearmed++
		} else {
			go s.fire(r)
			overdue++
		}
	}

	if _, err := s.cron.AddFunc("@every 1m", s.sweep); err != nil {
		return fmt.Errorf("failed to register reminder sweep: %w", err)
	}
	s.cron.Start()

	s.logger.Info("Reminder scheduler started",
		zap.Int("rearmed", rearmed),
		zap.Int("fired_overdue", overdue))
	return nil
}

// Stop halts the sweep and disarms all timers. Persisted state is untouched;
// the next Start picks pending reminders back up.
func (s *Scheduler) Stop() {
	s.cron.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// Schedule parses the trailing time expression in input, persists the
// reminder as pending and arms a one-shot timer for it.
func (s *Scheduler) Schedule(ctx context.Context, userID int64, input string) (*models.Reminder, error) {
	text, fireAt, err := Parse(input, time.Now())
	if err != nil {
		return nil, err
	}
	if text == "" {
		text = "Reminder"
	}

	count, err := s.store.CountPendingReminders(ctx, userID)
	if err != nil {
		return nil, err
	}
	if count >= s.maxPerUser {
		return nil, ErrTooManyReminders
	}

	r := &models.Reminder{
		UserID: userID,
		Text:   text,
		FireAt: fireAt,
	}
	if err := s.store.CreateReminder(ctx, r); err != nil {
		return nil, err
	}

	s.arm(r)

	s.logger.Info("Reminder scheduled",
		zap.Int64("reminder_id", r.ID),
		zap.Int64("user_id", userID),
		zap.Time("fire_at", fireAt))
	return r, nil
}

// Cancel transitions a pending reminder to cancelled and disarms its timer.
// The conditional store transition is what decides a race against expiry:
// whichever side flips the row wins, the other becomes a no-op.
func (s *Scheduler) Cancel(ctx context.Context, id, userID int64) error {
	ok, err := s.store.CancelReminder(ctx, id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	s.mu.Lock()
	if t, exists := s.timers[id]; exists {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.logger.Info("Reminder cancelled",
		zap.Int64("reminder_id", id),
		zap.Int64("user_id", userID))
	return nil
}

// List returns the user's pending reminders ordered by fire time.
func (s *Scheduler) List(ctx context.Context, userID int64) ([]*models.Reminder, error) {
	return s.store.ListReminders(ctx, userID)
}

func (s *Scheduler) arm(r *models.Reminder) {
	delay := time.Until(r.FireAt)
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[r.ID] = time.AfterFunc(delay, func() { s.fire(r) })
}

func (s *Scheduler) fire(r *models.Reminder) {
	s.mu.Lock()
	delete(s.timers, r.ID)
	notify := s.notify
	s.mu.Unlock()

	ok, err := s.store.MarkReminderFired(context.Background(), r.ID)
	if err != nil {
		s.logger.Error("Failed to mark reminder fired",
			zap.Error(err),
			zap.Int64("reminder_id", r.ID))
		return
	}
	if !ok {
		// Lost the race: cancelled, or already fired by the sweep.
		return
	}

	if notify != nil {
		notify(r)
	}

	s.logger.Info("Reminder fired",
		zap.Int64("reminder_id", r.ID),
		zap.Int64("user_id", r.UserID))
}

// sweep fires any pending reminder whose time has passed. Timers normally get
// there first; the conditional transition in fire keeps delivery single-shot.
func (s *Scheduler) sweep() {
	due, err := s.store.DueReminders(context.Background(), time.Now())
	if err != nil {
		s.logger.Error("Reminder sweep failed", zap.Error(err))
		return
	}

	for _, r := range due {
		s.fire(r)
	}
}
