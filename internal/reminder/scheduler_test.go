package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xaenox/justask-bot/internal/models"
	"github.com/xaenox/justask-bot/internal/storage"
	"go.uber.org/zap"
)

func newTestScheduler(t *testing.T, maxPerUser int) (*Scheduler, *storage.MemoryStorage, chan *models.Reminder) {
	t.Helper()

	store := storage.NewMemoryStorage()
	s := NewScheduler(store, maxPerUser, zap.NewNop())

	fired := make(chan *models.Reminder, 16)
	s.SetNotify(func(r *models.Reminder) { fired <- r })
	t.Cleanup(s.Stop)

	return s, store, fired
}

func waitFired(t *testing.T, fired chan *models.Reminder, timeout time.Duration) *models.Reminder {
	t.Helper()
	select {
	case r := <-fired:
		return r
	case <-time.After(timeout):
		t.Fatal("reminder did not fire in time")
		return nil
	}
}

func TestScheduleFiresOnce(t *testing.T) {
	s, store, fired := newTestScheduler(t, 10)
	ctx := context.Background()

	r, err := s.Schedule(ctx, 1, "call John in 1 second")
	if err != nil {
		t.Fatal(err)
	}
	if r.Text != "call John" {
		t.Errorf("text = %q, want %q", r.Text, "call John")
	}

	got := waitFired(t, fired, 3*time.Second)
	if got.ID != r.ID {
		t.Errorf("fired reminder %d, want %d", got.ID, r.ID)
	}

	stored, err := store.GetReminder(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.ReminderFired {
		t.Errorf("status = %q, want fired", stored.Status)
	}

	select {
	case extra := <-fired:
		t.Errorf("reminder %d delivered twice", extra.ID)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestScheduleUnparseable(t *testing.T) {
	s, _, _ := newTestScheduler(t, 10)

	if _, err := s.Schedule(context.Background(), 1, "call John eventually"); !errors.Is(err, ErrUnparseableTime) {
		t.Fatalf("expected ErrUnparseableTime, got %v", err)
	}
}

func TestSchedulePendingCap(t *testing.T) {
	s, _, _ := newTestScheduler(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := s.Schedule(ctx, 1, "task in 1 hour"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Schedule(ctx, 1, "one too many in 1 hour"); !errors.Is(err, ErrTooManyReminders) {
		t.Fatalf("expected ErrTooManyReminders, got %v", err)
	}

	// The cap is per user.
	if _, err := s.Schedule(ctx, 2, "other user in 1 hour"); err != nil {
		t.Fatalf("other user must not be capped: %v", err)
	}
}

func TestCancelSuppressesDelivery(t *testing.T) {
	s, store, fired := newTestScheduler(t, 10)
	ctx := context.Background()

	r, err := s.Schedule(ctx, 1, "do not deliver in 1 second")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Cancel(ctx, r.ID, 1); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-fired:
		t.Fatalf("cancelled reminder %d was delivered", got.ID)
	case <-time.After(2 * time.Second):
	}

	stored, err := store.GetReminder(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.ReminderCancelled {
		t.Errorf("status = %q, want cancelled", stored.Status)
	}
}

func TestCancelErrors(t *testing.T) {
	s, _, _ := newTestScheduler(t, 10)
	ctx := context.Background()

	if err := s.Cancel(ctx, 999, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: got %v, want ErrNotFound", err)
	}

	r, err := s.Schedule(ctx, 1, "mine in 1 hour")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Cancel(ctx, r.ID, 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("other user's reminder: got %v, want ErrNotFound", err)
	}

	if err := s.Cancel(ctx, r.ID, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Cancel(ctx, r.ID, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("second cancel: got %v, want ErrNotFound", err)
	}
}

func TestStartFiresOverdueAndRearmsFuture(t *testing.T) {
	s, store, fired := newTestScheduler(t, 10)
	ctx := context.Background()

	overdue := &models.Reminder{UserID: 1, Text: "missed while down", FireAt: time.Now().Add(-time.Hour)}
	if err := store.CreateReminder(ctx, overdue); err != nil {
		t.Fatal(err)
	}
	future := &models.Reminder{UserID: 1, Text: "soon", FireAt: time.Now().Add(time.Second)}
	if err := store.CreateReminder(ctx, future); err != nil {
		t.Fatal(err)
	}

	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}

	seen := map[int64]bool{}
	seen[waitFired(t, fired, 3*time.Second).ID] = true
	seen[waitFired(t, fired, 3*time.Second).ID] = true

	if !seen[overdue.ID] {
		t.Error("overdue reminder was not fired on start")
	}
	if !seen[future.ID] {
		t.Error("future reminder was not re-armed on start")
	}
}

func TestConcurrentCancelAndFireIsSingleShot(t *testing.T) {
	s, store, fired := newTestScheduler(t, 100)
	ctx := context.Background()

	// Race Cancel against the timer at the moment it goes off. Whatever the
	// interleaving, the outcome must be exactly one of delivered or cancelled.
	for i := 0; i < 20; i++ {
		r, err := s.Schedule(ctx, 1, "race in 1 second")
		if err != nil {
			t.Fatal(err)
		}

		time.Sleep(time.Second)
		cancelErr := s.Cancel(ctx, r.ID, 1)

		var delivered bool
		select {
		case <-fired:
			delivered = true
		case <-time.After(500 * time.Millisecond):
		}

		cancelled := cancelErr == nil
		if cancelled == delivered {
			t.Fatalf("reminder %d: cancelled=%v delivered=%v, want exactly one", r.ID, cancelled, delivered)
		}
		if cancelErr != nil && !errors.Is(cancelErr, ErrNotFound) {
			t.Fatalf("unexpected cancel error: %v", cancelErr)
		}

		stored, err := store.GetReminder(ctx, r.ID)
		if err != nil {
			t.Fatal(err)
		}
		if stored.Status == models.ReminderPending {
			t.Fatalf("reminder %d left pending", r.ID)
		}
	}
}
