package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xaenox/justask-bot/internal/models"
)

// backends returns every Storage implementation the suite can run without
// external services.
func backends(t *testing.T) map[string]Storage {
	t.Helper()

	sqlite, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite storage: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Storage{
		"memory": NewMemoryStorage(),
		"sqlite": sqlite,
	}
}

func forEachBackend(t *testing.T, test func(t *testing.T, store Storage)) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) { test(t, store) })
	}
}

func TestPreferences(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Storage) {
		ctx := context.Background()

		prefs, err := store.GetPreferences(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(prefs) != 0 {
			t.Errorf("expected no preferences, got %v", prefs)
		}

		if err := store.SetPreference(ctx, 1, "tone", "formal"); err != nil {
			t.Fatal(err)
		}
		// Last write wins.
		if err := store.SetPreference(ctx, 1, "tone", "casual"); err != nil {
			t.Fatal(err)
		}
		if err := store.SetPreference(ctx, 1, "language", "spanish"); err != nil {
			t.Fatal(err)
		}

		prefs, err = store.GetPreferences(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if prefs["tone"] != "casual" || prefs["language"] != "spanish" {
			t.Errorf("unexpected preferences: %v", prefs)
		}

		if err := store.SetPreference(ctx, 1, "favourite_colour", "red"); !errors.Is(err, ErrInvalidPreferenceKey) {
			t.Errorf("invalid key: got %v, want ErrInvalidPreferenceKey", err)
		}

		if err := store.DeletePreference(ctx, 1, "tone"); err != nil {
			t.Fatal(err)
		}
		// Deleting an absent key is a no-op.
		if err := store.DeletePreference(ctx, 1, "tone"); err != nil {
			t.Fatal(err)
		}

		prefs, err = store.GetPreferences(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := prefs["tone"]; ok {
			t.Error("deleted preference still present")
		}
		if prefs["language"] != "spanish" {
			t.Error("unrelated preference lost on delete")
		}
	})
}

func TestPreferencesAreScopedPerUser(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Storage) {
		ctx := context.Background()

		if err := store.SetPreference(ctx, 1, "tone", "formal"); err != nil {
			t.Fatal(err)
		}
		prefs, err := store.GetPreferences(ctx, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(prefs) != 0 {
			t.Errorf("user 2 sees user 1's preferences: %v", prefs)
		}
	})
}

func TestReminderLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Storage) {
		ctx := context.Background()
		fireAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

		r := &models.Reminder{UserID: 1, Text: "call John", FireAt: fireAt}
		if err := store.CreateReminder(ctx, r); err != nil {
			t.Fatal(err)
		}
		if r.ID == 0 {
			t.Fatal("CreateReminder did not assign an id")
		}
		if r.Status != models.ReminderPending {
			t.Errorf("status = %q, want pending", r.Status)
		}

		got, err := store.GetReminder(ctx, r.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got == nil || got.Text != "call John" || !got.FireAt.Equal(fireAt) {
			t.Errorf("unexpected reminder: %+v", got)
		}

		list, err := store.ListReminders(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 1 || list[0].ID != r.ID {
			t.Errorf("unexpected list: %+v", list)
		}

		count, err := store.CountPendingReminders(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if count != 1 {
			t.Errorf("count = %d, want 1", count)
		}

		ok, err := store.MarkReminderFired(ctx, r.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatal("first MarkReminderFired returned false")
		}
		// Terminal state; a second transition must report false.
		ok, err = store.MarkReminderFired(ctx, r.ID)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Error("second MarkReminderFired returned true")
		}

		ok, err = store.CancelReminder(ctx, r.ID, 1)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Error("cancel of a fired reminder returned true")
		}

		list, err = store.ListReminders(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 0 {
			t.Errorf("fired reminder still listed: %+v", list)
		}
	})
}

func TestCancelReminderOwnership(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Storage) {
		ctx := context.Background()

		r := &models.Reminder{UserID: 1, Text: "mine", FireAt: time.Now().Add(time.Hour)}
		if err := store.CreateReminder(ctx, r); err != nil {
			t.Fatal(err)
		}

		ok, err := store.CancelReminder(ctx, r.ID, 2)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Error("another user cancelled the reminder")
		}

		ok, err = store.CancelReminder(ctx, r.ID, 1)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Error("owner could not cancel the reminder")
		}
	})
}

func TestDueReminders(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Storage) {
		ctx := context.Background()
		now := time.Now().UTC()

		past := &models.Reminder{UserID: 1, Text: "past", FireAt: now.Add(-time.Hour)}
		future := &models.Reminder{UserID: 1, Text: "future", FireAt: now.Add(time.Hour)}
		for _, r := range []*models.Reminder{past, future} {
			if err := store.CreateReminder(ctx, r); err != nil {
				t.Fatal(err)
			}
		}

		due, err := store.DueReminders(ctx, now)
		if err != nil {
			t.Fatal(err)
		}
		if len(due) != 1 || due[0].ID != past.ID {
			t.Errorf("unexpected due reminders: %+v", due)
		}

		pending, err := store.PendingReminders(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(pending) != 2 {
			t.Errorf("expected 2 pending reminders, got %d", len(pending))
		}
		if pending[0].ID != past.ID {
			t.Errorf("pending reminders not ordered by fire time: %+v", pending)
		}
	})
}

func TestGetReminderUnknown(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Storage) {
		got, err := store.GetReminder(context.Background(), 12345)
		if err != nil {
			t.Fatal(err)
		}
		if got != nil {
			t.Errorf("expected nil for unknown id, got %+v", got)
		}
	})
}

func TestSaveFeedback(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Storage) {
		fb := &models.FeedbackRecord{UserID: 1, ResponseID: "abc-123", Rating: 1}
		if err := store.SaveFeedback(context.Background(), fb); err != nil {
			t.Fatal(err)
		}
		if fb.ID == 0 {
			t.Error("SaveFeedback did not assign an id")
		}
	})
}

func TestKnowledge(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Storage) {
		ctx := context.Background()

		items := []*models.KnowledgeItem{
			{Question: "What is Just Ask AI?", Answer: "A Telegram assistant bot."},
			{Question: "Who maintains the bot?", Answer: "The Just Ask AI team."},
			{Question: "What is Go?", Answer: "A programming language."},
		}
		for _, k := range items {
			if err := store.AddKnowledge(ctx, k); err != nil {
				t.Fatal(err)
			}
		}

		got, err := store.SearchKnowledge(ctx, "Just Ask", 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 matches, got %d: %+v", len(got), got)
		}

		got, err = store.SearchKnowledge(ctx, "Just Ask", 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 {
			t.Errorf("limit not honored, got %d items", len(got))
		}

		got, err = store.SearchKnowledge(ctx, "quantum physics", 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("expected no matches, got %+v", got)
		}
	})
}
