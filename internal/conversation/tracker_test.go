package conversation

import (
	"fmt"
	"testing"

	"github.com/xaenox/justask-bot/internal/models"
)

func TestTrackerKeepsOrder(t *testing.T) {
	tr := NewTracker(10)
	tr.Append(1, models.RoleUser, "hello")
	tr.Append(1, models.RoleAssistant, "hi there")
	tr.Append(1, models.RoleUser, "how are you")

	got := tr.Get(1)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Text != "hello" || got[2].Text != "how are you" {
		t.Errorf("entries out of order: %+v", got)
	}
	if got[0].Role != models.RoleUser || got[1].Role != models.RoleAssistant {
		t.Errorf("roles not preserved: %+v", got)
	}
}

func TestTrackerTrimsToBound(t *testing.T) {
	tr := NewTracker(4)
	for i := 0; i < 10; i++ {
		tr.Append(1, models.RoleUser, fmt.Sprintf("message %d", i))
	}

	got := tr.Get(1)
	if len(got) != 4 {
		t.Fatalf("expected 4 entries after trimming, got %d", len(got))
	}
	if got[0].Text != "message 6" || got[3].Text != "message 9" {
		t.Errorf("expected the newest entries to survive, got %+v", got)
	}
}

func TestTrackerUsersAreIndependent(t *testing.T) {
	tr := NewTracker(5)
	tr.Append(1, models.RoleUser, "from user one")
	tr.Append(2, models.RoleUser, "from user two")

	if got := tr.Get(1); len(got) != 1 || got[0].Text != "from user one" {
		t.Errorf("user 1 history wrong: %+v", got)
	}
	if got := tr.Get(2); len(got) != 1 || got[0].Text != "from user two" {
		t.Errorf("user 2 history wrong: %+v", got)
	}
}

func TestTrackerReset(t *testing.T) {
	tr := NewTracker(5)
	tr.Append(1, models.RoleUser, "hello")
	tr.Append(2, models.RoleUser, "untouched")

	tr.Reset(1)

	if got := tr.Get(1); len(got) != 0 {
		t.Errorf("expected empty history after reset, got %+v", got)
	}
	if got := tr.Get(2); len(got) != 1 {
		t.Errorf("reset must not touch other users, got %+v", got)
	}
}

func TestTrackerGetReturnsCopy(t *testing.T) {
	tr := NewTracker(5)
	tr.Append(1, models.RoleUser, "original")

	got := tr.Get(1)
	got[0].Text = "mutated"

	if fresh := tr.Get(1); fresh[0].Text != "original" {
		t.Errorf("mutating the returned slice leaked into the tracker: %+v", fresh)
	}
}
