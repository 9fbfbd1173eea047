package storage

import (
	"context"
	"errors"
	"time"

	"github.com/xaenox/justask-bot/internal/models"
)

var (
	// ErrInvalidPreferenceKey is returned when a preference key is outside
	// the enumerated set.
	ErrInvalidPreferenceKey = errors.New("invalid preference key")

	// ErrStorageUnavailable is returned after bounded retries against a
	// contended backend have been exhausted.
	ErrStorageUnavailable = errors.New("storage temporarily unavailable")
)

// Storage persists preferences, reminders, feedback and learned knowledge.
// Every method is a single atomic operation; callers never span a lock over
// more than one call.
type Storage interface {
	SetPreference(ctx context.Context, userID int64, key, value string) error
	GetPreferences(ctx context.Context, userID int64) (map[string]string, error)
	DeletePreference(ctx context.Context, userID int64, key string) error

	CreateReminder(ctx context.Context, r *models.Reminder) error
	GetReminder(ctx context.Context, id int64) (*models.Reminder, error)
	ListReminders(ctx context.Context, userID int64) ([]*models.Reminder, error)
	PendingReminders(ctx context.Context) ([]*models.Reminder, error)
	DueReminders(ctx context.Context, before time.Time) ([]*models.Reminder, error)
	CountPendingReminders(ctx context.Context, userID int64) (int, error)

	// MarkReminderFired transitions pending -> fired and reports whether
	// this call won the transition. A false result means another path
	// (cancel, or an earlier fire) already made the reminder terminal.
	MarkReminderFired(ctx context.Context, id int64) (bool, error)

	// CancelReminder transitions pending -> cancelled for a reminder owned
	// by userID, reporting whether the transition happened.
	CancelReminder(ctx context.Context, id, userID int64) (bool, error)

	SaveFeedback(ctx context.Context, fb *models.FeedbackRecord) error

	AddKnowledge(ctx context.Context, k *models.KnowledgeItem) error
	SearchKnowledge(ctx context.Context, query string, limit int) ([]*models.KnowledgeItem, error)

	Close() error
}
