package models

import "time"

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContextEntry is a single turn of the bounded per-user conversation history.
type ContextEntry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// PreferenceKeys is the fixed set of keys a user may set.
var PreferenceKeys = []string{"language", "tone", "length", "expertise", "interests"}

// DefaultPreferences holds the values that are implied when a user has not set
// a key. Defaults are not rendered into prompts.
var DefaultPreferences = map[string]string{
	"language":  "english",
	"tone":      "neutral",
	"length":    "medium",
	"expertise": "intermediate",
	"interests": "",
}

// ValidPreferenceKey reports whether key belongs to the enumerated set.
func ValidPreferenceKey(key string) bool {
	for _, k := range PreferenceKeys {
		if k == key {
			return true
		}
	}
	return false
}

// ReminderStatus is the lifecycle state of a reminder.
type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderFired     ReminderStatus = "fired"
	ReminderCancelled ReminderStatus = "cancelled"
)

// Reminder is a user-scheduled future notification.
type Reminder struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"user_id"`
	Text      string         `json:"text"`
	FireAt    time.Time      `json:"fire_at"`
	Status    ReminderStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// FeedbackRecord is an append-only rating a user gave to one response.
type FeedbackRecord struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	ResponseID string    `json:"response_id"`
	Rating     int       `json:"rating"`
	CreatedAt  time.Time `json:"created_at"`
}

// KnowledgeItem is a learned question/answer pair used to ground /ask prompts.
type KnowledgeItem struct {
	ID        int64     `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}
