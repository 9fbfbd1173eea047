package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xaenox/justask-bot/internal/models"
)

// MemoryStorage keeps everything in process memory. Used for tests and for
// running without a database file.
type MemoryStorage struct {
	mu          sync.RWMutex
	preferences map[int64]map[string]string
	reminders   map[int64]*models.Reminder
	feedback    []*models.FeedbackRecord
	knowledge   []*models.KnowledgeItem
	nextID      int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		preferences: make(map[int64]map[string]string),
		reminders:   make(map[int64]*models.Reminder),
	}
}

func (s *MemoryStorage) SetPreference(ctx context.Context, userID int64, key, value string) error {
	if !models.ValidPreferenceKey(key) {
		return ErrInvalidPreferenceKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, exists := s.preferences[userID]
	if !exists {
		prefs = make(map[string]string)
		s.preferences[userID] = prefs
	}
	prefs[key] = value
	return nil
}

func (s *MemoryStorage) GetPreferences(ctx context.Context, userID int64) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefs := make(map[string]string, len(s.preferences[userID]))
	for k, v := range s.preferences[userID] {
		prefs[k] = v
	}
	return prefs, nil
}

func (s *MemoryStorage) DeletePreference(ctx context.Context, userID int64, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.preferences[userID], key)
	return nil
}

func (s *MemoryStorage) CreateReminder(ctx context.Context, r *models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	r.ID = s.nextID
	r.Status = models.ReminderPending
	r.CreatedAt = time.Now()

	clone := *r
	s.reminders[r.ID] = &clone
	return nil
}

func (s *MemoryStorage) GetReminder(ctx context.Context, id int64) (*models.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.reminders[id]
	if !exists {
		return nil, nil
	}
	clone := *r
	return &clone, nil
}

func (s *MemoryStorage) ListReminders(ctx context.Context, userID int64) ([]*models.Reminder, error) {
	return s.filterReminders(func(r *models.Reminder) bool {
		return r.UserID == userID && r.Status == models.ReminderPending
	}), nil
}

func (s *MemoryStorage) PendingReminders(ctx context.Context) ([]*models.Reminder, error) {
	return s.filterReminders(func(r *models.Reminder) bool {
		return r.Status == models.ReminderPending
	}), nil
}

func (s *MemoryStorage) DueReminders(ctx context.Context, before time.Time) ([]*models.Reminder, error) {
	return s.filterReminders(func(r *models.Reminder) bool {
		return r.Status == models.ReminderPending && !r.FireAt.After(before)
	}), nil
}

func (s *MemoryStorage) filterReminders(keep func(*models.Reminder) bool) []*models.Reminder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var reminders []*models.Reminder
	for _, r := range s.reminders {
		if keep(r) {
			clone := *r
			reminders = append(reminders, &clone)
		}
	}
	sort.Slice(reminders, func(i, j int) bool {
		return reminders[i].FireAt.Before(reminders[j].FireAt)
	})
	return reminders
}

func (s *MemoryStorage) CountPendingReminders(ctx context.Context, userID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, r := range s.reminders {
		if r.UserID == userID && r.Status == models.ReminderPending {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStorage) MarkReminderFired(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.reminders[id]
	if !exists || r.Status != models.ReminderPending {
		return false, nil
	}
	r.Status = models.ReminderFired
	return true, nil
}

func (s *MemoryStorage) CancelReminder(ctx context.Context, id, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.reminders[id]
	if !exists || r.UserID != userID || r.Status != models.ReminderPending {
		return false, nil
	}
	r.Status = models.ReminderCancelled
	return true, nil
}

func (s *MemoryStorage) SaveFeedback(ctx context.Context, fb *models.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	fb.ID = s.nextID
	fb.CreatedAt = time.Now()

	clone := *fb
	s.feedback = append(s.feedback, &clone)
	return nil
}

func (s *MemoryStorage) AddKnowledge(ctx context.Context, k *models.KnowledgeItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	k.ID = s.nextID
	k.CreatedAt = time.Now()

	clone := *k
	s.knowledge = append(s.knowledge, &clone)
	return nil
}

func (s *MemoryStorage) SearchKnowledge(ctx context.Context, query string, limit int) ([]*models.KnowledgeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	var items []*models.KnowledgeItem
	for i := len(s.knowledge) - 1; i >= 0 && len(items) < limit; i-- {
		k := s.knowledge[i]
		if strings.Contains(strings.ToLower(k.Question), needle) ||
			strings.Contains(strings.ToLower(k.Answer), needle) {
			clone := *k
			items = append(items, &clone)
		}
	}
	return items, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
