package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/xaenox/justask-bot/internal/models"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations embed.FS

const (
	busyRetries = 4
	busyBackoff = 50 * time.Millisecond
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// A single connection serializes writes; SQLite has one writer anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if err := s.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) initializeSchema() error {
	migrationSQL, err := sqliteMigrations.ReadFile("migrations_sqlite.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

// withRetry runs fn again after a short backoff when SQLite reports the
// database busy or locked, then gives up with ErrStorageUnavailable.
func (s *SQLiteStorage) withRetry(fn func() error) error {
	var err error
	backoff := busyBackoff
	for attempt := 0; attempt <= busyRetries; attempt++ {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func (s *SQLiteStorage) SetPreference(ctx context.Context, userID int64, key, value string) error {
	if !models.ValidPreferenceKey(key) {
		return ErrInvalidPreferenceKey
	}

	return s.withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO preferences (user_id, key, value, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			userID, key, value, time.Now())
		return err
	})
}

func (s *SQLiteStorage) GetPreferences(ctx context.Context, userID int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM preferences WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying preferences: %w", err)
	}
	defer rows.Close()

	prefs := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("error scanning preference: %w", err)
		}
		prefs[key] = value
	}
	return prefs, rows.Err()
}

func (s *SQLiteStorage) DeletePreference(ctx context.Context, userID int64, key string) error {
	return s.withRetry(func() error {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM preferences WHERE user_id = ? AND key = ?`, userID, key)
		return err
	})
}

func (s *SQLiteStorage) CreateReminder(ctx context.Context, r *models.Reminder) error {
	r.Status = models.ReminderPending
	r.CreatedAt = time.Now()

	return s.withRetry(func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO reminders (user_id, text, fire_at, status, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			r.UserID, r.Text, r.FireAt, r.Status, r.CreatedAt)
		if err != nil {
			return err
		}
		r.ID, err = res.LastInsertId()
		return err
	})
}

func (s *SQLiteStorage) GetReminder(ctx context.Context, id int64) (*models.Reminder, error) {
	r := &models.Reminder{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, text, fire_at, status, created_at
		FROM reminders WHERE id = ?`, id).
		Scan(&r.ID, &r.UserID, &r.Text, &r.FireAt, &r.Status, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying reminder: %w", err)
	}
	return r, nil
}

func (s *SQLiteStorage) ListReminders(ctx context.Context, userID int64) ([]*models.Reminder, error) {
	return s.queryReminders(ctx, `
		SELECT id, user_id, text, fire_at, status, created_at
		FROM reminders WHERE user_id = ? AND status = 'pending'
		ORDER BY fire_at`, userID)
}

func (s *SQLiteStorage) PendingReminders(ctx context.Context) ([]*models.Reminder, error) {
	return s.queryReminders(ctx, `
		SELECT id, user_id, text, fire_at, status, created_at
		FROM reminders WHERE status = 'pending'
		ORDER BY fire_at`)
}

func (s *SQLiteStorage) DueReminders(ctx context.Context, before time.Time) ([]*models.Reminder, error) {
	return s.queryReminders(ctx, `
		SELECT id, user_id, text, fire_at, status, created_at
		FROM reminders WHERE status = 'pending' AND fire_at <= ?
		ORDER BY fire_at`, before)
}

func (s *SQLiteStorage) queryReminders(ctx context.Context, query string, args ...any) ([]*models.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*models.Reminder
	for rows.Next() {
		r := &models.Reminder{}
		if err := rows.Scan(&r.ID, &r.UserID, &r.Text, &r.FireAt, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning reminder: %w", err)
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

func (s *SQLiteStorage) CountPendingReminders(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminders WHERE user_id = ? AND status = 'pending'`,
		userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting reminders: %w", err)
	}
	return count, nil
}

func (s *SQLiteStorage) MarkReminderFired(ctx context.Context, id int64) (bool, error) {
	return s.transition(ctx,
		`UPDATE reminders SET status = 'fired' WHERE id = ? AND status = 'pending'`, id)
}

func (s *SQLiteStorage) CancelReminder(ctx context.Context, id, userID int64) (bool, error) {
	return s.transition(ctx,
		`UPDATE reminders SET status = 'cancelled' WHERE id = ? AND user_id = ? AND status = 'pending'`,
		id, userID)
}

// transition runs a conditional status update. The WHERE status = 'pending'
// guard makes concurrent fire/cancel resolve to exactly one terminal state.
func (s *SQLiteStorage) transition(ctx context.Context, query string, args ...any) (bool, error) {
	var affected int64
	err := s.withRetry(func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SQLiteStorage) SaveFeedback(ctx context.Context, fb *models.FeedbackRecord) error {
	fb.CreatedAt = time.Now()

	return s.withRetry(func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO feedback (user_id, response_id, rating, created_at)
			VALUES (?, ?, ?, ?)`,
			fb.UserID, fb.ResponseID, fb.Rating, fb.CreatedAt)
		if err != nil {
			return err
		}
		fb.ID, err = res.LastInsertId()
		return err
	})
}

func (s *SQLiteStorage) AddKnowledge(ctx context.Context, k *models.KnowledgeItem) error {
	k.CreatedAt = time.Now()

	return s.withRetry(func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO knowledge (question, answer, created_at)
			VALUES (?, ?, ?)`,
			k.Question, k.Answer, k.CreatedAt)
		if err != nil {
			return err
		}
		k.ID, err = res.LastInsertId()
		return err
	})
}

func (s *SQLiteStorage) SearchKnowledge(ctx context.Context, query string, limit int) ([]*models.KnowledgeItem, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, answer, created_at
		FROM knowledge
		WHERE question LIKE ? OR answer LIKE ?
		ORDER BY created_at DESC
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("error searching knowledge: %w", err)
	}
	defer rows.Close()

	var items []*models.KnowledgeItem
	for rows.Next() {
		k := &models.KnowledgeItem{}
		if err := rows.Scan(&k.ID, &k.Question, &k.Answer, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning knowledge item: %w", err)
		}
		items = append(items, k)
	}
	return items, rows.Err()
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
