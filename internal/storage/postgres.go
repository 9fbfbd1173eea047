package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/xaenox/justask-bot/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db}
	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := postgresMigrations.ReadFile("migrations_postgres.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

// withRetry retries serialization failures and deadlocks a bounded number of
// times before surfacing ErrStorageUnavailable.
func (s *PostgresStorage) withRetry(fn func() error) error {
	var err error
	backoff := busyBackoff
	for attempt := 0; attempt <= busyRetries; attempt++ {
		if err = fn(); err == nil || !isRetryable(err) {
			return err
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// serialization_failure, deadlock_detected
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

func (s *PostgresStorage) SetPreference(ctx context.Context, userID int64, key, value string) error {
	if !models.ValidPreferenceKey(key) {
		return ErrInvalidPreferenceKey
	}

	return s.withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO preferences (user_id, key, value, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
			userID, key, value, time.Now())
		return err
	})
}

func (s *PostgresStorage) GetPreferences(ctx context.Context, userID int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM preferences WHERE user_id = $1`, userID)
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

func (s *PostgresStorage) DeletePreference(ctx context.Context, userID int64, key string) error {
	return s.withRetry(func() error {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM preferences WHERE user_id = $1 AND key = $2`, userID, key)
		return err
	})
}

func (s *PostgresStorage) CreateReminder(ctx context.Context, r *models.Reminder) error {
	r.Status = models.ReminderPending

	return s.withRetry(func() error {
		return s.db.QueryRowContext(ctx, `
			INSERT INTO reminders (user_id, text, fire_at, status, created_at)
			VALUES ($1, $2, $3, $4, NOW())
			RETURNING id, created_at`,
			r.UserID, r.Text, r.FireAt, r.Status).
			Scan(&r.ID, &r.CreatedAt)
	})
}

func (s *PostgresStorage) GetReminder(ctx context.Context, id int64) (*models.Reminder, error) {
	r := &models.Reminder{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, text, fire_at, status, created_at
		FROM reminders WHERE id = $1`, id).
		Scan(&r.ID, &r.UserID, &r.Text, &r.FireAt, &r.Status, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying reminder: %w", err)
	}
	return r, nil
}

func (s *PostgresStorage) ListReminders(ctx context.Context, userID int64) ([]*models.Reminder, error) {
	return s.queryReminders(ctx, `
		SELECT id, user_id, text, fire_at, status, created_at
		FROM reminders WHERE user_id = $1 AND status = 'pending'
		ORDER BY fire_at`, userID)
}

func (s *PostgresStorage) PendingReminders(ctx context.Context) ([]*models.Reminder, error) {
	return s.queryReminders(ctx, `
		SELECT id, user_id, text, fire_at, status, created_at
		FROM reminders WHERE status = 'pending'
		ORDER BY fire_at`)
}

func (s *PostgresStorage) DueReminders(ctx context.Context, before time.Time) ([]*models.Reminder, error) {
	return s.queryReminders(ctx, `
		SELECT id, user_id, text, fire_at, status, created_at
		FROM reminders WHERE status = 'pending' AND fire_at <= $1
		ORDER BY fire_at`, before)
}

func (s *PostgresStorage) queryReminders(ctx context.Context, query string, args ...any) ([]*models.Reminder, error) {
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

func (s *PostgresStorage) CountPendingReminders(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminders WHERE user_id = $1 AND status = 'pending'`,
		userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting reminders: %w", err)
	}
	return count, nil
}

func (s *PostgresStorage) MarkReminderFired(ctx context.Context, id int64) (bool, error) {
	return s.transition(ctx,
		`UPDATE reminders SET status = 'fired' WHERE id = $1 AND status = 'pending'`, id)
}

func (s *PostgresStorage) CancelReminder(ctx context.Context, id, userID int64) (bool, error) {
	return s.transition(ctx,
		`UPDATE reminders SET status = 'cancelled' WHERE id = $1 AND user_id = $2 AND status = 'pending'`,
		id, userID)
}

func (s *PostgresStorage) transition(ctx context.Context, query string, args ...any) (bool, error) {
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

func (s *PostgresStorage) SaveFeedback(ctx context.Context, fb *models.FeedbackRecord) error {
	return s.withRetry(func() error {
		return s.db.QueryRowContext(ctx, `
			INSERT INTO feedback (user_id, response_id, rating, created_at)
			VALUES ($1, $2, $3, NOW())
			RETURNING id, created_at`,
			fb.UserID, fb.ResponseID, fb.Rating).
			Scan(&fb.ID, &fb.CreatedAt)
	})
}

func (s *PostgresStorage) AddKnowledge(ctx context.Context, k *models.KnowledgeItem) error {
	return s.withRetry(func() error {
		return s.db.QueryRowContext(ctx, `
			INSERT INTO knowledge (question, answer, created_at)
			VALUES ($1, $2, NOW())
			RETURNING id, created_at`,
			k.Question, k.Answer).
			Scan(&k.ID, &k.CreatedAt)
	})
}

func (s *PostgresStorage) SearchKnowledge(ctx context.Context, query string, limit int) ([]*models.KnowledgeItem, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, answer, created_at
		FROM knowledge
		WHERE question ILIKE $1 OR answer ILIKE $1
		ORDER BY created_at DESC
		LIMIT $2`, pattern, limit)
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

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
