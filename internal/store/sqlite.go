package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/lingua-lessons/internal/domain"
	"github.com/ashureev/lingua-lessons/internal/shared"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// orphanGrace keeps in-flight turns out of the orphan count.
const orphanGrace = 5 * time.Minute

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sqlx.DB
	writeMu sync.Mutex // serializes writers to avoid SQLITE_BUSY under WAL
}

var (
	_ Repository    = (*SQLiteStore)(nil)
	_ OrphanCounter = (*SQLiteStore)(nil)
)

type sessionRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	Topic     string `db:"topic"`
	Level     string `db:"level"`
	Status    string `db:"status"`
	CreatedAt int64  `db:"created_at"`
}

func (r sessionRow) toDomain() *domain.LessonSession {
	return &domain.LessonSession{
		ID:        r.ID,
		UserID:    r.UserID,
		Topic:     r.Topic,
		Level:     domain.Level(r.Level),
		Status:    domain.Status(r.Status),
		CreatedAt: time.Unix(0, r.CreatedAt),
	}
}

type messageRow struct {
	ID        string `db:"id"`
	SessionID string `db:"session_id"`
	Role      string `db:"role"`
	Content   string `db:"content"`
	CreatedAt int64  `db:"created_at"`
}

func (r messageRow) toDomain() domain.Message {
	return domain.Message{
		ID:        r.ID,
		SessionID: r.SessionID,
		Role:      domain.Role(r.Role),
		Content:   r.Content,
		CreatedAt: time.Unix(0, r.CreatedAt),
	}
}

type snapshotRow struct {
	UserID        string  `db:"user_id"`
	Vocabulary    float64 `db:"vocabulary_accuracy"`
	Grammar       float64 `db:"grammar_accuracy"`
	Pronunciation float64 `db:"pronunciation_score"`
	Fluency       float64 `db:"fluency_score"`
	CreatedAt     int64   `db:"created_at"`
}

// NewSQLite creates a new SQLite-backed repository. dbPath ":memory:"
// opens a private in-memory database on a single connection.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath
	inMemory := dbPath == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if inMemory {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA foreign_keys = ON;
	CREATE TABLE IF NOT EXISTS lesson_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		level TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'completed')),
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_lesson_sessions_user ON lesson_sessions(user_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS lesson_messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL REFERENCES lesson_sessions(id),
		role TEXT NOT NULL CHECK (role IN ('user', 'ai')),
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	DROP INDEX IF EXISTS idx_lesson_messages_session;
	CREATE INDEX IF NOT EXISTS idx_lesson_messages_session_seq ON lesson_messages(session_id, seq);

	CREATE TABLE IF NOT EXISTS performance_analytics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		vocabulary_accuracy REAL NOT NULL,
		grammar_accuracy REAL NOT NULL,
		pronunciation_score REAL NOT NULL,
		fluency_score REAL NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_performance_user ON performance_analytics(user_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS user_profiles (
		user_id TEXT PRIMARY KEY,
		proficiency_level TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// withRetry runs op under the write lock, retrying SQLite busy errors
// with exponential backoff.
func (s *SQLiteStore) withRetry(ctx context.Context, name string, op func() error) error {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		s.writeMu.Lock()
		err = op()
		s.writeMu.Unlock()

		if err == nil || !shared.IsSQLiteConflictError(err) {
			return err
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 50ms, 100ms, 200ms
			slog.Debug("SQLite write busy, retrying", "op", name, "attempt", i+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", name, maxRetries, err)
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateSession inserts a new lesson session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.LessonSession) error {
	if session.Status == "" {
		session.Status = domain.StatusActive
	}
	return s.withRetry(ctx, "create session", func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO lesson_sessions (id, user_id, topic, level, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			session.ID, session.UserID, session.Topic, string(session.Level), string(session.Status), session.CreatedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
}

// ListSessions returns the user's sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, userID string) ([]*domain.LessonSession, error) {
	var rows []sessionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, topic, level, status, created_at
		FROM lesson_sessions WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	sessions := make([]*domain.LessonSession, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, r.toDomain())
	}
	return sessions, nil
}

// GetSession loads a session and its transcript.
func (s *SQLiteStore) GetSession(ctx context.Context, id, userID string) (*domain.LessonSession, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, topic, level, status, created_at
		FROM lesson_sessions WHERE id = ? AND user_id = ?`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session := row.toDomain()
	messages, err := s.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Messages = messages
	return session, nil
}

// UpdateStatus performs the one-way active -> completed transition.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id, userID string, status domain.Status) (bool, error) {
	if status != domain.StatusCompleted {
		return false, ErrInvalidTransition
	}

	var changed bool
	err := s.withRetry(ctx, "update status", func() error {
		result, err := s.db.ExecContext(ctx,
			`UPDATE lesson_sessions SET status = ? WHERE id = ? AND user_id = ? AND status = ?`,
			string(domain.StatusCompleted), id, userID, string(domain.StatusActive),
		)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		changed = rows > 0
		return nil
	})
	if err != nil || changed {
		return changed, err
	}

	// Zero rows: either already completed (idempotent) or not ours.
	var exists int
	err = s.db.GetContext(ctx, &exists, `SELECT COUNT(*) FROM lesson_sessions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		slog.Warn("UpdateStatus affected 0 rows", "session_id", id, "user_id", userID)
		return false, ErrSessionNotFound
	}
	return false, nil
}

// InsertMessage appends a message to a session.
func (s *SQLiteStore) InsertMessage(ctx context.Context, sessionID string, role domain.Role, content string) (*domain.Message, error) {
	msg := &domain.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	}

	err := s.withRetry(ctx, "insert message", func() error {
		// Timestamp under the lock so creation order matches seq order.
		msg.CreatedAt = time.Now()
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO lesson_messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			msg.ID, sessionID, string(role), content, msg.CreatedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns a session's messages in insertion order. Timestamps
// are not used since a clock step can reorder them.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, session_id, role, content, created_at
		FROM lesson_messages WHERE session_id = ?
		ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	messages := make([]domain.Message, 0, len(rows))
	for _, r := range rows {
		messages = append(messages, r.toDomain())
	}
	return messages, nil
}

// RecentSnapshots returns the newest snapshots for a user.
func (s *SQLiteStore) RecentSnapshots(ctx context.Context, userID string, limit int) ([]domain.ProficiencySnapshot, error) {
	var rows []snapshotRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT user_id, vocabulary_accuracy, grammar_accuracy, pronunciation_score, fluency_score, created_at
		FROM performance_analytics WHERE user_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}

	snapshots := make([]domain.ProficiencySnapshot, 0, len(rows))
	for _, r := range rows {
		snapshots = append(snapshots, domain.ProficiencySnapshot{
			UserID:             r.UserID,
			VocabularyAccuracy: r.Vocabulary,
			GrammarAccuracy:    r.Grammar,
			PronunciationScore: r.Pronunciation,
			FluencyScore:       r.Fluency,
			CreatedAt:          time.Unix(0, r.CreatedAt),
		})
	}
	return snapshots, nil
}

// InsertSnapshot records a proficiency snapshot.
func (s *SQLiteStore) InsertSnapshot(ctx context.Context, snapshot *domain.ProficiencySnapshot) error {
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now()
	}
	return s.withRetry(ctx, "insert snapshot", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO performance_analytics (user_id, vocabulary_accuracy, grammar_accuracy, pronunciation_score, fluency_score, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			snapshot.UserID, snapshot.VocabularyAccuracy, snapshot.GrammarAccuracy,
			snapshot.PronunciationScore, snapshot.FluencyScore, snapshot.CreatedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		return nil
	})
}

// GetProfile retrieves a user profile.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	var row struct {
		UserID    string         `db:"user_id"`
		Level     sql.NullString `db:"proficiency_level"`
		CreatedAt int64          `db:"created_at"`
		UpdatedAt int64          `db:"updated_at"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, proficiency_level, created_at, updated_at
		FROM user_profiles WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile row: %w", err)
	}

	return &domain.UserProfile{
		UserID:           row.UserID,
		ProficiencyLevel: domain.Level(row.Level.String),
		CreatedAt:        time.Unix(0, row.CreatedAt),
		UpdatedAt:        time.Unix(0, row.UpdatedAt),
	}, nil
}

// UpsertProfile creates or updates a user profile.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, profile *domain.UserProfile) error {
	now := time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	var level interface{}
	if profile.ProficiencyLevel != "" {
		level = string(profile.ProficiencyLevel)
	}

	return s.withRetry(ctx, "upsert profile", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO user_profiles (user_id, proficiency_level, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				proficiency_level = excluded.proficiency_level,
				updated_at = excluded.updated_at`,
			profile.UserID, level, profile.CreatedAt.UnixNano(), profile.UpdatedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("upsert profile: %w", err)
		}
		return nil
	})
}

// CountOrphanMessages counts user messages whose next message in the same
// session is not an AI reply. Recent messages are skipped since their turn
// may still be in flight.
func (s *SQLiteStore) CountOrphanMessages(ctx context.Context) (int64, error) {
	threshold := time.Now().Add(-orphanGrace).UnixNano()
	var count int64
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM lesson_messages m
		WHERE m.role = 'user' AND m.created_at < ?
		AND COALESCE((
			SELECT n.role FROM lesson_messages n
			WHERE n.session_id = m.session_id AND n.seq > m.seq
			ORDER BY n.seq LIMIT 1
		), '') <> 'ai'`, threshold)
	if err != nil {
		return 0, fmt.Errorf("count orphan messages: %w", err)
	}
	return count, nil
}
