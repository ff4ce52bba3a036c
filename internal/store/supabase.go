package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/lingua-lessons/internal/domain"
	"github.com/google/uuid"
	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

// SupabaseConfig holds Supabase connection configuration.
type SupabaseConfig struct {
	URL    string
	APIKey string
}

// SupabaseStore implements Repository on top of the Supabase PostgREST API,
// using the same table layout as the SQLite schema.
//
// postgrest-go v0.0.11 has no context-aware Execute, so a request already
// sent runs to completion. Each method checks ctx before every round trip
// and returns its error without calling the API once ctx is done.
type SupabaseStore struct {
	client *supabase.Client
}

var _ Repository = (*SupabaseStore)(nil)

type sessionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Topic     string    `json:"topic"`
	Level     string    `json:"level"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func (r sessionRecord) toDomain() *domain.LessonSession {
	return &domain.LessonSession{
		ID:        r.ID,
		UserID:    r.UserID,
		Topic:     r.Topic,
		Level:     domain.Level(r.Level),
		Status:    domain.Status(r.Status),
		CreatedAt: r.CreatedAt,
	}
}

type messageRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type snapshotRecord struct {
	UserID        string    `json:"user_id"`
	Vocabulary    float64   `json:"vocabulary_accuracy"`
	Grammar       float64   `json:"grammar_accuracy"`
	Pronunciation float64   `json:"pronunciation_score"`
	Fluency       float64   `json:"fluency_score"`
	CreatedAt     time.Time `json:"created_at"`
}

type profileRecord struct {
	ID               string  `json:"id"`
	ProficiencyLevel *string `json:"proficiency_level"`
}

// NewSupabase creates a Supabase-backed repository.
func NewSupabase(cfg SupabaseConfig) (*SupabaseStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseStore{client: client}, nil
}

// Ping issues a minimal query against the sessions table.
func (s *SupabaseStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := s.client.From("lesson_sessions").Select("id", "", false).Limit(1, "").Execute(); err != nil {
		return fmt.Errorf("ping supabase: %w", err)
	}
	return nil
}

// Close is a no-op; the REST client holds no persistent connection.
func (s *SupabaseStore) Close() error { return nil }

// CreateSession inserts a new lesson session.
func (s *SupabaseStore) CreateSession(ctx context.Context, session *domain.LessonSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if session.Status == "" {
		session.Status = domain.StatusActive
	}
	record := sessionRecord{
		ID:        session.ID,
		UserID:    session.UserID,
		Topic:     session.Topic,
		Level:     string(session.Level),
		Status:    string(session.Status),
		CreatedAt: session.CreatedAt.UTC(),
	}
	if _, _, err := s.client.From("lesson_sessions").Insert(record, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// ListSessions returns the user's sessions, newest first.
func (s *SupabaseStore) ListSessions(ctx context.Context, userID string) ([]*domain.LessonSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []sessionRecord
	_, err := s.client.From("lesson_sessions").
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&records)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	sessions := make([]*domain.LessonSession, 0, len(records))
	for _, r := range records {
		sessions = append(sessions, r.toDomain())
	}
	return sessions, nil
}

func (s *SupabaseStore) findSession(id, userID string) (*sessionRecord, error) {
	var records []sessionRecord
	_, err := s.client.From("lesson_sessions").
		Select("*", "", false).
		Eq("id", id).
		Eq("user_id", userID).
		Limit(1, "").
		ExecuteTo(&records)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// GetSession loads a session and its transcript.
func (s *SupabaseStore) GetSession(ctx context.Context, id, userID string) (*domain.LessonSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	record, err := s.findSession(id, userID)
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	if record == nil {
		return nil, nil
	}

	session := record.toDomain()
	messages, err := s.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Messages = messages
	return session, nil
}

// UpdateStatus performs the one-way active -> completed transition.
// The status filter makes concurrent completions race-free on the server.
func (s *SupabaseStore) UpdateStatus(ctx context.Context, id, userID string, status domain.Status) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if status != domain.StatusCompleted {
		return false, ErrInvalidTransition
	}

	var updated []sessionRecord
	_, err := s.client.From("lesson_sessions").
		Update(map[string]string{"status": string(domain.StatusCompleted)}, "representation", "").
		Eq("id", id).
		Eq("user_id", userID).
		Eq("status", string(domain.StatusActive)).
		ExecuteTo(&updated)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	if len(updated) > 0 {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	record, err := s.findSession(id, userID)
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	if record == nil {
		return false, ErrSessionNotFound
	}
	return false, nil
}

// InsertMessage appends a message. created_at is assigned by the database
// so ordering follows commit order.
func (s *SupabaseStore) InsertMessage(ctx context.Context, sessionID string, role domain.Role, content string) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := map[string]string{
		"id":         uuid.NewString(),
		"session_id": sessionID,
		"role":       string(role),
		"content":    content,
	}

	var inserted []messageRecord
	if _, err := s.client.From("lesson_messages").Insert(row, false, "", "representation", "").ExecuteTo(&inserted); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if len(inserted) == 0 {
		return nil, fmt.Errorf("insert message: no row returned")
	}

	r := inserted[0]
	return &domain.Message{
		ID:        r.ID,
		SessionID: r.SessionID,
		Role:      domain.Role(r.Role),
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
	}, nil
}

// ListMessages returns a session's messages in creation order.
func (s *SupabaseStore) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []messageRecord
	_, err := s.client.From("lesson_messages").
		Select("*", "", false).
		Eq("session_id", sessionID).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&records)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	messages := make([]domain.Message, 0, len(records))
	for _, r := range records {
		messages = append(messages, domain.Message{
			ID:        r.ID,
			SessionID: r.SessionID,
			Role:      domain.Role(r.Role),
			Content:   r.Content,
			CreatedAt: r.CreatedAt,
		})
	}
	return messages, nil
}

// RecentSnapshots returns the newest snapshots for a user.
func (s *SupabaseStore) RecentSnapshots(ctx context.Context, userID string, limit int) ([]domain.ProficiencySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []snapshotRecord
	_, err := s.client.From("performance_analytics").
		Select("user_id,vocabulary_accuracy,grammar_accuracy,pronunciation_score,fluency_score,created_at", "", false).
		Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		ExecuteTo(&records)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}

	snapshots := make([]domain.ProficiencySnapshot, 0, len(records))
	for _, r := range records {
		snapshots = append(snapshots, domain.ProficiencySnapshot{
			UserID:             r.UserID,
			VocabularyAccuracy: r.Vocabulary,
			GrammarAccuracy:    r.Grammar,
			PronunciationScore: r.Pronunciation,
			FluencyScore:       r.Fluency,
			CreatedAt:          r.CreatedAt,
		})
	}
	return snapshots, nil
}

// InsertSnapshot records a proficiency snapshot.
func (s *SupabaseStore) InsertSnapshot(ctx context.Context, snapshot *domain.ProficiencySnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now()
	}
	record := snapshotRecord{
		UserID:        snapshot.UserID,
		Vocabulary:    snapshot.VocabularyAccuracy,
		Grammar:       snapshot.GrammarAccuracy,
		Pronunciation: snapshot.PronunciationScore,
		Fluency:       snapshot.FluencyScore,
		CreatedAt:     snapshot.CreatedAt.UTC(),
	}
	if _, _, err := s.client.From("performance_analytics").Insert(record, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// GetProfile retrieves a user profile.
func (s *SupabaseStore) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []profileRecord
	_, err := s.client.From("user_profiles").
		Select("id,proficiency_level", "", false).
		Eq("id", userID).
		Limit(1, "").
		ExecuteTo(&records)
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	profile := &domain.UserProfile{UserID: records[0].ID}
	if records[0].ProficiencyLevel != nil {
		profile.ProficiencyLevel = domain.Level(*records[0].ProficiencyLevel)
	}
	return profile, nil
}

// UpsertProfile creates or updates a user profile.
func (s *SupabaseStore) UpsertProfile(ctx context.Context, profile *domain.UserProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	record := profileRecord{ID: profile.UserID}
	if profile.ProficiencyLevel != "" {
		level := string(profile.ProficiencyLevel)
		record.ProficiencyLevel = &level
	}
	if _, _, err := s.client.From("user_profiles").Insert(record, true, "id", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}
