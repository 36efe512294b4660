package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"mood-backend/internal/models"
)

// ErrSessionNotFound is returned when a session ID resolves to no row.
var ErrSessionNotFound = errors.New("session not found")

type ClickHouseDB struct {
	conn driver.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(addr, database, username, password string) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Printf("Connected to ClickHouse at %s", addr)

	db := &ClickHouseDB{conn: conn}

	// Initialize schema
	if err := db.InitSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// InitSchema creates the necessary tables if they don't exist
func (db *ClickHouseDB) InitSchema() error {
	ctx := context.Background()

	for _, tableSQL := range AllTables() {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	log.Println("Database schema initialized successfully")
	return nil
}

// CreateSession inserts a fresh session row.
func (db *ClickHouseDB) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (session_id, user_id, started_at, ended_at, duration_s, meta, dominant_mood, stress_score, prediction_count, updated_at)
		VALUES (?, ?, ?, NULL, NULL, ?, '', 0, 0, ?)
	`

	err := db.conn.Exec(ctx, query,
		session.SessionID,
		session.UserID,
		session.StartedAt,
		encodeMeta(session.Meta),
		time.Now(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

// GetSession returns the latest version of a session row.
func (db *ClickHouseDB) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `
		SELECT session_id, user_id, started_at, ended_at, duration_s, meta, dominant_mood, stress_score, prediction_count
		FROM sessions FINAL
		WHERE session_id = ?
		LIMIT 1
	`

	row := db.conn.QueryRow(ctx, query, sessionID)

	session, err := scanSession(row)
	if err != nil {
		// clickhouse-go reports an empty result as a scan error
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// EndSession writes the closed session version (end time, duration,
// aggregates). ReplacingMergeTree supersedes the open row.
func (db *ClickHouseDB) EndSession(ctx context.Context, session *models.Session) error {
	if session.EndedAt == nil || session.DurationS == nil || session.Aggregates == nil {
		return errors.New("end session requires ended_at, duration_s and aggregates")
	}

	query := `
		INSERT INTO sessions (session_id, user_id, started_at, ended_at, duration_s, meta, dominant_mood, stress_score, prediction_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		session.SessionID,
		session.UserID,
		session.StartedAt,
		*session.EndedAt,
		*session.DurationS,
		encodeMeta(session.Meta),
		session.Aggregates.DominantMood,
		session.Aggregates.StressScore,
		int32(session.Aggregates.PredictionCount),
		time.Now(),
	)

	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	return nil
}

// ListSessions returns sessions newest first, optionally filtered by user.
func (db *ClickHouseDB) ListSessions(ctx context.Context, userID string, limit int) ([]*models.Session, error) {
	query := `
		SELECT session_id, user_id, started_at, ended_at, duration_s, meta, dominant_mood, stress_score, prediction_count
		FROM sessions FINAL
		WHERE ? = '' OR user_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := db.conn.Query(ctx, query, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// SavePrediction saves a per-frame prediction record.
func (db *ClickHouseDB) SavePrediction(ctx context.Context, record *models.PredictionRecord) error {
	query := `
		INSERT INTO predictions (session_id, timestamp, emotion, emotion_prob, stress_score, features)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		record.SessionID,
		record.Timestamp,
		record.Emotion,
		record.EmotionProb,
		record.StressScore,
		record.Features,
	)

	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}

	return nil
}

// ListPredictions returns up to limit predictions for a session, newest
// first. Feeds the session aggregator.
func (db *ClickHouseDB) ListPredictions(ctx context.Context, sessionID string, limit int) ([]*models.PredictionRecord, error) {
	query := `
		SELECT session_id, timestamp, emotion, emotion_prob, stress_score, features
		FROM predictions
		WHERE session_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := db.conn.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var records []*models.PredictionRecord
	for rows.Next() {
		record := &models.PredictionRecord{}
		if err := rows.Scan(
			&record.SessionID,
			&record.Timestamp,
			&record.Emotion,
			&record.EmotionProb,
			&record.StressScore,
			&record.Features,
		); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// SaveInsight persists a high-confidence advisory.
func (db *ClickHouseDB) SaveInsight(ctx context.Context, insight *models.Insight) error {
	query := `
		INSERT INTO insights (insight_id, session_id, generated_at, type, content, confidence)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		insight.InsightID,
		insight.SessionID,
		insight.GeneratedAt,
		insight.Type,
		insight.Content,
		insight.Confidence,
	)

	if err != nil {
		return fmt.Errorf("failed to insert insight: %w", err)
	}

	return nil
}

// ListInsights returns up to limit insights for a session, oldest first.
func (db *ClickHouseDB) ListInsights(ctx context.Context, sessionID string, limit int) ([]*models.Insight, error) {
	query := `
		SELECT insight_id, session_id, generated_at, type, content, confidence
		FROM insights
		WHERE session_id = ?
		ORDER BY generated_at ASC
		LIMIT ?
	`

	rows, err := db.conn.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query insights: %w", err)
	}
	defer rows.Close()

	var insights []*models.Insight
	for rows.Next() {
		insight := &models.Insight{}
		if err := rows.Scan(
			&insight.InsightID,
			&insight.SessionID,
			&insight.GeneratedAt,
			&insight.Type,
			&insight.Content,
			&insight.Confidence,
		); err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		insights = append(insights, insight)
	}
	return insights, rows.Err()
}

// SaveFeedback stores a user rating of an insight.
func (db *ClickHouseDB) SaveFeedback(ctx context.Context, fb *models.Feedback) error {
	query := `
		INSERT INTO feedback (feedback_id, session_id, insight_id, rating, comment, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		fb.FeedbackID,
		fb.SessionID,
		fb.InsightID,
		int8(fb.Rating),
		fb.Comment,
		fb.SubmittedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}

	return nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		if err := db.conn.Close(); err != nil {
			return fmt.Errorf("failed to close ClickHouse connection: %w", err)
		}
		log.Println("ClickHouse connection closed")
	}
	return nil
}

// scanner covers both driver.Row and driver.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var (
		session     models.Session
		endedAt     *time.Time
		durationS   *int64
		metaJSON    string
		mood        string
		stress      float64
		predictions int32
	)

	if err := row.Scan(
		&session.SessionID,
		&session.UserID,
		&session.StartedAt,
		&endedAt,
		&durationS,
		&metaJSON,
		&mood,
		&stress,
		&predictions,
	); err != nil {
		return nil, err
	}

	session.EndedAt = endedAt
	session.DurationS = durationS
	session.Meta = decodeMeta(metaJSON)
	if endedAt != nil {
		session.Aggregates = &models.SessionAggregate{
			DominantMood:    mood,
			StressScore:     stress,
			PredictionCount: int(predictions),
		}
	}
	return &session, nil
}

func encodeMeta(meta map[string]string) string {
	if len(meta) == 0 {
		return "{}"
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func decodeMeta(raw string) map[string]string {
	meta := make(map[string]string)
	if raw == "" {
		return meta
	}
	_ = json.Unmarshal([]byte(raw), &meta)
	return meta
}
