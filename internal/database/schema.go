package database

// SQL schemas for all ClickHouse tables

const (
	// SessionsTableSQL creates the sessions table. Session end writes a
	// new row version; ReplacingMergeTree keeps the latest by updated_at.
	SessionsTableSQL = `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id String,
			user_id String,
			started_at DateTime64(3),
			ended_at Nullable(DateTime64(3)),
			duration_s Nullable(Int64),
			meta String,
			dominant_mood String,
			stress_score Float64,
			prediction_count Int32,
			updated_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY session_id
	`

	// PredictionsTableSQL creates the per-frame predictions table.
	PredictionsTableSQL = `
		CREATE TABLE IF NOT EXISTS predictions (
			session_id String,
			timestamp DateTime64(3),
			emotion String,
			emotion_prob Map(String, Float64),
			stress_score Float64,
			features String
		) ENGINE = MergeTree()
		ORDER BY (session_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`

	// InsightsTableSQL creates the insights table.
	InsightsTableSQL = `
		CREATE TABLE IF NOT EXISTS insights (
			insight_id String,
			session_id String,
			generated_at DateTime64(3),
			type String,
			content String,
			confidence Float64
		) ENGINE = MergeTree()
		ORDER BY (session_id, generated_at)
		PARTITION BY toYYYYMM(generated_at)
	`

	// FeedbackTableSQL creates the feedback table.
	FeedbackTableSQL = `
		CREATE TABLE IF NOT EXISTS feedback (
			feedback_id String,
			session_id String,
			insight_id String,
			rating Int8,
			comment String,
			submitted_at DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY (session_id, submitted_at)
	`
)

// AllTables returns all table creation SQL statements
func AllTables() []string {
	return []string{
		SessionsTableSQL,
		PredictionsTableSQL,
		InsightsTableSQL,
		FeedbackTableSQL,
	}
}
