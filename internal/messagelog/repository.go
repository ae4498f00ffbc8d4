package messagelog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aiox-platform/bookingbot/internal/events"
)

// Repository handles booking_messages and feedback PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertExchange writes both rows of an exchange in one transaction.
// Replays of the same exchange id are ignored.
func (r *Repository) InsertExchange(ctx context.Context, ex events.Exchange) error {
	rows := FromExchange(ex)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, m := range rows {
			_, err := tx.Exec(ctx,
				`INSERT INTO booking_messages
				 (exchange_id, thread_id, user_phone, message_text, message_sent_by,
				  platform_type, agent, locale, is_template, pg_ids, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
				 ON CONFLICT (exchange_id, message_sent_by) DO NOTHING`,
				m.ExchangeID, m.ThreadID, m.UserPhone, m.Text, m.SentBy,
				m.Platform, m.Agent, m.Locale, m.IsTemplate, m.PGIDs, m.CreatedAt)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("inserting exchange %s: %w", ex.ID, err)
	}
	return nil
}

// RecordExchange lets the pipeline write straight to Postgres when no
// message bus is configured.
func (r *Repository) RecordExchange(ctx context.Context, ex events.Exchange) error {
	return r.InsertExchange(ctx, ex)
}

// ListThread returns the newest messages of a thread, oldest first.
func (r *Repository) ListThread(ctx context.Context, threadID string, limit int) ([]Message, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, exchange_id, thread_id, user_phone, message_text, message_sent_by,
		        platform_type, agent, locale, is_template, pg_ids, created_at
		 FROM (
		   SELECT * FROM booking_messages WHERE thread_id = $1
		   ORDER BY created_at DESC, message_sent_by DESC LIMIT $2
		 ) recent
		 ORDER BY created_at ASC, message_sent_by ASC`, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying thread %s: %w", threadID, err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ExchangeID, &m.ThreadID, &m.UserPhone, &m.Text, &m.SentBy,
			&m.Platform, &m.Agent, &m.Locale, &m.IsTemplate, &m.PGIDs, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *Repository) InsertFeedback(ctx context.Context, f *Feedback) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO feedback (id, user_id, message_snippet, rating, agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID, f.UserID, f.MessageSnippet, f.Rating, f.Agent, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting feedback: %w", err)
	}
	return nil
}

func (r *Repository) FeedbackStats(ctx context.Context) (FeedbackStats, error) {
	stats := FeedbackStats{ByAgent: map[string]RatingCounts{}}
	rows, err := r.pool.Query(ctx,
		`SELECT agent, rating, COUNT(*) FROM feedback GROUP BY agent, rating`)
	if err != nil {
		return stats, fmt.Errorf("querying feedback stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var agent, rating string
		var n int64
		if err := rows.Scan(&agent, &rating, &n); err != nil {
			return stats, fmt.Errorf("scanning feedback stats: %w", err)
		}
		stats.add(rating, n)
		stats.Total += n
		if agent != "" {
			c := stats.ByAgent[agent]
			c.add(rating, n)
			stats.ByAgent[agent] = c
		}
	}
	return stats, rows.Err()
}

// MessageVolume counts stored messages per day between from and to, both
// days inclusive. Keys are YYYY-MM-DD in UTC.
func (r *Repository) MessageVolume(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		 FROM booking_messages
		 WHERE created_at >= $1 AND created_at < $2
		 GROUP BY day ORDER BY day`,
		startOfDay(from), startOfDay(to).AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("querying message volume: %w", err)
	}
	defer rows.Close()

	volume := map[string]int64{}
	for rows.Next() {
		var day string
		var n int64
		if err := rows.Scan(&day, &n); err != nil {
			return nil, fmt.Errorf("scanning message volume: %w", err)
		}
		volume[day] = n
	}
	return volume, rows.Err()
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
