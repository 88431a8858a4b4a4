package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

// ResultsArchive stores the final ranking of completed sessions as JSONB.
type ResultsArchive struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewResultsArchive(pool *pgxpool.Pool) *ResultsArchive {
	return &ResultsArchive{pool: pool, now: time.Now}
}

// SaveResults writes once per session; a repeated save keeps the first row.
// Rows are keyed by id, join code and creation time, so a session that reuses
// an id from an earlier process gets its own row.
func (a *ResultsArchive) SaveResults(ctx context.Context, session domain.Session, rankings []domain.Ranking) error {
	if rankings == nil {
		rankings = []domain.Ranking{}
	}
	raw, err := json.Marshal(rankings)
	if err != nil {
		return fmt.Errorf("marshal rankings: %w", err)
	}
	_, err = a.pool.Exec(ctx,
		`INSERT INTO session_results (session_id, room_code, session_created_at, title, completed_at, rankings)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		 ON CONFLICT (session_id, room_code, session_created_at) DO NOTHING`,
		session.ID, session.RoomCode, domain.ArchiveTime(session.CreatedAt), session.Title, a.now().UTC(), string(raw))
	if err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	return nil
}

// LoadResults returns the most recently completed session archived under sessionID.
func (a *ResultsArchive) LoadResults(ctx context.Context, sessionID int64) (domain.SessionResults, error) {
	var (
		res domain.SessionResults
		raw []byte
	)
	err := a.pool.QueryRow(ctx,
		`SELECT session_id, room_code, session_created_at, title, completed_at, rankings
		 FROM session_results WHERE session_id=$1
		 ORDER BY completed_at DESC LIMIT 1`,
		sessionID).Scan(&res.SessionID, &res.RoomCode, &res.CreatedAt, &res.Title, &res.CompletedAt, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SessionResults{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.SessionResults{}, fmt.Errorf("load results: %w", err)
	}
	if err := json.Unmarshal(raw, &res.Rankings); err != nil {
		return domain.SessionResults{}, fmt.Errorf("unmarshal rankings: %w", err)
	}
	return res, nil
}
