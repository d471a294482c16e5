package database

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Turn is one persisted transcript row: what came in, what the policy
// decided and what went out.
type Turn struct {
	ID        string    `db:"id"`
	ClientID  string    `db:"client_id"`
	Message   string    `db:"message"`
	Action    string    `db:"action"`
	Response  string    `db:"response"`
	CreatedAt time.Time `db:"created_at"`
}

// Store defines transcript persistence operations.
type Store interface {
	// SaveTurn inserts one transcript row, assigning an id if missing.
	SaveTurn(ctx context.Context, turn *Turn) error

	// RecentTurns returns the most recent transcript rows for a client,
	// newest first.
	RecentTurns(ctx context.Context, clientID string, limit int) ([]Turn, error)

	// TrimTranscripts deletes rows created before the cutoff and reports
	// how many were removed.
	TrimTranscripts(ctx context.Context, before time.Time) (int64, error)

	// RunMaintenance performs VACUUM and ANALYZE.
	RunMaintenance(ctx context.Context) error
}

type sqlxStore struct {
	db  *sqlx.DB
	log *slog.Logger
}

// NewStore creates a transcript store backed by sqlx.
func NewStore(db *sqlx.DB, log *slog.Logger) Store {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &sqlxStore{
		db:  db,
		log: log.With("component", "store"),
	}
}

func (s *sqlxStore) SaveTurn(ctx context.Context, turn *Turn) error {
	if turn == nil {
		return fmt.Errorf("cannot save nil turn")
	}
	if turn.ClientID == "" {
		return fmt.Errorf("turn must have a client_id")
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO turns (id, client_id, message, action, response, created_at)
		VALUES (:id, :client_id, :message, :action, :response, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, query, turn); err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	return nil
}

func (s *sqlxStore) RecentTurns(ctx context.Context, clientID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}

	const query = `
		SELECT id, client_id, message, action, response, created_at
		FROM turns
		WHERE client_id = ?
		ORDER BY created_at DESC
		LIMIT ?`

	var turns []Turn
	if err := s.db.SelectContext(ctx, &turns, query, clientID, limit); err != nil {
		return nil, fmt.Errorf("failed to query recent turns: %w", err)
	}

	return turns, nil
}

func (s *sqlxStore) TrimTranscripts(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE created_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to trim transcripts: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count trimmed transcripts: %w", err)
	}

	return removed, nil
}

func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("analyze failed: %w", err)
	}

	s.log.InfoContext(ctx, "database maintenance completed")

	return nil
}
