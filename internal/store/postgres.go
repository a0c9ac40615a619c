package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/LeventeLantos/conversation-scheduler/internal/model"
)

// PostgresStore persists conversations in a single table:
//
//	CREATE TABLE conversations (
//	    id           TEXT PRIMARY KEY,
//	    payload      TEXT NOT NULL,
//	    scheduled_at TIMESTAMPTZ NOT NULL,
//	    endpoint     TEXT NOT NULL,
//	    method       TEXT NOT NULL,
//	    headers      TEXT,
//	    note         TEXT,
//	    status       TEXT NOT NULL,
//	    last_error   TEXT,
//	    created_at   TIMESTAMPTZ NOT NULL,
//	    updated_at   TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const conversationColumns = `
	id, payload, scheduled_at, endpoint, method, headers, note,
	status, last_error, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, conv *model.Conversation) error {
	if conv.ID == "" {
		return errors.New("conversation id must not be empty")
	}

	var headers *string
	if len(conv.Target.Headers) > 0 {
		b, err := json.Marshal(conv.Target.Headers)
		if err != nil {
			return err
		}
		h := string(b)
		headers = &h
	}

	var note *string
	if conv.Target.Note != "" {
		note = &conv.Target.Note
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations
			(id, payload, scheduled_at, endpoint, method, headers, note,
			 status, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		conv.ID,
		conv.Payload,
		conv.ScheduledAt.UTC(),
		conv.Target.Endpoint,
		conv.Target.Method,
		headers,
		note,
		string(conv.Status),
		conv.LastError,
		conv.CreatedAt.UTC(),
		conv.UpdatedAt.UTC(),
	)
	return err
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE id = $1
	`, id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// UpdateStatus performs the conditional transition that closes the
// cancel/fire race: the row only moves when its current status still
// matches the expected prior status.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, from, to model.Status, lastError *string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET status = $3,
		    last_error = COALESCE($4, last_error),
		    updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to), lastError)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) List(ctx context.Context, page, pageSize int, status *model.Status) ([]model.Conversation, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE ($3::text IS NULL OR status = $3)
		ORDER BY scheduled_at ASC, id ASC
		LIMIT $1 OFFSET $2
	`, pageSize, offset, statusArg(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *conv)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, status *model.Status) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM conversations
		WHERE ($1::text IS NULL OR status = $1)
	`, statusArg(status)).Scan(&n)
	return n, err
}

func (s *PostgresStore) DueScheduled(ctx context.Context, before time.Time) ([]model.Conversation, error) {
	return s.queryConversations(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
	`, string(model.Scheduled), before.UTC())
}

func (s *PostgresStore) StaleInProgress(ctx context.Context, olderThan time.Time) ([]model.Conversation, error) {
	return s.queryConversations(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE status = $1 AND updated_at <= $2
		ORDER BY updated_at ASC
	`, string(model.InProgress), olderThan.UTC())
}

func (s *PostgresStore) queryConversations(ctx context.Context, query string, args ...any) ([]model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *conv)
	}
	return out, rows.Err()
}

func statusArg(status *model.Status) *string {
	if status == nil {
		return nil
	}
	s := string(*status)
	return &s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var (
		conv    model.Conversation
		status  string
		headers sql.NullString
		note    sql.NullString
		lastErr sql.NullString
	)

	if err := row.Scan(
		&conv.ID,
		&conv.Payload,
		&conv.ScheduledAt,
		&conv.Target.Endpoint,
		&conv.Target.Method,
		&headers,
		&note,
		&status,
		&lastErr,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	); err != nil {
		return nil, err
	}

	conv.Status = model.Status(status)

	if headers.Valid && headers.String != "" {
		var m map[string]string
		// Unparseable header data degrades to no headers instead of
		// failing the whole read.
		if err := json.Unmarshal([]byte(headers.String), &m); err == nil {
			conv.Target.Headers = m
		}
	}
	if note.Valid {
		conv.Target.Note = note.String
	}
	if lastErr.Valid {
		s := lastErr.String
		conv.LastError = &s
	}

	return &conv, nil
}
