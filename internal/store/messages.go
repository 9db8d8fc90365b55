package store

import (
	"context"
	"fmt"

	"github.com/nidhogg/jarvis/internal/history"
)

var _ history.Store = (*Store)(nil)

// Append stores a message as the next ordinal of its session. Two concurrent
// appends to one session can collide on the ordinal; the loser gets an error.
func (s *Store) Append(ctx context.Context, sessionID, role, content string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO conversation_messages (session_id, ordinal, role, content)
		SELECT $1, COALESCE(MAX(ordinal), 0) + 1, $2, $3
		FROM conversation_messages
		WHERE session_id = $1`,
		sessionID, role, content,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Load returns the latest limit messages of a session, oldest first.
func (s *Store) Load(ctx context.Context, sessionID string, limit int) ([]history.Message, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := s.db.Query(ctx, `
		SELECT session_id, role, content, ordinal FROM (
			SELECT session_id, role, content, ordinal
			FROM conversation_messages
			WHERE session_id = $1
			ORDER BY ordinal DESC
			LIMIT $2
		) recent
		ORDER BY ordinal ASC`, sessionID, lim)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var msgs []history.Message
	for rows.Next() {
		var m history.Message
		if err := rows.Scan(&m.SessionID, &m.Role, &m.Content, &m.Ordinal); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return msgs, nil
}
