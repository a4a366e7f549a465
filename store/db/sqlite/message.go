package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/usecounsel/counsel/store"
)

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	fields := []string{"uid", "session_id", "role", "content", "created_ts"}
	args := []any{create.UID, create.SessionID, string(create.Role), create.Content, create.CreatedTs}

	stmt := `INSERT INTO chat_message (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create chat_message: %w", err)
	}

	// Bump the owning session's updated_ts. The message insert above is
	// authoritative: a failed bump leaves a stale timestamp, never a lost
	// message.
	if _, err := d.db.ExecContext(ctx, `UPDATE chat_session SET updated_ts = `+placeholder(1)+` WHERE id = `+placeholder(2), create.CreatedTs, create.SessionID); err != nil {
		slog.Warn("failed to bump chat_session updated_ts",
			slog.Int64("session_id", int64(create.SessionID)),
			slog.String("error", err.Error()))
	}

	return create, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.SessionID != nil {
		where, args = append(where, "session_id = "+placeholder(len(args)+1)), append(args, *find.SessionID)
	}

	// id is the stable secondary key breaking exact-timestamp ties.
	query := `SELECT id, uid, session_id, role, content, created_ts FROM chat_message WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts ASC, id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat_messages: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		m := &store.Message{}
		var role string
		if err := rows.Scan(&m.ID, &m.UID, &m.SessionID, &role, &m.Content, &m.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan chat_message: %w", err)
		}
		m.Role = store.MessageRole(role)
		list = append(list, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat_messages: %w", err)
	}

	return list, nil
}

func (d *DB) DeleteMessage(ctx context.Context, delete *store.DeleteMessage) error {
	where, args := []string{}, []any{}

	if delete.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *delete.ID)
	}
	if delete.SessionID != nil {
		where, args = append(where, "session_id = "+placeholder(len(args)+1)), append(args, *delete.SessionID)
	}

	if len(where) == 0 {
		return fmt.Errorf("no condition to delete")
	}

	stmt := `DELETE FROM chat_message WHERE ` + strings.Join(where, " AND ")
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to delete chat_message: %w", err)
	}

	return nil
}
