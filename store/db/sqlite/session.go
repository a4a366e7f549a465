package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/usecounsel/counsel/store"
)

func (d *DB) CreateSession(ctx context.Context, create *store.Session) (*store.Session, error) {
	fields := []string{"uid", "creator_id", "title", "created_ts", "updated_ts"}
	args := []any{create.UID, create.CreatorID, create.Title, create.CreatedTs, create.UpdatedTs}

	stmt := `INSERT INTO chat_session (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create chat_session: %w", err)
	}

	return create, nil
}

func (d *DB) ListSessions(ctx context.Context, find *store.FindSession) ([]*store.Session, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.CreatorID != nil {
		where, args = append(where, "creator_id = "+placeholder(len(args)+1)), append(args, *find.CreatorID)
	}

	query := `SELECT id, uid, creator_id, title, created_ts, updated_ts FROM chat_session WHERE ` + strings.Join(where, " AND ") + ` ORDER BY updated_ts DESC, id DESC`
	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat_sessions: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Session, 0)
	for rows.Next() {
		s := &store.Session{}
		var creatorID sql.NullInt32
		if err := rows.Scan(&s.ID, &s.UID, &creatorID, &s.Title, &s.CreatedTs, &s.UpdatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan chat_session: %w", err)
		}
		if creatorID.Valid {
			s.CreatorID = creatorID.Int32
		}
		list = append(list, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat_sessions: %w", err)
	}

	return list, nil
}

func (d *DB) UpdateSession(ctx context.Context, update *store.UpdateSession) (*store.Session, error) {
	set, args := []string{}, []any{}

	if update.Title != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *update.Title)
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *update.UpdatedTs)
	}

	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE chat_session SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + ` RETURNING id, uid, creator_id, title, created_ts, updated_ts`
	result := &store.Session{}
	var creatorID sql.NullInt32
	err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&result.ID, &result.UID, &creatorID, &result.Title, &result.CreatedTs, &result.UpdatedTs,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("chat_session not found")
		}
		return nil, fmt.Errorf("failed to update chat_session: %w", err)
	}
	if creatorID.Valid {
		result.CreatorID = creatorID.Int32
	}

	return result, nil
}

func (d *DB) DeleteSession(ctx context.Context, delete *store.DeleteSession) error {
	// Delete messages first. The FK cascade covers this as well, but the
	// explicit delete keeps semantics identical across drivers.
	if _, err := d.db.ExecContext(ctx, `DELETE FROM chat_message WHERE session_id = `+placeholder(1), delete.ID); err != nil {
		return fmt.Errorf("failed to delete chat_messages: %w", err)
	}
	result, err := d.db.ExecContext(ctx, `DELETE FROM chat_session WHERE id = `+placeholder(1), delete.ID)
	if err != nil {
		return fmt.Errorf("failed to delete chat_session: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("chat_session not found")
	}

	return nil
}
