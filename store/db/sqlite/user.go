package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/usecounsel/counsel/store"
)

func (d *DB) CreateUser(ctx context.Context, create *store.User) (*store.User, error) {
	fields := []string{"uid", "email", "nickname", "password_hash", "external_id", "row_status", "created_ts", "updated_ts"}
	args := []any{create.UID, create.Email, create.Nickname, create.PasswordHash, create.ExternalID, create.RowStatus.String(), create.CreatedTs, create.UpdatedTs}

	stmt := `INSERT INTO user (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return create, nil
}

func (d *DB) ListUsers(ctx context.Context, find *store.FindUser) ([]*store.User, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.Email != nil {
		where, args = append(where, "email = "+placeholder(len(args)+1)), append(args, *find.Email)
	}
	if find.ExternalID != nil {
		where, args = append(where, "external_id = "+placeholder(len(args)+1)), append(args, *find.ExternalID)
	}
	if find.RowStatus != nil {
		where, args = append(where, "row_status = "+placeholder(len(args)+1)), append(args, find.RowStatus.String())
	}

	query := `SELECT id, uid, email, nickname, password_hash, external_id, row_status, created_ts, updated_ts FROM user WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	list := make([]*store.User, 0)
	for rows.Next() {
		u := &store.User{}
		var rowStatus string
		var externalID sql.NullString
		if err := rows.Scan(&u.ID, &u.UID, &u.Email, &u.Nickname, &u.PasswordHash, &externalID, &rowStatus, &u.CreatedTs, &u.UpdatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.RowStatus = store.RowStatus(rowStatus)
		if externalID.Valid {
			u.ExternalID = &externalID.String
		}
		list = append(list, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return list, nil
}

func (d *DB) UpdateUser(ctx context.Context, update *store.UpdateUser) (*store.User, error) {
	set, args := []string{}, []any{}

	if update.Nickname != nil {
		set, args = append(set, "nickname = "+placeholder(len(args)+1)), append(args, *update.Nickname)
	}
	if update.PasswordHash != nil {
		set, args = append(set, "password_hash = "+placeholder(len(args)+1)), append(args, *update.PasswordHash)
	}
	if update.ExternalID != nil {
		set, args = append(set, "external_id = "+placeholder(len(args)+1)), append(args, *update.ExternalID)
	}
	if update.RowStatus != nil {
		set, args = append(set, "row_status = "+placeholder(len(args)+1)), append(args, update.RowStatus.String())
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *update.UpdatedTs)
	}

	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE user SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + ` RETURNING id, uid, email, nickname, password_hash, external_id, row_status, created_ts, updated_ts`
	result := &store.User{}
	var rowStatus string
	var externalID sql.NullString
	err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&result.ID, &result.UID, &result.Email, &result.Nickname, &result.PasswordHash, &externalID, &rowStatus, &result.CreatedTs, &result.UpdatedTs,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	result.RowStatus = store.RowStatus(rowStatus)
	if externalID.Valid {
		result.ExternalID = &externalID.String
	}

	return result, nil
}

func (d *DB) DeleteUser(ctx context.Context, delete *store.DeleteUser) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM user WHERE id = `+placeholder(1), delete.ID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user not found")
	}

	return nil
}
