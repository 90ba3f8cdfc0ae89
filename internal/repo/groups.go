package repo

import (
	"context"
	"database/sql"

	"etraxis/internal/domain"
)

func (r Repo) InsertGroup(ctx context.Context, tx *sql.Tx, g domain.Group) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO groups(id,project_id,name,description,created_at) VALUES (?,?,?,?,?)`,
		g.ID, nullableStringPtr(g.ProjectID), g.Name, nullable(g.Description), g.CreatedAt)
	return err
}

func (r Repo) GetGroup(ctx context.Context, id string) (domain.Group, error) {
	var g domain.Group
	var projectID sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,project_id,name,COALESCE(description,''),created_at FROM groups WHERE id=?`, id).
		Scan(&g.ID, &projectID, &g.Name, &g.Description, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	if projectID.Valid {
		g.ProjectID = &projectID.String
	}
	return g, err
}

// ListGroups returns groups visible to a project: its own plus the global ones.
// An empty projectID lists every group.
func (r Repo) ListGroups(ctx context.Context, projectID string) ([]domain.Group, error) {
	query := `SELECT id,project_id,name,COALESCE(description,''),created_at FROM groups`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id=? OR project_id IS NULL`
		args = append(args, projectID)
	}
	query += ` ORDER BY name`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Group
	for rows.Next() {
		var g domain.Group
		var pid sql.NullString
		if err := rows.Scan(&g.ID, &pid, &g.Name, &g.Description, &g.CreatedAt); err != nil {
			return nil, err
		}
		if pid.Valid {
			g.ProjectID = &pid.String
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

func (r Repo) DeleteGroup(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM groups WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) AddGroupMember(ctx context.Context, tx *sql.Tx, groupID, userID string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO group_members(group_id,user_id) VALUES (?,?)`, groupID, userID)
	return err
}

func (r Repo) RemoveGroupMember(ctx context.Context, tx *sql.Tx, groupID, userID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=? AND user_id=?`, groupID, userID)
	return err
}

func (r Repo) ListGroupMembers(ctx context.Context, groupID string) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT u.id,u.email,u.full_name,u.admin,u.created_at
FROM group_members gm
JOIN users u ON u.id=gm.user_id
WHERE gm.group_id=?
ORDER BY u.full_name, u.email`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.Admin, &u.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
