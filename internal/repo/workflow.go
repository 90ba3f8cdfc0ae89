package repo

import (
	"context"
	"database/sql"

	"etraxis/internal/domain"
	"etraxis/internal/engine/access"
)

// Join rows are written only by administrative commands; the resolvers below
// treat them as read-only facts.

func (r Repo) AddRoleTransition(ctx context.Context, tx *sql.Tx, t domain.StateRoleTransition) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO state_role_transitions(from_state_id,to_state_id,role) VALUES (?,?,?)`,
		t.FromStateID, t.ToStateID, string(t.Role))
	return err
}

func (r Repo) RemoveRoleTransition(ctx context.Context, tx *sql.Tx, t domain.StateRoleTransition) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM state_role_transitions WHERE from_state_id=? AND to_state_id=? AND role=?`,
		t.FromStateID, t.ToStateID, string(t.Role))
	return err
}

func (r Repo) AddGroupTransition(ctx context.Context, tx *sql.Tx, t domain.StateGroupTransition) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO state_group_transitions(from_state_id,to_state_id,group_id) VALUES (?,?,?)`,
		t.FromStateID, t.ToStateID, t.GroupID)
	return err
}

func (r Repo) RemoveGroupTransition(ctx context.Context, tx *sql.Tx, t domain.StateGroupTransition) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM state_group_transitions WHERE from_state_id=? AND to_state_id=? AND group_id=?`,
		t.FromStateID, t.ToStateID, t.GroupID)
	return err
}

func (r Repo) AddResponsibleGroup(ctx context.Context, tx *sql.Tx, rg domain.StateResponsibleGroup) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO state_responsible_groups(state_id,group_id) VALUES (?,?)`,
		rg.StateID, rg.GroupID)
	return err
}

func (r Repo) RemoveResponsibleGroup(ctx context.Context, tx *sql.Tx, rg domain.StateResponsibleGroup) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM state_responsible_groups WHERE state_id=? AND group_id=?`,
		rg.StateID, rg.GroupID)
	return err
}

func (r Repo) SetFieldRolePermission(ctx context.Context, tx *sql.Tx, p domain.FieldRolePermission) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO field_role_permissions(field_id,role,permission) VALUES (?,?,?)
ON CONFLICT(field_id,role) DO UPDATE SET permission=excluded.permission`,
		p.FieldID, string(p.Role), string(p.Permission))
	return err
}

func (r Repo) SetFieldGroupPermission(ctx context.Context, tx *sql.Tx, p domain.FieldGroupPermission) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO field_group_permissions(field_id,group_id,permission) VALUES (?,?,?)
ON CONFLICT(field_id,group_id) DO UPDATE SET permission=excluded.permission`,
		p.FieldID, p.GroupID, string(p.Permission))
	return err
}

func (r Repo) UpsertWorkflowConfigTx(ctx context.Context, tx *sql.Tx, templateID, configYAML, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO workflow_configs(template_id,config_yaml,updated_at) VALUES (?,?,?)
ON CONFLICT(template_id) DO UPDATE SET config_yaml=excluded.config_yaml, updated_at=excluded.updated_at`,
		templateID, configYAML, updatedAt)
	return err
}

func (r Repo) GetWorkflowConfig(ctx context.Context, templateID string) (string, error) {
	var raw string
	err := r.DB.QueryRowContext(ctx, `SELECT config_yaml FROM workflow_configs WHERE template_id=?`, templateID).Scan(&raw)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return raw, err
}

// TransitionsByUser computes the destination states a user may move an issue
// to from its current state: the union of role-based grants for the user's
// computed roles and group-based grants for the user's groups, deduplicated.
// While the issue has open dependencies, final states are excluded. The
// result is ordered by state name, byte-wise ascending.
func (r Repo) TransitionsByUser(ctx context.Context, issue domain.Issue, userID string) ([]domain.State, error) {
	roles := access.ApplicableRoles(issue, userID)
	roleArgs := make([]any, 0, len(roles)+1)
	roleArgs = append(roleArgs, issue.StateID)
	placeholders := ""
	for i, role := range roles {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		roleArgs = append(roleArgs, string(role))
	}
	roleArgs = append(roleArgs, issue.StateID, userID)

	query := `
SELECT DISTINCT s.id,s.template_id,s.name,s.type,s.responsible,s.created_at
FROM states s
WHERE s.id IN (
    SELECT rt.to_state_id FROM state_role_transitions rt
    WHERE rt.from_state_id=? AND rt.role IN (` + placeholders + `)
    UNION
    SELECT gt.to_state_id FROM state_group_transitions gt
    JOIN group_members gm ON gm.group_id=gt.group_id
    WHERE gt.from_state_id=? AND gm.user_id=?
)
ORDER BY s.name`
	rows, err := r.DB.QueryContext(ctx, query, roleArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	states, err := collectStates(rows)
	if err != nil {
		return nil, err
	}
	blocked, err := r.HasOpenedDependencies(ctx, issue.ID)
	if err != nil {
		return nil, err
	}
	if !blocked {
		return states, nil
	}
	filtered := states[:0]
	for _, s := range states {
		if s.Type != domain.StateFinal {
			filtered = append(filtered, s)
		}
	}
	return filtered, nil
}

// ResponsiblesByState returns the candidate assignees for a state: members
// of any of its responsible groups, each user once, ordered by full name.
func (r Repo) ResponsiblesByState(ctx context.Context, stateID string) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT DISTINCT u.id,u.email,u.full_name,u.admin,u.created_at
FROM state_responsible_groups rg
JOIN group_members gm ON gm.group_id=rg.group_id
JOIN users u ON u.id=gm.user_id
WHERE rg.state_id=?
ORDER BY u.full_name, u.email`, stateID)
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

// FieldGrants loads the permission rows for a set of fields, keyed by field id.
func (r Repo) FieldGrants(ctx context.Context, fieldIDs []string) (map[string]access.FieldGrants, error) {
	grants := make(map[string]access.FieldGrants, len(fieldIDs))
	if len(fieldIDs) == 0 {
		return grants, nil
	}
	placeholders := ""
	args := make([]any, 0, len(fieldIDs))
	for i, id := range fieldIDs {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, id)
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT field_id,role,permission FROM field_role_permissions WHERE field_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.FieldRolePermission
		var role, perm string
		if err := rows.Scan(&p.FieldID, &role, &perm); err != nil {
			return nil, err
		}
		p.Role = domain.SystemRole(role)
		p.Permission = domain.FieldPermission(perm)
		g := grants[p.FieldID]
		g.Roles = append(g.Roles, p)
		grants[p.FieldID] = g
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	groupRows, err := r.DB.QueryContext(ctx, `SELECT field_id,group_id,permission FROM field_group_permissions WHERE field_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer groupRows.Close()
	for groupRows.Next() {
		var p domain.FieldGroupPermission
		var perm string
		if err := groupRows.Scan(&p.FieldID, &p.GroupID, &perm); err != nil {
			return nil, err
		}
		p.Permission = domain.FieldPermission(perm)
		g := grants[p.FieldID]
		g.Groups = append(g.Groups, p)
		grants[p.FieldID] = g
	}
	return grants, groupRows.Err()
}
