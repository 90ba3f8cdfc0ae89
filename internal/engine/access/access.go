package access

import (
	"context"
	"database/sql"

	"etraxis/internal/domain"
)

// ApplicableRoles computes the system roles a user holds toward an issue.
// Anyone always applies; Author and Responsible depend on the issue itself.
func ApplicableRoles(issue domain.Issue, userID string) []domain.SystemRole {
	roles := []domain.SystemRole{domain.RoleAnyone}
	if issue.AuthorID == userID {
		roles = append(roles, domain.RoleAuthor)
	}
	if issue.ResponsibleID != nil && *issue.ResponsibleID == userID {
		roles = append(roles, domain.RoleResponsible)
	}
	return roles
}

// FieldGrants holds the permission rows relevant to one field.
type FieldGrants struct {
	Roles  []domain.FieldRolePermission
	Groups []domain.FieldGroupPermission
}

// IsVisible reports whether a user may see a field change on an issue.
// A change without a field (subject edits and other system changes) is
// visible to everyone. Otherwise any read or read/write grant suffices:
// role-based for the user's computed roles, or group-based for any group
// the user belongs to.
func IsVisible(change domain.Change, issue domain.Issue, userID string, grants FieldGrants, userGroups []string) bool {
	if change.FieldID == nil {
		return true
	}
	roles := ApplicableRoles(issue, userID)
	for _, rp := range grants.Roles {
		for _, role := range roles {
			if rp.Role == role {
				return true
			}
		}
	}
	if len(grants.Groups) == 0 || len(userGroups) == 0 {
		return false
	}
	member := make(map[string]bool, len(userGroups))
	for _, g := range userGroups {
		member[g] = true
	}
	for _, gp := range grants.Groups {
		if member[gp.GroupID] {
			return true
		}
	}
	return false
}

// Service provides membership lookups backed by SQL.
type Service struct {
	DB *sql.DB
}

// UserGroups returns ids of the groups a user belongs to.
func (s Service) UserGroups(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT group_id FROM group_members WHERE user_id=?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s Service) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT 1 FROM group_members WHERE group_id=? AND user_id=? LIMIT 1`, groupID, userID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}
