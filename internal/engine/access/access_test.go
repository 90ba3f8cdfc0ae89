package access

import (
	"testing"

	"github.com/stretchr/testify/require"

	"etraxis/internal/domain"
)

func TestApplicableRoles(t *testing.T) {
	responsible := "u2"
	issue := domain.Issue{ID: "i1", AuthorID: "u1", ResponsibleID: &responsible}

	require.Equal(t, []domain.SystemRole{domain.RoleAnyone, domain.RoleAuthor}, ApplicableRoles(issue, "u1"))
	require.Equal(t, []domain.SystemRole{domain.RoleAnyone, domain.RoleResponsible}, ApplicableRoles(issue, "u2"))
	require.Equal(t, []domain.SystemRole{domain.RoleAnyone}, ApplicableRoles(issue, "u3"))

	issue.ResponsibleID = nil
	require.Equal(t, []domain.SystemRole{domain.RoleAnyone}, ApplicableRoles(issue, "u2"))
}

func TestIsVisibleNilFieldAlwaysVisible(t *testing.T) {
	issue := domain.Issue{ID: "i1", AuthorID: "u1"}
	change := domain.Change{EventID: 1}

	require.True(t, IsVisible(change, issue, "stranger", FieldGrants{}, nil))
}

func TestIsVisibleRoleGrant(t *testing.T) {
	issue := domain.Issue{ID: "i1", AuthorID: "u1"}
	fieldID := "f1"
	change := domain.Change{EventID: 1, FieldID: &fieldID}
	grants := FieldGrants{
		Roles: []domain.FieldRolePermission{
			{FieldID: fieldID, Role: domain.RoleAuthor, Permission: domain.PermissionRead},
		},
	}

	require.True(t, IsVisible(change, issue, "u1", grants, nil))
	require.False(t, IsVisible(change, issue, "u2", grants, nil))
}

func TestIsVisibleAnyoneGrant(t *testing.T) {
	issue := domain.Issue{ID: "i1", AuthorID: "u1"}
	fieldID := "f1"
	change := domain.Change{EventID: 1, FieldID: &fieldID}
	grants := FieldGrants{
		Roles: []domain.FieldRolePermission{
			{FieldID: fieldID, Role: domain.RoleAnyone, Permission: domain.PermissionRead},
		},
	}

	require.True(t, IsVisible(change, issue, "anybody", grants, nil))
}

func TestIsVisibleGroupGrant(t *testing.T) {
	issue := domain.Issue{ID: "i1", AuthorID: "u1"}
	fieldID := "f1"
	change := domain.Change{EventID: 1, FieldID: &fieldID}
	grants := FieldGrants{
		Groups: []domain.FieldGroupPermission{
			{FieldID: fieldID, GroupID: "g1", Permission: domain.PermissionReadWrite},
		},
	}

	require.True(t, IsVisible(change, issue, "u2", grants, []string{"g1", "g2"}))
	require.False(t, IsVisible(change, issue, "u2", grants, []string{"g3"}))
	require.False(t, IsVisible(change, issue, "u2", grants, nil))
}

func TestIsVisibleReadWriteImpliesRead(t *testing.T) {
	issue := domain.Issue{ID: "i1", AuthorID: "u1"}
	fieldID := "f1"
	change := domain.Change{EventID: 1, FieldID: &fieldID}
	grants := FieldGrants{
		Roles: []domain.FieldRolePermission{
			{FieldID: fieldID, Role: domain.RoleAuthor, Permission: domain.PermissionReadWrite},
		},
	}

	require.True(t, IsVisible(change, issue, "u1", grants, nil))
}

func TestIsVisibleNoGrants(t *testing.T) {
	issue := domain.Issue{ID: "i1", AuthorID: "u1"}
	fieldID := "f1"
	change := domain.Change{EventID: 1, FieldID: &fieldID}

	require.False(t, IsVisible(change, issue, "u1", FieldGrants{}, []string{"g1"}))
}
