package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStateForcesRemoveOnFinal(t *testing.T) {
	s, err := NewState("s1", "t1", "Closed", StateFinal, ResponsibleAssign, "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	require.Equal(t, ResponsibleRemove, s.Responsible)

	s, err = NewState("s2", "t1", "Assigned", StateIntermediate, ResponsibleAssign, "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	require.Equal(t, ResponsibleAssign, s.Responsible)
}

func TestNewStateRejectsBadInput(t *testing.T) {
	_, err := NewState("s1", "t1", "", StateInitial, ResponsibleKeep, "2024-01-01T00:00:00Z")
	require.Error(t, err)

	_, err = NewState("s1", "t1", "New", "weird", ResponsibleKeep, "2024-01-01T00:00:00Z")
	require.Error(t, err)

	_, err = NewState("s1", "t1", "New", StateInitial, "whatever", "2024-01-01T00:00:00Z")
	require.Error(t, err)
}

func TestRoleTransitionSameTemplateOnly(t *testing.T) {
	from := State{ID: "s1", TemplateID: "t1", Name: "New", Type: StateInitial}
	to := State{ID: "s2", TemplateID: "t1", Name: "Assigned", Type: StateIntermediate}
	other := State{ID: "s3", TemplateID: "t2", Name: "Done", Type: StateFinal}

	tr, err := NewStateRoleTransition(from, to, RoleAuthor)
	require.NoError(t, err)
	require.Equal(t, "s1", tr.FromStateID)
	require.Equal(t, "s2", tr.ToStateID)

	_, err = NewStateRoleTransition(from, other, RoleAuthor)
	require.Error(t, err)

	_, err = NewStateRoleTransition(from, to, "owner")
	require.Error(t, err)
}

func TestGroupTransitionScope(t *testing.T) {
	tpl := Template{ID: "t1", ProjectID: "p1"}
	from := State{ID: "s1", TemplateID: "t1"}
	to := State{ID: "s2", TemplateID: "t1"}
	p1 := "p1"
	p2 := "p2"

	_, err := NewStateGroupTransition(from, to, tpl, Group{ID: "g1", ProjectID: &p1})
	require.NoError(t, err)

	// global groups may be granted anywhere
	_, err = NewStateGroupTransition(from, to, tpl, Group{ID: "g2"})
	require.NoError(t, err)

	_, err = NewStateGroupTransition(from, to, tpl, Group{ID: "g3", ProjectID: &p2})
	require.Error(t, err)
}

func TestFieldPermissionConstructors(t *testing.T) {
	f := Field{ID: "f1", StateID: "s1", Name: "Severity"}

	p, err := NewFieldRolePermission(f, RoleAuthor, PermissionReadWrite)
	require.NoError(t, err)
	require.Equal(t, "f1", p.FieldID)

	_, err = NewFieldRolePermission(f, RoleAuthor, "write")
	require.Error(t, err)

	_, err = NewFieldGroupPermission(f, Group{ID: "g1"}, "none")
	require.Error(t, err)
}
