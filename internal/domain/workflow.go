package domain

import "fmt"

// StateType classifies a state within its template's workflow.
type StateType string

const (
	StateInitial      StateType = "initial"
	StateIntermediate StateType = "intermediate"
	StateFinal        StateType = "final"
)

// ResponsiblePolicy declares what happens to an issue's assignee when the
// issue enters a state.
type ResponsiblePolicy string

const (
	ResponsibleAssign ResponsiblePolicy = "assign"
	ResponsibleKeep   ResponsiblePolicy = "keep"
	ResponsibleRemove ResponsiblePolicy = "remove"
)

// SystemRole is computed per (issue, user) pair, never stored.
type SystemRole string

const (
	RoleAnyone      SystemRole = "anyone"
	RoleAuthor      SystemRole = "author"
	RoleResponsible SystemRole = "responsible"
)

// FieldPermission grants read or read/write access to a field's values.
type FieldPermission string

const (
	PermissionRead      FieldPermission = "read"
	PermissionReadWrite FieldPermission = "read_write"
)

type StateRoleTransition struct {
	FromStateID string     `json:"from_state_id"`
	ToStateID   string     `json:"to_state_id"`
	Role        SystemRole `json:"role"`
}

type StateGroupTransition struct {
	FromStateID string `json:"from_state_id"`
	ToStateID   string `json:"to_state_id"`
	GroupID     string `json:"group_id"`
}

type StateResponsibleGroup struct {
	StateID string `json:"state_id"`
	GroupID string `json:"group_id"`
}

type FieldRolePermission struct {
	FieldID    string          `json:"field_id"`
	Role       SystemRole      `json:"role"`
	Permission FieldPermission `json:"permission"`
}

type FieldGroupPermission struct {
	FieldID    string          `json:"field_id"`
	GroupID    string          `json:"group_id"`
	Permission FieldPermission `json:"permission"`
}

// NewState builds a state and normalizes its responsible policy.
// Final states never carry an assignee, so their policy is forced to remove.
func NewState(id, templateID, name string, typ StateType, policy ResponsiblePolicy, createdAt string) (State, error) {
	if name == "" {
		return State{}, fmt.Errorf("state name is required")
	}
	switch typ {
	case StateInitial, StateIntermediate, StateFinal:
	default:
		return State{}, fmt.Errorf("unknown state type %q", typ)
	}
	switch policy {
	case ResponsibleAssign, ResponsibleKeep, ResponsibleRemove:
	default:
		return State{}, fmt.Errorf("unknown responsible policy %q", policy)
	}
	if typ == StateFinal {
		policy = ResponsibleRemove
	}
	return State{
		ID:          id,
		TemplateID:  templateID,
		Name:        name,
		Type:        typ,
		Responsible: policy,
		CreatedAt:   createdAt,
	}, nil
}

// NewStateRoleTransition links two states of one template for a system role.
// States of different templates cannot be linked; that is a data-integrity
// failure, not a business rejection.
func NewStateRoleTransition(from, to State, role SystemRole) (StateRoleTransition, error) {
	if from.TemplateID != to.TemplateID {
		return StateRoleTransition{}, fmt.Errorf("states %s and %s belong to different templates", from.ID, to.ID)
	}
	switch role {
	case RoleAnyone, RoleAuthor, RoleResponsible:
	default:
		return StateRoleTransition{}, fmt.Errorf("unknown system role %q", role)
	}
	return StateRoleTransition{FromStateID: from.ID, ToStateID: to.ID, Role: role}, nil
}

// NewStateGroupTransition links two states of one template for a group.
// The group must belong to the same project as the states' template, or be global.
func NewStateGroupTransition(from, to State, tpl Template, g Group) (StateGroupTransition, error) {
	if from.TemplateID != to.TemplateID {
		return StateGroupTransition{}, fmt.Errorf("states %s and %s belong to different templates", from.ID, to.ID)
	}
	if from.TemplateID != tpl.ID {
		return StateGroupTransition{}, fmt.Errorf("state %s does not belong to template %s", from.ID, tpl.ID)
	}
	if !g.Global() && *g.ProjectID != tpl.ProjectID {
		return StateGroupTransition{}, fmt.Errorf("group %s belongs to a different project than template %s", g.ID, tpl.ID)
	}
	return StateGroupTransition{FromStateID: from.ID, ToStateID: to.ID, GroupID: g.ID}, nil
}

// NewStateResponsibleGroup declares a group whose members may become
// responsible when the state is entered.
func NewStateResponsibleGroup(s State, tpl Template, g Group) (StateResponsibleGroup, error) {
	if s.TemplateID != tpl.ID {
		return StateResponsibleGroup{}, fmt.Errorf("state %s does not belong to template %s", s.ID, tpl.ID)
	}
	if !g.Global() && *g.ProjectID != tpl.ProjectID {
		return StateResponsibleGroup{}, fmt.Errorf("group %s belongs to a different project than template %s", g.ID, tpl.ID)
	}
	return StateResponsibleGroup{StateID: s.ID, GroupID: g.ID}, nil
}

// NewFieldRolePermission grants a computed role access to a field.
func NewFieldRolePermission(f Field, role SystemRole, perm FieldPermission) (FieldRolePermission, error) {
	switch role {
	case RoleAnyone, RoleAuthor, RoleResponsible:
	default:
		return FieldRolePermission{}, fmt.Errorf("unknown system role %q", role)
	}
	if perm != PermissionRead && perm != PermissionReadWrite {
		return FieldRolePermission{}, fmt.Errorf("unknown permission %q", perm)
	}
	return FieldRolePermission{FieldID: f.ID, Role: role, Permission: perm}, nil
}

// NewFieldGroupPermission grants a group access to a field.
func NewFieldGroupPermission(f Field, g Group, perm FieldPermission) (FieldGroupPermission, error) {
	if perm != PermissionRead && perm != PermissionReadWrite {
		return FieldGroupPermission{}, fmt.Errorf("unknown permission %q", perm)
	}
	return FieldGroupPermission{FieldID: f.ID, GroupID: g.ID, Permission: perm}, nil
}
