package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"etraxis/internal/domain"
	"etraxis/internal/repo"
)

// Administrative operations: directory data and workflow schema live here.
// They do not touch issues, so there is no event trail to keep; invariants
// are enforced through the domain constructors before anything is written.

func (e Engine) CreateUser(ctx context.Context, email, fullName string, admin bool) (domain.User, error) {
	if email == "" {
		return domain.User{}, errors.New("email is required")
	}
	if fullName == "" {
		return domain.User{}, errors.New("full name is required")
	}
	if _, err := e.Repo.GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, fmt.Errorf("user %s already exists", email)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	u := domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		FullName:  fullName,
		Admin:     admin,
		CreatedAt: e.nowString(),
	}
	if err := e.Repo.InsertUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (e Engine) CreateProject(ctx context.Context, id, name, description string) (domain.Project, error) {
	if name == "" {
		return domain.Project{}, errors.New("name is required")
	}
	if id == "" {
		id = uuid.NewString()
	}
	p := domain.Project{
		ID:          id,
		Name:        name,
		Description: description,
		CreatedAt:   e.nowString(),
	}
	if err := e.Repo.InsertProject(ctx, p); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// CreateGroup creates a project-local group, or a global group when
// projectID is empty.
func (e Engine) CreateGroup(ctx context.Context, projectID, name, description string) (domain.Group, error) {
	if name == "" {
		return domain.Group{}, errors.New("name is required")
	}
	g := domain.Group{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   e.nowString(),
	}
	if projectID != "" {
		if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
			return domain.Group{}, err
		}
		g.ProjectID = &projectID
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Group{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertGroup(ctx, tx, g); err != nil {
		return domain.Group{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Group{}, err
	}
	return g, nil
}

func (e Engine) AddMember(ctx context.Context, groupID, userID string) error {
	if _, err := e.Repo.GetGroup(ctx, groupID); err != nil {
		return err
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.AddGroupMember(ctx, tx, groupID, userID); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) RemoveMember(ctx context.Context, groupID, userID string) error {
	member, err := e.Access.IsMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !member {
		return fmt.Errorf("user %s is not a member of group %s", userID, groupID)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RemoveGroupMember(ctx, tx, groupID, userID); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) CreateTemplate(ctx context.Context, projectID, name, prefix, description string) (domain.Template, error) {
	if name == "" || prefix == "" {
		return domain.Template{}, errors.New("name and prefix are required")
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.Template{}, err
	}
	t := domain.Template{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Name:        name,
		Prefix:      prefix,
		Description: description,
		CreatedAt:   e.nowString(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Template{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTemplate(ctx, tx, t); err != nil {
		return domain.Template{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Template{}, err
	}
	return t, nil
}

// CreateState adds a state to a template. Only one initial state may exist
// per template; final states have their responsible policy forced to remove
// by the constructor.
func (e Engine) CreateState(ctx context.Context, templateID, name string, typ domain.StateType, policy domain.ResponsiblePolicy) (domain.State, error) {
	tpl, err := e.Repo.GetTemplate(ctx, templateID)
	if err != nil {
		return domain.State{}, err
	}
	if tpl.Locked {
		return domain.State{}, fmt.Errorf("template %s is locked", tpl.ID)
	}
	if typ == domain.StateInitial {
		if _, err := e.Repo.InitialState(ctx, tpl.ID); err == nil {
			return domain.State{}, fmt.Errorf("template %s already has an initial state", tpl.ID)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return domain.State{}, err
		}
	}
	s, err := domain.NewState(uuid.NewString(), tpl.ID, name, typ, policy, e.nowString())
	if err != nil {
		return domain.State{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.State{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertState(ctx, tx, s); err != nil {
		return domain.State{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.State{}, err
	}
	return s, nil
}

func (e Engine) CreateField(ctx context.Context, stateID, name, fieldType string, position int, required bool) (domain.Field, error) {
	if name == "" {
		return domain.Field{}, errors.New("name is required")
	}
	if _, err := e.Repo.GetState(ctx, stateID); err != nil {
		return domain.Field{}, err
	}
	f := domain.Field{
		ID:       uuid.NewString(),
		StateID:  stateID,
		Name:     name,
		Type:     fieldType,
		Position: position,
		Required: required,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Field{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertField(ctx, tx, f); err != nil {
		return domain.Field{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Field{}, err
	}
	return f, nil
}

// RemoveField soft-deletes a field. Past changes referencing it remain
// readable to users the field's permissions admit.
func (e Engine) RemoveField(ctx context.Context, fieldID string) error {
	if _, err := e.Repo.GetField(ctx, fieldID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RemoveField(ctx, tx, fieldID, e.nowString()); err != nil {
		return err
	}
	return tx.Commit()
}

// GrantRoleTransition allows a system role to move issues between two states
// of the same template.
func (e Engine) GrantRoleTransition(ctx context.Context, fromStateID, toStateID string, role domain.SystemRole) error {
	from, err := e.Repo.GetState(ctx, fromStateID)
	if err != nil {
		return err
	}
	to, err := e.Repo.GetState(ctx, toStateID)
	if err != nil {
		return err
	}
	t, err := domain.NewStateRoleTransition(from, to, role)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.AddRoleTransition(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit()
}

// GrantGroupTransition allows members of a group to move issues between two
// states of the same template. The group must belong to the template's
// project or be global.
func (e Engine) GrantGroupTransition(ctx context.Context, fromStateID, toStateID, groupID string) error {
	from, err := e.Repo.GetState(ctx, fromStateID)
	if err != nil {
		return err
	}
	to, err := e.Repo.GetState(ctx, toStateID)
	if err != nil {
		return err
	}
	tpl, err := e.Repo.GetTemplate(ctx, from.TemplateID)
	if err != nil {
		return err
	}
	g, err := e.Repo.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	t, err := domain.NewStateGroupTransition(from, to, tpl, g)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.AddGroupTransition(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit()
}

// GrantResponsibleGroup marks a group's members as candidate assignees for a
// state.
func (e Engine) GrantResponsibleGroup(ctx context.Context, stateID, groupID string) error {
	s, err := e.Repo.GetState(ctx, stateID)
	if err != nil {
		return err
	}
	tpl, err := e.Repo.GetTemplate(ctx, s.TemplateID)
	if err != nil {
		return err
	}
	g, err := e.Repo.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	rg, err := domain.NewStateResponsibleGroup(s, tpl, g)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.AddResponsibleGroup(ctx, tx, rg); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) GrantFieldRolePermission(ctx context.Context, fieldID string, role domain.SystemRole, perm domain.FieldPermission) error {
	f, err := e.Repo.GetField(ctx, fieldID)
	if err != nil {
		return err
	}
	p, err := domain.NewFieldRolePermission(f, role, perm)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetFieldRolePermission(ctx, tx, p); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) GrantFieldGroupPermission(ctx context.Context, fieldID, groupID string, perm domain.FieldPermission) error {
	f, err := e.Repo.GetField(ctx, fieldID)
	if err != nil {
		return err
	}
	g, err := e.Repo.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	p, err := domain.NewFieldGroupPermission(f, g, perm)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetFieldGroupPermission(ctx, tx, p); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) LockTemplate(ctx context.Context, templateID string, locked bool) error {
	if _, err := e.Repo.GetTemplate(ctx, templateID); err != nil {
		return err
	}
	return e.Repo.SetTemplateLocked(ctx, templateID, locked)
}
