package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"etraxis/internal/config"
	"etraxis/internal/domain"
)

// ImportWorkflow materializes a declarative workflow schema as a template
// with its states, transition grants, responsible groups, and field
// permissions, all in one transaction. The raw YAML is kept alongside the
// template so the schema can be exported back out.
//
// Groups are referenced by name and must already exist, either in the
// template's project or as global groups.
func (e Engine) ImportWorkflow(ctx context.Context, cfg *config.Config, raw []byte) (domain.Template, error) {
	if err := cfg.Validate(); err != nil {
		return domain.Template{}, err
	}
	project, err := e.Repo.GetProject(ctx, cfg.Project.ID)
	if err != nil {
		return domain.Template{}, fmt.Errorf("project %s: %w", cfg.Project.ID, err)
	}
	known, err := e.Repo.ListGroups(ctx, project.ID)
	if err != nil {
		return domain.Template{}, err
	}
	groups := map[string]domain.Group{}
	for _, g := range known {
		groups[g.Name] = g
	}
	groupByName := func(name string) (domain.Group, error) {
		g, ok := groups[name]
		if !ok {
			return domain.Group{}, fmt.Errorf("group %s not found in project %s", name, project.ID)
		}
		return g, nil
	}

	if raw == nil {
		raw, err = yaml.Marshal(cfg)
		if err != nil {
			return domain.Template{}, err
		}
	}
	now := e.nowString()
	tpl := domain.Template{
		ID:          uuid.NewString(),
		ProjectID:   project.ID,
		Name:        cfg.Template.Name,
		Prefix:      cfg.Template.Prefix,
		Description: cfg.Template.Description,
		CreatedAt:   now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Template{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTemplate(ctx, tx, tpl); err != nil {
		return domain.Template{}, err
	}

	states := map[string]domain.State{}
	for _, def := range cfg.States {
		policy := domain.ResponsiblePolicy(def.Responsible)
		if def.Responsible == "" {
			policy = domain.ResponsibleKeep
		}
		s, err := domain.NewState(uuid.NewString(), tpl.ID, def.Name, domain.StateType(def.Type), policy, now)
		if err != nil {
			return domain.Template{}, err
		}
		if err := e.Repo.InsertState(ctx, tx, s); err != nil {
			return domain.Template{}, err
		}
		states[s.Name] = s
	}

	for _, def := range cfg.RoleTransitions {
		t, err := domain.NewStateRoleTransition(states[def.From], states[def.To], domain.SystemRole(def.Role))
		if err != nil {
			return domain.Template{}, err
		}
		if err := e.Repo.AddRoleTransition(ctx, tx, t); err != nil {
			return domain.Template{}, err
		}
	}
	for _, def := range cfg.GroupTransitions {
		g, err := groupByName(def.Group)
		if err != nil {
			return domain.Template{}, err
		}
		t, err := domain.NewStateGroupTransition(states[def.From], states[def.To], tpl, g)
		if err != nil {
			return domain.Template{}, err
		}
		if err := e.Repo.AddGroupTransition(ctx, tx, t); err != nil {
			return domain.Template{}, err
		}
	}
	for _, def := range cfg.ResponsibleGroups {
		g, err := groupByName(def.Group)
		if err != nil {
			return domain.Template{}, err
		}
		rg, err := domain.NewStateResponsibleGroup(states[def.State], tpl, g)
		if err != nil {
			return domain.Template{}, err
		}
		if err := e.Repo.AddResponsibleGroup(ctx, tx, rg); err != nil {
			return domain.Template{}, err
		}
	}

	for i, def := range cfg.Fields {
		position := def.Position
		if position == 0 {
			position = i + 1
		}
		f := domain.Field{
			ID:       uuid.NewString(),
			StateID:  states[def.State].ID,
			Name:     def.Name,
			Type:     def.Type,
			Position: position,
			Required: def.Required,
		}
		if err := e.Repo.InsertField(ctx, tx, f); err != nil {
			return domain.Template{}, err
		}
		for role, perm := range def.RolePermissions {
			p, err := domain.NewFieldRolePermission(f, domain.SystemRole(role), domain.FieldPermission(perm))
			if err != nil {
				return domain.Template{}, err
			}
			if err := e.Repo.SetFieldRolePermission(ctx, tx, p); err != nil {
				return domain.Template{}, err
			}
		}
		for groupName, perm := range def.GroupPermissions {
			g, err := groupByName(groupName)
			if err != nil {
				return domain.Template{}, err
			}
			p, err := domain.NewFieldGroupPermission(f, g, domain.FieldPermission(perm))
			if err != nil {
				return domain.Template{}, err
			}
			if err := e.Repo.SetFieldGroupPermission(ctx, tx, p); err != nil {
				return domain.Template{}, err
			}
		}
	}

	if err := e.Repo.UpsertWorkflowConfigTx(ctx, tx, tpl.ID, string(raw), now); err != nil {
		return domain.Template{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Template{}, err
	}
	return tpl, nil
}
