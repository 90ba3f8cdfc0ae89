package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"etraxis/internal/domain"
	"etraxis/internal/repo"
)

// ResolveProject picks the active project: the override if given, otherwise
// the single project in the database. If the override names a project that
// does not exist yet, it is created on the fly.
func ResolveProject(ctx context.Context, projectOverride string, r repo.Repo) (domain.Project, error) {
	if projectOverride == "" {
		p, err := r.SingleProject(ctx)
		if err != nil {
			return domain.Project{}, fmt.Errorf("project not specified; use --project")
		}
		return p, nil
	}
	p, err := r.GetProject(ctx, projectOverride)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Project{}, err
	}
	p = domain.Project{
		ID:        projectOverride,
		Name:      projectOverride,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.InsertProject(ctx, p); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ResolveActor maps the --actor value to a user, matching by id first and
// then by email. An unknown email is registered on the fly so local
// single-user workspaces need no prior setup.
func ResolveActor(ctx context.Context, actor string, r repo.Repo) (domain.User, error) {
	if actor == "" {
		return domain.User{}, fmt.Errorf("actor not specified; use --actor")
	}
	if u, err := r.GetUser(ctx, actor); err == nil {
		return u, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	if u, err := r.GetUserByEmail(ctx, actor); err == nil {
		return u, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	if !strings.Contains(actor, "@") {
		return domain.User{}, fmt.Errorf("unknown actor %s", actor)
	}
	u := domain.User{
		ID:        uuid.NewString(),
		Email:     actor,
		FullName:  actor[:strings.Index(actor, "@")],
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.InsertUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}
