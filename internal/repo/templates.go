package repo

import (
	"context"
	"database/sql"
	"fmt"

	"etraxis/internal/domain"
)

func (r Repo) InsertTemplate(ctx context.Context, tx *sql.Tx, t domain.Template) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO templates(id,project_id,name,prefix,description,locked,created_at) VALUES (?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Name, t.Prefix, nullable(t.Description), t.Locked, t.CreatedAt)
	return err
}

func (r Repo) GetTemplate(ctx context.Context, id string) (domain.Template, error) {
	var t domain.Template
	err := r.DB.QueryRowContext(ctx, `SELECT id,project_id,name,prefix,COALESCE(description,''),locked,created_at FROM templates WHERE id=?`, id).
		Scan(&t.ID, &t.ProjectID, &t.Name, &t.Prefix, &t.Description, &t.Locked, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) ListTemplates(ctx context.Context, projectID string) ([]domain.Template, error) {
	query := `SELECT id,project_id,name,prefix,COALESCE(description,''),locked,created_at FROM templates`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id=?`
		args = append(args, projectID)
	}
	query += ` ORDER BY name`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Template
	for rows.Next() {
		var t domain.Template
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Prefix, &t.Description, &t.Locked, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) SetTemplateLocked(ctx context.Context, id string, locked bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE templates SET locked=? WHERE id=?`, locked, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- states ---

func (r Repo) InsertState(ctx context.Context, tx *sql.Tx, s domain.State) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO states(id,template_id,name,type,responsible,created_at) VALUES (?,?,?,?,?,?)`,
		s.ID, s.TemplateID, s.Name, string(s.Type), string(s.Responsible), s.CreatedAt)
	return err
}

func scanState(row interface{ Scan(...any) error }) (domain.State, error) {
	var s domain.State
	var typ, responsible string
	err := row.Scan(&s.ID, &s.TemplateID, &s.Name, &typ, &responsible, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	s.Type = domain.StateType(typ)
	s.Responsible = domain.ResponsiblePolicy(responsible)
	return s, err
}

func (r Repo) GetState(ctx context.Context, id string) (domain.State, error) {
	return scanState(r.DB.QueryRowContext(ctx, `SELECT id,template_id,name,type,responsible,created_at FROM states WHERE id=?`, id))
}

func (r Repo) GetStateTx(ctx context.Context, tx *sql.Tx, id string) (domain.State, error) {
	return scanState(tx.QueryRowContext(ctx, `SELECT id,template_id,name,type,responsible,created_at FROM states WHERE id=?`, id))
}

func (r Repo) ListStates(ctx context.Context, templateID string) ([]domain.State, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,template_id,name,type,responsible,created_at FROM states WHERE template_id=? ORDER BY name`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStates(rows)
}

// InitialState resolves the template's single initial state. Zero or more
// than one initial state is a template definition defect surfaced here, at
// issue-creation time.
func (r Repo) InitialState(ctx context.Context, templateID string) (domain.State, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,template_id,name,type,responsible,created_at FROM states WHERE template_id=? AND type='initial'`, templateID)
	if err != nil {
		return domain.State{}, err
	}
	defer rows.Close()
	states, err := collectStates(rows)
	if err != nil {
		return domain.State{}, err
	}
	if len(states) == 0 {
		return domain.State{}, ErrNotFound
	}
	if len(states) > 1 {
		return domain.State{}, fmt.Errorf("template %s has %d initial states", templateID, len(states))
	}
	return states[0], nil
}

func collectStates(rows *sql.Rows) ([]domain.State, error) {
	var res []domain.State
	for rows.Next() {
		var s domain.State
		var typ, responsible string
		if err := rows.Scan(&s.ID, &s.TemplateID, &s.Name, &typ, &responsible, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Type = domain.StateType(typ)
		s.Responsible = domain.ResponsiblePolicy(responsible)
		res = append(res, s)
	}
	return res, rows.Err()
}

// --- fields ---

func (r Repo) InsertField(ctx context.Context, tx *sql.Tx, f domain.Field) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO fields(id,state_id,name,type,position,required,removed_at) VALUES (?,?,?,?,?,?,?)`,
		f.ID, f.StateID, f.Name, f.Type, f.Position, f.Required, nullableStringPtr(f.RemovedAt))
	return err
}

func (r Repo) GetField(ctx context.Context, id string) (domain.Field, error) {
	var f domain.Field
	var removedAt sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,state_id,name,type,position,required,removed_at FROM fields WHERE id=?`, id).
		Scan(&f.ID, &f.StateID, &f.Name, &f.Type, &f.Position, &f.Required, &removedAt)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	if removedAt.Valid {
		f.RemovedAt = &removedAt.String
	}
	return f, err
}

func (r Repo) ListFields(ctx context.Context, stateID string) ([]domain.Field, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,state_id,name,type,position,required,removed_at FROM fields WHERE state_id=? ORDER BY position`, stateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Field
	for rows.Next() {
		var f domain.Field
		var removedAt sql.NullString
		if err := rows.Scan(&f.ID, &f.StateID, &f.Name, &f.Type, &f.Position, &f.Required, &removedAt); err != nil {
			return nil, err
		}
		if removedAt.Valid {
			f.RemovedAt = &removedAt.String
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

// RemoveField soft-deletes a field, keeping its historical changes readable.
func (r Repo) RemoveField(ctx context.Context, tx *sql.Tx, id, removedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE fields SET removed_at=? WHERE id=? AND removed_at IS NULL`, removedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
