package repo

import (
	"context"
	"database/sql"

	"etraxis/internal/domain"
)

func (r Repo) InsertIssue(ctx context.Context, tx *sql.Tx, i domain.Issue) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO issues(id,subject,state_id,author_id,responsible_id,created_at,changed_at,closed_at,resumes_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		i.ID, i.Subject, i.StateID, i.AuthorID, nullableStringPtr(i.ResponsibleID), i.CreatedAt, i.ChangedAt,
		nullableStringPtr(i.ClosedAt), nullableStringPtr(i.ResumesAt))
	return err
}

func (r Repo) UpdateIssue(ctx context.Context, tx *sql.Tx, i domain.Issue) error {
	_, err := tx.ExecContext(ctx, `UPDATE issues SET subject=?, state_id=?, responsible_id=?, changed_at=?, closed_at=?, resumes_at=? WHERE id=?`,
		i.Subject, i.StateID, nullableStringPtr(i.ResponsibleID), i.ChangedAt,
		nullableStringPtr(i.ClosedAt), nullableStringPtr(i.ResumesAt), i.ID)
	return err
}

func scanIssue(row interface{ Scan(...any) error }) (domain.Issue, error) {
	var i domain.Issue
	var responsible, closedAt, resumesAt sql.NullString
	err := row.Scan(&i.ID, &i.Subject, &i.StateID, &i.AuthorID, &responsible, &i.CreatedAt, &i.ChangedAt, &closedAt, &resumesAt)
	if err == sql.ErrNoRows {
		return i, ErrNotFound
	}
	if err != nil {
		return i, err
	}
	if responsible.Valid {
		i.ResponsibleID = &responsible.String
	}
	if closedAt.Valid {
		i.ClosedAt = &closedAt.String
	}
	if resumesAt.Valid {
		i.ResumesAt = &resumesAt.String
	}
	return i, nil
}

const issueColumns = `id,subject,state_id,author_id,responsible_id,created_at,changed_at,closed_at,resumes_at`

func (r Repo) GetIssue(ctx context.Context, id string) (domain.Issue, error) {
	return scanIssue(r.DB.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id=?`, id))
}

func (r Repo) GetIssueTx(ctx context.Context, tx *sql.Tx, id string) (domain.Issue, error) {
	return scanIssue(tx.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id=?`, id))
}

type IssueFilters struct {
	TemplateID      string
	StateID         string
	AuthorID        string
	ResponsibleID   string
	Open            bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListIssues(ctx context.Context, f IssueFilters) ([]domain.Issue, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.TemplateID != "" {
		clauses = append(clauses, "state_id IN (SELECT id FROM states WHERE template_id=?)")
		args = append(args, f.TemplateID)
	}
	if f.StateID != "" {
		clauses = append(clauses, "state_id=?")
		args = append(args, f.StateID)
	}
	if f.AuthorID != "" {
		clauses = append(clauses, "author_id=?")
		args = append(args, f.AuthorID)
	}
	if f.ResponsibleID != "" {
		clauses = append(clauses, "responsible_id=?")
		args = append(args, f.ResponsibleID)
	}
	if f.Open {
		clauses = append(clauses, "closed_at IS NULL")
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + issueColumns + ` FROM issues WHERE ` + joinAnd(clauses) + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, i)
	}
	return res, rows.Err()
}

func joinAnd(clauses []string) string {
	out := ""
	for i, c := range clauses {
		if i > 0 {
			out += " AND "
		}
		out += c
	}
	return out
}

// --- dependencies ---

func (r Repo) AddDependency(ctx context.Context, tx *sql.Tx, d domain.Dependency) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO dependencies(issue_id,event_id,dependency_id) VALUES (?,?,?)`,
		d.IssueID, d.EventID, d.DependencyID)
	return err
}

func (r Repo) RemoveDependency(ctx context.Context, tx *sql.Tx, issueID, dependencyID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE issue_id=? AND dependency_id=?`, issueID, dependencyID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListDependencies(ctx context.Context, issueID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT dependency_id FROM dependencies WHERE issue_id=?`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var deps []string
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

// HasOpenedDependencies reports whether any issue this one depends on is
// still open.
func (r Repo) HasOpenedDependencies(ctx context.Context, issueID string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `
SELECT 1 FROM dependencies d
JOIN issues dep ON dep.id=d.dependency_id
WHERE d.issue_id=? AND dep.closed_at IS NULL
LIMIT 1`, issueID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// --- events ---

func (r Repo) ListEvents(ctx context.Context, issueID string) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,issue_id,type,user_id,created_at,parameter FROM events WHERE issue_id=? ORDER BY id ASC`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var parameter sql.NullString
		if err := rows.Scan(&e.ID, &e.IssueID, &e.Type, &e.UserID, &e.CreatedAt, &parameter); err != nil {
			return nil, err
		}
		if parameter.Valid {
			e.Parameter = &parameter.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEvents returns most recent events across issues, optionally filtered.
func (r Repo) LatestEvents(ctx context.Context, limit int, issueID, evtType string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if issueID != "" {
		clauses = append(clauses, "issue_id=?")
		args = append(args, issueID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	query := `SELECT id,issue_id,type,user_id,created_at,parameter FROM events WHERE ` + joinAnd(clauses) + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var parameter sql.NullString
		if err := rows.Scan(&e.ID, &e.IssueID, &e.Type, &e.UserID, &e.CreatedAt, &parameter); err != nil {
			return nil, err
		}
		if parameter.Valid {
			e.Parameter = &parameter.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
