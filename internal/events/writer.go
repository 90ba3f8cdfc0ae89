package events

import (
	"context"
	"database/sql"
	"time"
)

// Event types recorded against issues. The log is append-only: rows are
// never updated or deleted.
const (
	IssueCreated      = "issue.created"
	IssueEdited       = "issue.edited"
	StateChanged      = "state.changed"
	IssueAssigned     = "issue.assigned"
	IssueReassigned   = "issue.reassigned"
	IssueClosed       = "issue.closed"
	IssueReopened     = "issue.reopened"
	IssueSuspended    = "issue.suspended"
	IssueResumed      = "issue.resumed"
	DependencyAdded   = "dependency.added"
	DependencyRemoved = "dependency.removed"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Append records an event for an issue and returns its id, so callers can
// attach change or dependency rows to it. The parameter is event-specific:
// a state name for state.changed, a full name for issue.assigned, and so on.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, issueID, userID string, parameter *string) (int64, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `INSERT INTO events(issue_id,type,user_id,created_at,parameter) VALUES (?,?,?,?,?)`,
		issueID, evtType, userID, ts, nullableStringPtr(parameter))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
