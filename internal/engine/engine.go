package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"etraxis/internal/domain"
	"etraxis/internal/engine/access"
	"etraxis/internal/events"
	"etraxis/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Access access.Service
	Now    func() time.Time
}

func New(db *sql.DB) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Access: access.Service{DB: db},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

// IssueCreateOptions are parameters for creating an issue.
type IssueCreateOptions struct {
	ID         string
	TemplateID string
	Subject    string
	AuthorID   string
}

// CreateIssue places a new issue in the template's initial state and records
// the creation event. The template must declare exactly one initial state.
func (e Engine) CreateIssue(ctx context.Context, opts IssueCreateOptions) (domain.Issue, error) {
	if opts.Subject == "" {
		return domain.Issue{}, errors.New("subject is required")
	}
	if opts.TemplateID == "" {
		return domain.Issue{}, errors.New("template is required")
	}
	if _, err := e.Repo.GetUser(ctx, opts.AuthorID); err != nil {
		return domain.Issue{}, fmt.Errorf("author %s: %w", opts.AuthorID, err)
	}
	tpl, err := e.Repo.GetTemplate(ctx, opts.TemplateID)
	if err != nil {
		return domain.Issue{}, err
	}
	if tpl.Locked {
		return domain.Issue{}, fmt.Errorf("template %s is locked", tpl.ID)
	}
	initial, err := e.Repo.InitialState(ctx, tpl.ID)
	if err != nil {
		return domain.Issue{}, err
	}

	id := opts.ID
	now := e.nowString()
	if id == "" {
		id = uuid.NewString()
	}
	i := domain.Issue{
		ID:        id,
		Subject:   opts.Subject,
		StateID:   initial.ID,
		AuthorID:  opts.AuthorID,
		CreatedAt: now,
		ChangedAt: now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Issue{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertIssue(ctx, tx, i); err != nil {
		return domain.Issue{}, err
	}
	if _, err := e.Events.Append(ctx, tx, events.IssueCreated, i.ID, opts.AuthorID, &initial.Name); err != nil {
		return domain.Issue{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Issue{}, err
	}
	return i, nil
}

// TransitionIssue moves an issue to the given destination state on behalf of
// a user. The destination must be among the states TransitionsByUser resolves
// for that user, otherwise the call is a business rejection: (issue, false,
// nil) with no mutation. A destination belonging to a different template is a
// data error and is surfaced as such.
//
// Entering a state applies its responsible policy: "assign" requires a
// candidate responsible, "keep" preserves the current one, "remove" clears
// it. Entering a final state stamps closed_at; leaving a closed issue through
// a transition clears it and records a reopen.
func (e Engine) TransitionIssue(ctx context.Context, issueID, stateID, userID string, responsibleID *string) (domain.Issue, bool, error) {
	issue, err := e.Repo.GetIssue(ctx, issueID)
	if err != nil {
		return domain.Issue{}, false, err
	}
	current, err := e.Repo.GetState(ctx, issue.StateID)
	if err != nil {
		return domain.Issue{}, false, err
	}
	target, err := e.Repo.GetState(ctx, stateID)
	if err != nil {
		return domain.Issue{}, false, fmt.Errorf("unknown state %s: %w", stateID, err)
	}
	if target.TemplateID != current.TemplateID {
		return domain.Issue{}, false, fmt.Errorf("state %s does not belong to template %s", target.ID, current.TemplateID)
	}
	now := e.nowString()
	if issue.Suspended(now) {
		return issue, false, nil
	}
	candidates, err := e.Repo.TransitionsByUser(ctx, issue, userID)
	if err != nil {
		return domain.Issue{}, false, err
	}
	allowed := false
	for _, s := range candidates {
		if s.ID == target.ID {
			allowed = true
			break
		}
	}
	if !allowed {
		return issue, false, nil
	}

	switch target.Responsible {
	case domain.ResponsibleAssign:
		if responsibleID == nil {
			return issue, false, nil
		}
		ok, err := e.isCandidateResponsible(ctx, target.ID, *responsibleID)
		if err != nil {
			return domain.Issue{}, false, err
		}
		if !ok {
			return issue, false, nil
		}
		issue.ResponsibleID = responsibleID
	case domain.ResponsibleRemove:
		issue.ResponsibleID = nil
	}

	wasClosed := issue.Closed()
	issue.StateID = target.ID
	issue.ChangedAt = now
	if target.Type == domain.StateFinal {
		issue.ClosedAt = &now
	} else {
		issue.ClosedAt = nil
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Issue{}, false, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateIssue(ctx, tx, issue); err != nil {
		return domain.Issue{}, false, err
	}
	if _, err := e.Events.Append(ctx, tx, events.StateChanged, issue.ID, userID, &target.Name); err != nil {
		return domain.Issue{}, false, err
	}
	if target.Type == domain.StateFinal {
		if _, err := e.Events.Append(ctx, tx, events.IssueClosed, issue.ID, userID, nil); err != nil {
			return domain.Issue{}, false, err
		}
	} else if wasClosed {
		if _, err := e.Events.Append(ctx, tx, events.IssueReopened, issue.ID, userID, nil); err != nil {
			return domain.Issue{}, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Issue{}, false, err
	}
	return issue, true, nil
}

func (e Engine) isCandidateResponsible(ctx context.Context, stateID, userID string) (bool, error) {
	candidates, err := e.Repo.ResponsiblesByState(ctx, stateID)
	if err != nil {
		return false, err
	}
	for _, u := range candidates {
		if u.ID == userID {
			return true, nil
		}
	}
	return false, nil
}

// AssignIssue sets the issue's responsible, provided the proposed user is a
// candidate for the issue's current state. It returns false without mutation
// when the candidate check fails or the issue is closed or suspended. The
// assignment and its event commit in one transaction so concurrent
// assignments cannot interleave.
func (e Engine) AssignIssue(ctx context.Context, issueID, responsibleID, actorID string) (bool, error) {
	return e.assign(ctx, issueID, responsibleID, actorID, false)
}

// ReassignIssue replaces the issue's current responsible. Unlike AssignIssue
// it returns false when the issue has no responsible yet.
func (e Engine) ReassignIssue(ctx context.Context, issueID, responsibleID, actorID string) (bool, error) {
	return e.assign(ctx, issueID, responsibleID, actorID, true)
}

func (e Engine) assign(ctx context.Context, issueID, responsibleID, actorID string, reassign bool) (bool, error) {
	responsible, err := e.Repo.GetUser(ctx, responsibleID)
	if err != nil {
		return false, fmt.Errorf("user %s: %w", responsibleID, err)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	issue, err := e.Repo.GetIssueTx(ctx, tx, issueID)
	if err != nil {
		return false, err
	}
	now := e.nowString()
	if issue.Closed() || issue.Suspended(now) {
		return false, nil
	}
	if reassign && issue.ResponsibleID == nil {
		return false, nil
	}
	ok, err := e.isCandidateResponsible(ctx, issue.StateID, responsible.ID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	issue.ResponsibleID = &responsible.ID
	issue.ChangedAt = now
	if err := e.Repo.UpdateIssue(ctx, tx, issue); err != nil {
		return false, err
	}
	evtType := events.IssueAssigned
	if reassign {
		evtType = events.IssueReassigned
	}
	if _, err := e.Events.Append(ctx, tx, evtType, issue.ID, actorID, &responsible.FullName); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// SuspendIssue pauses an open issue until the given RFC3339 instant.
func (e Engine) SuspendIssue(ctx context.Context, issueID, resumesAt, actorID string) (bool, error) {
	at, err := time.Parse(time.RFC3339, resumesAt)
	if err != nil {
		return false, fmt.Errorf("invalid resume date %q: %w", resumesAt, err)
	}
	now := e.now().UTC()
	if !at.After(now) {
		return false, fmt.Errorf("resume date %s is not in the future", resumesAt)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	issue, err := e.Repo.GetIssueTx(ctx, tx, issueID)
	if err != nil {
		return false, err
	}
	nowStr := now.Format(time.RFC3339)
	if issue.Closed() || issue.Suspended(nowStr) {
		return false, nil
	}
	resumes := at.UTC().Format(time.RFC3339)
	issue.ResumesAt = &resumes
	issue.ChangedAt = nowStr
	if err := e.Repo.UpdateIssue(ctx, tx, issue); err != nil {
		return false, err
	}
	if _, err := e.Events.Append(ctx, tx, events.IssueSuspended, issue.ID, actorID, &resumes); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ResumeIssue lifts a suspension before its resume date.
func (e Engine) ResumeIssue(ctx context.Context, issueID, actorID string) (bool, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	issue, err := e.Repo.GetIssueTx(ctx, tx, issueID)
	if err != nil {
		return false, err
	}
	now := e.nowString()
	if !issue.Suspended(now) {
		return false, nil
	}
	issue.ResumesAt = nil
	issue.ChangedAt = now
	if err := e.Repo.UpdateIssue(ctx, tx, issue); err != nil {
		return false, err
	}
	if _, err := e.Events.Append(ctx, tx, events.IssueResumed, issue.ID, actorID, nil); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// AddDependency blocks the issue's final transitions until the dependency
// closes. An issue cannot depend on itself.
func (e Engine) AddDependency(ctx context.Context, issueID, dependencyID, actorID string) error {
	if issueID == dependencyID {
		return errors.New("issue cannot depend on itself")
	}
	issue, err := e.Repo.GetIssue(ctx, issueID)
	if err != nil {
		return err
	}
	if issue.Closed() {
		return fmt.Errorf("issue %s is closed", issue.ID)
	}
	if _, err := e.Repo.GetIssue(ctx, dependencyID); err != nil {
		return fmt.Errorf("dependency %s: %w", dependencyID, err)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	evtID, err := e.Events.Append(ctx, tx, events.DependencyAdded, issue.ID, actorID, &dependencyID)
	if err != nil {
		return err
	}
	if err := e.Repo.AddDependency(ctx, tx, domain.Dependency{IssueID: issue.ID, EventID: evtID, DependencyID: dependencyID}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) RemoveDependency(ctx context.Context, issueID, dependencyID, actorID string) error {
	issue, err := e.Repo.GetIssue(ctx, issueID)
	if err != nil {
		return err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.RemoveDependency(ctx, tx, issue.ID, dependencyID); err != nil {
		return err
	}
	if _, err := e.Events.Append(ctx, tx, events.DependencyRemoved, issue.ID, actorID, &dependencyID); err != nil {
		return err
	}
	return tx.Commit()
}

// FieldEdit is one recorded field value change within an edit.
type FieldEdit struct {
	FieldID  string
	OldValue *string
	NewValue *string
}

// EditIssue updates the subject and records field value changes. A subject
// change is stored as a change row with a null field id, which every
// participant may read. Field changes are validated against the issue's
// template before recording.
func (e Engine) EditIssue(ctx context.Context, issueID, actorID string, subject *string, edits []FieldEdit) (domain.Issue, error) {
	issue, err := e.Repo.GetIssue(ctx, issueID)
	if err != nil {
		return domain.Issue{}, err
	}
	if subject == nil && len(edits) == 0 {
		return issue, nil
	}
	current, err := e.Repo.GetState(ctx, issue.StateID)
	if err != nil {
		return domain.Issue{}, err
	}
	for _, edit := range edits {
		f, err := e.Repo.GetField(ctx, edit.FieldID)
		if err != nil {
			return domain.Issue{}, fmt.Errorf("field %s: %w", edit.FieldID, err)
		}
		s, err := e.Repo.GetState(ctx, f.StateID)
		if err != nil {
			return domain.Issue{}, err
		}
		if s.TemplateID != current.TemplateID {
			return domain.Issue{}, fmt.Errorf("field %s does not belong to template %s", f.ID, current.TemplateID)
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Issue{}, err
	}
	defer tx.Rollback()

	evtID, err := e.Events.Append(ctx, tx, events.IssueEdited, issue.ID, actorID, nil)
	if err != nil {
		return domain.Issue{}, err
	}
	if subject != nil && *subject != issue.Subject {
		old := issue.Subject
		if err := e.Repo.InsertChange(ctx, tx, domain.Change{EventID: evtID, OldValue: &old, NewValue: subject}); err != nil {
			return domain.Issue{}, err
		}
		issue.Subject = *subject
	}
	for _, edit := range edits {
		fieldID := edit.FieldID
		c := domain.Change{EventID: evtID, FieldID: &fieldID, OldValue: edit.OldValue, NewValue: edit.NewValue}
		if err := e.Repo.InsertChange(ctx, tx, c); err != nil {
			return domain.Issue{}, err
		}
	}
	issue.ChangedAt = e.nowString()
	if err := e.Repo.UpdateIssue(ctx, tx, issue); err != nil {
		return domain.Issue{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Issue{}, err
	}
	return issue, nil
}
