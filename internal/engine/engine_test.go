package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"etraxis/internal/config"
	"etraxis/internal/db"
	"etraxis/internal/domain"
	"etraxis/internal/engine"
	"etraxis/internal/events"
	"etraxis/internal/migrate"
)

type testEnv struct {
	Ctx    context.Context
	Engine engine.Engine

	Project domain.Project
	Tpl     domain.Template

	StateNew      domain.State
	StateAssigned domain.State
	StateClosed   domain.State

	Alice domain.User // author in most tests
	Bob   domain.User // developer
	Carol domain.User // manager
	Dave  domain.User // no groups, no relation

	Developers domain.Group
	Managers   domain.Group
}

// newTestEnv builds one project with a three-state workflow:
// New (initial) -> Assigned (assign policy) -> Closed (final).
// Authors may move New -> Assigned, Managers may move Assigned -> Closed,
// and Developers are the candidate responsibles for Assigned.
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	env := testEnv{Ctx: ctx, Engine: eng}

	env.Project, err = eng.CreateProject(ctx, "proj-1", "Project One", "")
	require.NoError(t, err)

	env.Alice, err = eng.CreateUser(ctx, "alice@example.com", "Alice Adams", false)
	require.NoError(t, err)
	env.Bob, err = eng.CreateUser(ctx, "bob@example.com", "Bob Brown", false)
	require.NoError(t, err)
	env.Carol, err = eng.CreateUser(ctx, "carol@example.com", "Carol Clark", false)
	require.NoError(t, err)
	env.Dave, err = eng.CreateUser(ctx, "dave@example.com", "Dave Dunn", false)
	require.NoError(t, err)

	env.Developers, err = eng.CreateGroup(ctx, env.Project.ID, "Developers", "")
	require.NoError(t, err)
	env.Managers, err = eng.CreateGroup(ctx, env.Project.ID, "Managers", "")
	require.NoError(t, err)
	require.NoError(t, eng.AddMember(ctx, env.Developers.ID, env.Bob.ID))
	require.NoError(t, eng.AddMember(ctx, env.Managers.ID, env.Carol.ID))

	env.Tpl, err = eng.CreateTemplate(ctx, env.Project.ID, "Bugs", "bug", "")
	require.NoError(t, err)
	env.StateNew, err = eng.CreateState(ctx, env.Tpl.ID, "New", domain.StateInitial, domain.ResponsibleRemove)
	require.NoError(t, err)
	env.StateAssigned, err = eng.CreateState(ctx, env.Tpl.ID, "Assigned", domain.StateIntermediate, domain.ResponsibleAssign)
	require.NoError(t, err)
	env.StateClosed, err = eng.CreateState(ctx, env.Tpl.ID, "Closed", domain.StateFinal, domain.ResponsibleKeep)
	require.NoError(t, err)

	require.NoError(t, eng.GrantRoleTransition(ctx, env.StateNew.ID, env.StateAssigned.ID, domain.RoleAuthor))
	require.NoError(t, eng.GrantGroupTransition(ctx, env.StateAssigned.ID, env.StateClosed.ID, env.Managers.ID))
	require.NoError(t, eng.GrantResponsibleGroup(ctx, env.StateAssigned.ID, env.Developers.ID))

	return env
}

func (env testEnv) createIssue(t *testing.T, subject string) domain.Issue {
	t.Helper()
	i, err := env.Engine.CreateIssue(env.Ctx, engine.IssueCreateOptions{
		TemplateID: env.Tpl.ID,
		Subject:    subject,
		AuthorID:   env.Alice.ID,
	})
	require.NoError(t, err)
	return i
}

// moves an issue into Assigned with Bob as responsible
func (env testEnv) assignToBob(t *testing.T, issue domain.Issue) domain.Issue {
	t.Helper()
	i, ok, err := env.Engine.TransitionIssue(env.Ctx, issue.ID, env.StateAssigned.ID, env.Alice.ID, &env.Bob.ID)
	require.NoError(t, err)
	require.True(t, ok)
	return i
}

func (env testEnv) eventsOfType(t *testing.T, issueID, evtType string) []domain.Event {
	t.Helper()
	all, err := env.Engine.Repo.ListEvents(env.Ctx, issueID)
	require.NoError(t, err)
	var out []domain.Event
	for _, evt := range all {
		if evt.Type == evtType {
			out = append(out, evt)
		}
	}
	return out
}

func stateNames(states []domain.State) []string {
	names := make([]string, 0, len(states))
	for _, s := range states {
		names = append(names, s.Name)
	}
	return names
}

func TestCreateIssueStartsInInitialState(t *testing.T) {
	env := newTestEnv(t)
	issue := env.createIssue(t, "printer on fire")

	require.Equal(t, env.StateNew.ID, issue.StateID)
	require.Nil(t, issue.ResponsibleID)
	require.Nil(t, issue.ClosedAt)

	created := env.eventsOfType(t, issue.ID, events.IssueCreated)
	require.Len(t, created, 1)
	require.Equal(t, env.Alice.ID, created[0].UserID)
}

func TestTransitionsExcludeFinalWhileDependencyOpen(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.Engine.GrantRoleTransition(env.Ctx, env.StateNew.ID, env.StateClosed.ID, domain.RoleAuthor))

	issue := env.createIssue(t, "main")
	dep := env.createIssue(t, "blocker")
	require.NoError(t, env.Engine.AddDependency(env.Ctx, issue.ID, dep.ID, env.Alice.ID))

	states, err := env.Engine.Repo.TransitionsByUser(env.Ctx, issue, env.Alice.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"Assigned"}, stateNames(states))

	// close the blocker; the final state becomes reachable again
	_, ok, err := env.Engine.TransitionIssue(env.Ctx, dep.ID, env.StateClosed.ID, env.Alice.ID, nil)
	require.NoError(t, err)
	require.True(t, ok)

	states, err = env.Engine.Repo.TransitionsByUser(env.Ctx, issue, env.Alice.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"Assigned", "Closed"}, stateNames(states))
}

func TestTransitionsSortedByStateName(t *testing.T) {
	env := newTestEnv(t)
	rejected, err := env.Engine.CreateState(env.Ctx, env.Tpl.ID, "Rejected", domain.StateIntermediate, domain.ResponsibleKeep)
	require.NoError(t, err)
	approved, err := env.Engine.CreateState(env.Ctx, env.Tpl.ID, "Approved", domain.StateIntermediate, domain.ResponsibleKeep)
	require.NoError(t, err)

	// grants recorded out of name order
	require.NoError(t, env.Engine.GrantRoleTransition(env.Ctx, env.StateNew.ID, rejected.ID, domain.RoleAuthor))
	require.NoError(t, env.Engine.GrantRoleTransition(env.Ctx, env.StateNew.ID, approved.ID, domain.RoleAuthor))

	issue := env.createIssue(t, "triage me")
	states, err := env.Engine.Repo.TransitionsByUser(env.Ctx, issue, env.Alice.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"Approved", "Assigned", "Rejected"}, stateNames(states))
}

func TestTransitionsByGroupMembership(t *testing.T) {
	env := newTestEnv(t)
	issue := env.assignToBob(t, env.createIssue(t, "needs closing"))

	states, err := env.Engine.Repo.TransitionsByUser(env.Ctx, issue, env.Carol.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"Closed"}, stateNames(states))

	states, err = env.Engine.Repo.TransitionsByUser(env.Ctx, issue, env.Dave.ID)
	require.NoError(t, err)
	require.Empty(t, states)
}

func TestTransitionRejectedWithoutGrant(t *testing.T) {
	env := newTestEnv(t)
	issue := env.createIssue(t, "untouchable")

	got, ok, err := env.Engine.TransitionIssue(env.Ctx, issue.ID, env.StateAssigned.ID, env.Dave.ID, &env.Bob.ID)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, env.StateNew.ID, got.StateID)

	reloaded, err := env.Engine.Repo.GetIssue(env.Ctx, issue.ID)
	require.NoError(t, err)
	require.Equal(t, env.StateNew.ID, reloaded.StateID)
}

func TestTransitionToForeignTemplateFails(t *testing.T) {
	env := newTestEnv(t)
	other, err := env.Engine.CreateTemplate(env.Ctx, env.Project.ID, "Requests", "req", "")
	require.NoError(t, err)
	foreign, err := env.Engine.CreateState(env.Ctx, other.ID, "Open", domain.StateInitial, domain.ResponsibleKeep)
	require.NoError(t, err)

	issue := env.createIssue(t, "confused")
	_, _, err = env.Engine.TransitionIssue(env.Ctx, issue.ID, foreign.ID, env.Alice.ID, nil)
	require.ErrorContains(t, err, "does not belong to template")
}

func TestAssignPolicyOnEnteringState(t *testing.T) {
	env := newTestEnv(t)
	issue := env.createIssue(t, "who takes it")

	// assign policy without a responsible is rejected
	_, ok, err := env.Engine.TransitionIssue(env.Ctx, issue.ID, env.StateAssigned.ID, env.Alice.ID, nil)
	require.NoError(t, err)
	require.False(t, ok)

	// a non-candidate responsible is rejected too
	_, ok, err = env.Engine.TransitionIssue(env.Ctx, issue.ID, env.StateAssigned.ID, env.Alice.ID, &env.Carol.ID)
	require.NoError(t, err)
	require.False(t, ok)

	got, ok, err := env.Engine.TransitionIssue(env.Ctx, issue.ID, env.StateAssigned.ID, env.Alice.ID, &env.Bob.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, got.ResponsibleID)
	require.Equal(t, env.Bob.ID, *got.ResponsibleID)
}

func TestFinalStateClosesAndRemovesResponsible(t *testing.T) {
	env := newTestEnv(t)
	issue := env.assignToBob(t, env.createIssue(t, "wrap it up"))

	got, ok, err := env.Engine.TransitionIssue(env.Ctx, issue.ID, env.StateClosed.ID, env.Carol.ID, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, got.ClosedAt)
	require.Nil(t, got.ResponsibleID)

	changed := env.eventsOfType(t, issue.ID, events.StateChanged)
	require.NotEmpty(t, changed)
	require.Equal(t, "Closed", *changed[len(changed)-1].Parameter)
	require.Len(t, env.eventsOfType(t, issue.ID, events.IssueClosed), 1)
}

func TestReopeningClearsClosedAt(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.Engine.GrantRoleTransition(env.Ctx, env.StateClosed.ID, env.StateNew.ID, domain.RoleAuthor))

	issue := env.assignToBob(t, env.createIssue(t, "not done after all"))
	_, ok, err := env.Engine.TransitionIssue(env.Ctx, issue.ID, env.StateClosed.ID, env.Carol.ID, nil)
	require.NoError(t, err)
	require.True(t, ok)

	got, ok, err := env.Engine.TransitionIssue(env.Ctx, issue.ID, env.StateNew.ID, env.Alice.ID, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, got.ClosedAt)
	require.Len(t, env.eventsOfType(t, issue.ID, events.IssueReopened), 1)
}

func TestAssignIssueValidatesCandidates(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.Engine.GrantResponsibleGroup(env.Ctx, env.StateNew.ID, env.Developers.ID))
	issue := env.createIssue(t, "pick someone")

	ok, err := env.Engine.AssignIssue(env.Ctx, issue.ID, env.Carol.ID, env.Alice.ID)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = env.Engine.AssignIssue(env.Ctx, issue.ID, env.Bob.ID, env.Alice.ID)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := env.Engine.Repo.GetIssue(env.Ctx, issue.ID)
	require.NoError(t, err)
	require.Equal(t, env.Bob.ID, *got.ResponsibleID)

	assigned := env.eventsOfType(t, issue.ID, events.IssueAssigned)
	require.Len(t, assigned, 1)
	require.Equal(t, "Bob Brown", *assigned[0].Parameter)
}

func TestReassignRequiresCurrentResponsible(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.Engine.GrantResponsibleGroup(env.Ctx, env.StateNew.ID, env.Developers.ID))
	eve, err := env.Engine.CreateUser(env.Ctx, "eve@example.com", "Eve Evans", false)
	require.NoError(t, err)
	require.NoError(t, env.Engine.AddMember(env.Ctx, env.Developers.ID, eve.ID))

	issue := env.createIssue(t, "hand it over")

	// no responsible yet, even a valid candidate is rejected
	ok, err := env.Engine.ReassignIssue(env.Ctx, issue.ID, eve.ID, env.Alice.ID)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = env.Engine.AssignIssue(env.Ctx, issue.ID, env.Bob.ID, env.Alice.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = env.Engine.ReassignIssue(env.Ctx, issue.ID, eve.ID, env.Alice.ID)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := env.Engine.Repo.GetIssue(env.Ctx, issue.ID)
	require.NoError(t, err)
	require.Equal(t, eve.ID, *got.ResponsibleID)

	reassigned := env.eventsOfType(t, issue.ID, events.IssueReassigned)
	require.Len(t, reassigned, 1)
	require.Equal(t, "Eve Evans", *reassigned[0].Parameter)
}

func TestClosedIssueRejectsAssignment(t *testing.T) {
	env := newTestEnv(t)
	issue := env.assignToBob(t, env.createIssue(t, "done deal"))
	_, ok, err := env.Engine.TransitionIssue(env.Ctx, issue.ID, env.StateClosed.ID, env.Carol.ID, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = env.Engine.AssignIssue(env.Ctx, issue.ID, env.Bob.ID, env.Alice.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResponsibleCandidatesDeduplicated(t *testing.T) {
	env := newTestEnv(t)
	backup, err := env.Engine.CreateGroup(env.Ctx, env.Project.ID, "Backup", "")
	require.NoError(t, err)
	require.NoError(t, env.Engine.AddMember(env.Ctx, backup.ID, env.Bob.ID))
	require.NoError(t, env.Engine.GrantResponsibleGroup(env.Ctx, env.StateAssigned.ID, backup.ID))

	eve, err := env.Engine.CreateUser(env.Ctx, "eve@example.com", "Eve Evans", false)
	require.NoError(t, err)
	require.NoError(t, env.Engine.AddMember(env.Ctx, env.Developers.ID, eve.ID))

	users, err := env.Engine.Repo.ResponsiblesByState(env.Ctx, env.StateAssigned.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.FullName)
	}
	require.Equal(t, []string{"Bob Brown", "Eve Evans"}, names)
}

func TestSuspendAndResume(t *testing.T) {
	env := newTestEnv(t)
	issue := env.createIssue(t, "on hold")

	_, err := env.Engine.SuspendIssue(env.Ctx, issue.ID, "yesterday", env.Alice.ID)
	require.Error(t, err)

	ok, err := env.Engine.SuspendIssue(env.Ctx, issue.ID, "2024-02-01T00:00:00Z", env.Alice.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// suspended issues do not move
	_, ok, err = env.Engine.TransitionIssue(env.Ctx, issue.ID, env.StateAssigned.ID, env.Alice.ID, &env.Bob.ID)
	require.NoError(t, err)
	require.False(t, ok)

	// double suspension is a no-op rejection
	ok, err = env.Engine.SuspendIssue(env.Ctx, issue.ID, "2024-03-01T00:00:00Z", env.Alice.ID)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = env.Engine.ResumeIssue(env.Ctx, issue.ID, env.Alice.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = env.Engine.ResumeIssue(env.Ctx, issue.ID, env.Alice.ID)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = env.Engine.TransitionIssue(env.Ctx, issue.ID, env.StateAssigned.ID, env.Alice.ID, &env.Bob.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSuspendedIssueRejectsAssignment(t *testing.T) {
	env := newTestEnv(t)
	issue := env.assignToBob(t, env.createIssue(t, "paused"))

	ok, err := env.Engine.SuspendIssue(env.Ctx, issue.ID, "2024-02-01T00:00:00Z", env.Alice.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// Bob is a candidate for Assigned, only the suspension blocks him
	ok, err = env.Engine.AssignIssue(env.Ctx, issue.ID, env.Bob.ID, env.Alice.ID)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = env.Engine.ReassignIssue(env.Ctx, issue.ID, env.Bob.ID, env.Alice.ID)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = env.Engine.ResumeIssue(env.Ctx, issue.ID, env.Alice.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = env.Engine.ReassignIssue(env.Ctx, issue.ID, env.Bob.ID, env.Alice.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSelfDependencyRejected(t *testing.T) {
	env := newTestEnv(t)
	issue := env.createIssue(t, "ouroboros")
	err := env.Engine.AddDependency(env.Ctx, issue.ID, issue.ID, env.Alice.ID)
	require.ErrorContains(t, err, "depend on itself")
}

func TestClosedIssueRejectsNewDependencies(t *testing.T) {
	env := newTestEnv(t)
	issue := env.assignToBob(t, env.createIssue(t, "finished"))
	_, ok, err := env.Engine.TransitionIssue(env.Ctx, issue.ID, env.StateClosed.ID, env.Carol.ID, nil)
	require.NoError(t, err)
	require.True(t, ok)

	other := env.createIssue(t, "late blocker")
	err = env.Engine.AddDependency(env.Ctx, issue.ID, other.ID, env.Alice.ID)
	require.ErrorContains(t, err, "is closed")
}

func TestRemoveDependencyUnblocksClosing(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.Engine.GrantRoleTransition(env.Ctx, env.StateNew.ID, env.StateClosed.ID, domain.RoleAuthor))

	issue := env.createIssue(t, "main")
	dep := env.createIssue(t, "blocker")
	require.NoError(t, env.Engine.AddDependency(env.Ctx, issue.ID, dep.ID, env.Alice.ID))

	open, err := env.Engine.Repo.HasOpenedDependencies(env.Ctx, issue.ID)
	require.NoError(t, err)
	require.True(t, open)

	require.NoError(t, env.Engine.RemoveDependency(env.Ctx, issue.ID, dep.ID, env.Alice.ID))
	open, err = env.Engine.Repo.HasOpenedDependencies(env.Ctx, issue.ID)
	require.NoError(t, err)
	require.False(t, open)

	states, err := env.Engine.Repo.TransitionsByUser(env.Ctx, issue, env.Alice.ID)
	require.NoError(t, err)
	require.Contains(t, stateNames(states), "Closed")
}

func TestEditRecordsChangesWithVisibility(t *testing.T) {
	env := newTestEnv(t)
	field, err := env.Engine.CreateField(env.Ctx, env.StateNew.ID, "Severity", "list", 1, true)
	require.NoError(t, err)
	require.NoError(t, env.Engine.GrantFieldRolePermission(env.Ctx, field.ID, domain.RoleAuthor, domain.PermissionRead))
	require.NoError(t, env.Engine.GrantFieldGroupPermission(env.Ctx, field.ID, env.Developers.ID, domain.PermissionReadWrite))

	issue := env.createIssue(t, "old subject")
	subject := "new subject"
	oldVal, newVal := "low", "high"
	issue, err = env.Engine.EditIssue(env.Ctx, issue.ID, env.Alice.ID, &subject, []engine.FieldEdit{
		{FieldID: field.ID, OldValue: &oldVal, NewValue: &newVal},
	})
	require.NoError(t, err)
	require.Equal(t, "new subject", issue.Subject)

	// the author sees both the subject change and the field change
	changes, err := env.Engine.Repo.ChangesByIssue(env.Ctx, issue, env.Alice.ID)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	// a developer sees both through the group grant
	changes, err = env.Engine.Repo.ChangesByIssue(env.Ctx, issue, env.Bob.ID)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	// an outsider only sees the subject change
	changes, err = env.Engine.Repo.ChangesByIssue(env.Ctx, issue, env.Dave.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Nil(t, changes[0].FieldID)
}

func TestEditRejectsForeignFields(t *testing.T) {
	env := newTestEnv(t)
	other, err := env.Engine.CreateTemplate(env.Ctx, env.Project.ID, "Requests", "req", "")
	require.NoError(t, err)
	foreign, err := env.Engine.CreateState(env.Ctx, other.ID, "Open", domain.StateInitial, domain.ResponsibleKeep)
	require.NoError(t, err)
	field, err := env.Engine.CreateField(env.Ctx, foreign.ID, "Priority", "list", 1, false)
	require.NoError(t, err)

	issue := env.createIssue(t, "mismatched")
	val := "urgent"
	_, err = env.Engine.EditIssue(env.Ctx, issue.ID, env.Alice.ID, nil, []engine.FieldEdit{
		{FieldID: field.ID, NewValue: &val},
	})
	require.ErrorContains(t, err, "does not belong to template")
}

func TestLockedTemplateRejectsIssues(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.Engine.LockTemplate(env.Ctx, env.Tpl.ID, true))

	_, err := env.Engine.CreateIssue(env.Ctx, engine.IssueCreateOptions{
		TemplateID: env.Tpl.ID,
		Subject:    "too late",
		AuthorID:   env.Alice.ID,
	})
	require.ErrorContains(t, err, "locked")
}

func TestSecondInitialStateRejected(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateState(env.Ctx, env.Tpl.ID, "AlsoNew", domain.StateInitial, domain.ResponsibleKeep)
	require.ErrorContains(t, err, "already has an initial state")
}

func TestRemoveMemberRequiresMembership(t *testing.T) {
	env := newTestEnv(t)

	err := env.Engine.RemoveMember(env.Ctx, env.Developers.ID, env.Dave.ID)
	require.ErrorContains(t, err, "not a member")

	require.NoError(t, env.Engine.RemoveMember(env.Ctx, env.Developers.ID, env.Bob.ID))

	groups, err := env.Engine.Access.UserGroups(env.Ctx, env.Bob.ID)
	require.NoError(t, err)
	require.Empty(t, groups)
}

func TestImportWorkflow(t *testing.T) {
	env := newTestEnv(t)
	cfg := config.Default(env.Project.ID)

	tpl, err := env.Engine.ImportWorkflow(env.Ctx, cfg, nil)
	require.NoError(t, err)
	require.Equal(t, "Issues", tpl.Name)

	initial, err := env.Engine.Repo.InitialState(env.Ctx, tpl.ID)
	require.NoError(t, err)
	require.Equal(t, "New", initial.Name)

	issue, err := env.Engine.CreateIssue(env.Ctx, engine.IssueCreateOptions{
		TemplateID: tpl.ID,
		Subject:    "imported workflow works",
		AuthorID:   env.Alice.ID,
	})
	require.NoError(t, err)

	// the default schema grants authors New -> Assigned
	states, err := env.Engine.Repo.TransitionsByUser(env.Ctx, issue, env.Alice.ID)
	require.NoError(t, err)
	require.Contains(t, stateNames(states), "Assigned")

	raw, err := env.Engine.Repo.GetWorkflowConfig(env.Ctx, tpl.ID)
	require.NoError(t, err)
	require.NotEmpty(t, raw)
}

func TestImportWorkflowUnknownGroup(t *testing.T) {
	env := newTestEnv(t)
	cfg := config.Default(env.Project.ID)
	cfg.GroupTransitions[0].Group = "Ghosts"

	_, err := env.Engine.ImportWorkflow(env.Ctx, cfg, nil)
	require.ErrorContains(t, err, "group Ghosts not found")
}
