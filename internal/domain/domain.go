package domain

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Admin     bool   `json:"admin,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Group struct {
	ID          string  `json:"id"`
	ProjectID   *string `json:"project_id,omitempty"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

// Global reports whether the group is shared across all projects.
func (g Group) Global() bool {
	return g.ProjectID == nil
}

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Suspended   bool   `json:"suspended,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Template struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Prefix      string `json:"prefix"`
	Description string `json:"description,omitempty"`
	Locked      bool   `json:"locked,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type State struct {
	ID          string            `json:"id"`
	TemplateID  string            `json:"template_id"`
	Name        string            `json:"name"`
	Type        StateType         `json:"type" enum:"initial,intermediate,final"`
	Responsible ResponsiblePolicy `json:"responsible" enum:"assign,keep,remove"`
	CreatedAt   string            `json:"created_at" format:"date-time"`
}

type Field struct {
	ID        string  `json:"id"`
	StateID   string  `json:"state_id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Position  int     `json:"position"`
	Required  bool    `json:"required,omitempty"`
	RemovedAt *string `json:"removed_at,omitempty" format:"date-time"`
}

// Removed reports whether the field was soft-deleted from its state.
func (f Field) Removed() bool {
	return f.RemovedAt != nil
}

type Issue struct {
	ID            string  `json:"id"`
	Subject       string  `json:"subject"`
	StateID       string  `json:"state_id"`
	AuthorID      string  `json:"author_id"`
	ResponsibleID *string `json:"responsible_id,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	ChangedAt     string  `json:"changed_at" format:"date-time"`
	ClosedAt      *string `json:"closed_at,omitempty" format:"date-time"`
	ResumesAt     *string `json:"resumes_at,omitempty" format:"date-time"`
}

// Closed reports whether the issue sits in a final state.
func (i Issue) Closed() bool {
	return i.ClosedAt != nil
}

// Suspended reports whether the issue is paused at the given RFC3339 instant.
// A nil ResumesAt means the issue was never suspended.
func (i Issue) Suspended(now string) bool {
	return i.ResumesAt != nil && *i.ResumesAt > now
}

type Event struct {
	ID        int64   `json:"id"`
	IssueID   string  `json:"issue_id"`
	Type      string  `json:"type"`
	UserID    string  `json:"user_id"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	Parameter *string `json:"parameter,omitempty"`
}

type Change struct {
	ID       int64   `json:"id"`
	EventID  int64   `json:"event_id"`
	FieldID  *string `json:"field_id,omitempty"`
	OldValue *string `json:"old_value,omitempty"`
	NewValue *string `json:"new_value,omitempty"`
}

type Dependency struct {
	IssueID      string `json:"issue_id"`
	EventID      int64  `json:"event_id"`
	DependencyID string `json:"dependency_id"`
}
