package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"etraxis/internal/domain"
)

// Config models etraxis.yml: a declarative workflow schema for one template.
// Importing it creates the template, its states, the transition grants, the
// responsible groups, and the field permissions in a single transaction.
type Config struct {
	Project struct {
		ID string `yaml:"id"`
	} `yaml:"project"`
	Template struct {
		Name        string `yaml:"name"`
		Prefix      string `yaml:"prefix"`
		Description string `yaml:"description"`
	} `yaml:"template"`
	States            []StateDef           `yaml:"states"`
	RoleTransitions   []RoleTransitionDef  `yaml:"role_transitions"`
	GroupTransitions  []GroupTransitionDef `yaml:"group_transitions"`
	ResponsibleGroups []ResponsibleDef     `yaml:"responsible_groups"`
	Fields            []FieldDef           `yaml:"fields"`
}

type StateDef struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Responsible string `yaml:"responsible"`
}

type RoleTransitionDef struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Role string `yaml:"role"`
}

type GroupTransitionDef struct {
	From  string `yaml:"from"`
	To    string `yaml:"to"`
	Group string `yaml:"group"`
}

type ResponsibleDef struct {
	State string `yaml:"state"`
	Group string `yaml:"group"`
}

type FieldDef struct {
	State            string            `yaml:"state"`
	Name             string            `yaml:"name"`
	Type             string            `yaml:"type"`
	Position         int               `yaml:"position"`
	Required         bool              `yaml:"required"`
	RolePermissions  map[string]string `yaml:"role_permissions"`
	GroupPermissions map[string]string `yaml:"group_permissions"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with etx workflow import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the schema describes a consistent workflow. The one
// invariant worth calling out: a template must declare exactly one initial
// state, checked here rather than left to issue-creation time.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if c.Template.Name == "" {
		return fmt.Errorf("config.template.name is required")
	}
	if c.Template.Prefix == "" {
		return fmt.Errorf("config.template.prefix is required")
	}
	if len(c.States) == 0 {
		return fmt.Errorf("config.states is required")
	}
	states := map[string]StateDef{}
	initial := 0
	for _, s := range c.States {
		if s.Name == "" {
			return fmt.Errorf("config.states contains a state without a name")
		}
		if _, dup := states[s.Name]; dup {
			return fmt.Errorf("state %s declared twice", s.Name)
		}
		switch domain.StateType(s.Type) {
		case domain.StateInitial:
			initial++
		case domain.StateIntermediate, domain.StateFinal:
		default:
			return fmt.Errorf("state %s has unknown type %q", s.Name, s.Type)
		}
		policy := s.Responsible
		if policy == "" {
			policy = string(domain.ResponsibleKeep)
		}
		switch domain.ResponsiblePolicy(policy) {
		case domain.ResponsibleAssign, domain.ResponsibleKeep, domain.ResponsibleRemove:
		default:
			return fmt.Errorf("state %s has unknown responsible policy %q", s.Name, s.Responsible)
		}
		states[s.Name] = s
	}
	if initial != 1 {
		return fmt.Errorf("template must declare exactly one initial state, found %d", initial)
	}
	for _, t := range c.RoleTransitions {
		if _, ok := states[t.From]; !ok {
			return fmt.Errorf("role transition references unknown state %s", t.From)
		}
		if _, ok := states[t.To]; !ok {
			return fmt.Errorf("role transition references unknown state %s", t.To)
		}
		switch domain.SystemRole(t.Role) {
		case domain.RoleAnyone, domain.RoleAuthor, domain.RoleResponsible:
		default:
			return fmt.Errorf("role transition %s -> %s has unknown role %q", t.From, t.To, t.Role)
		}
	}
	for _, t := range c.GroupTransitions {
		if _, ok := states[t.From]; !ok {
			return fmt.Errorf("group transition references unknown state %s", t.From)
		}
		if _, ok := states[t.To]; !ok {
			return fmt.Errorf("group transition references unknown state %s", t.To)
		}
		if t.Group == "" {
			return fmt.Errorf("group transition %s -> %s has empty group", t.From, t.To)
		}
	}
	for _, rg := range c.ResponsibleGroups {
		if _, ok := states[rg.State]; !ok {
			return fmt.Errorf("responsible group references unknown state %s", rg.State)
		}
		if rg.Group == "" {
			return fmt.Errorf("responsible group for state %s has empty group", rg.State)
		}
	}
	fieldNames := map[string]bool{}
	for _, f := range c.Fields {
		if f.Name == "" {
			return fmt.Errorf("config.fields contains a field without a name")
		}
		if _, ok := states[f.State]; !ok {
			return fmt.Errorf("field %s references unknown state %s", f.Name, f.State)
		}
		key := f.State + "/" + f.Name
		if fieldNames[key] {
			return fmt.Errorf("field %s declared twice for state %s", f.Name, f.State)
		}
		fieldNames[key] = true
		for role, perm := range f.RolePermissions {
			switch domain.SystemRole(role) {
			case domain.RoleAnyone, domain.RoleAuthor, domain.RoleResponsible:
			default:
				return fmt.Errorf("field %s grants unknown role %q", f.Name, role)
			}
			if err := checkPermission(f.Name, perm); err != nil {
				return err
			}
		}
		for group, perm := range f.GroupPermissions {
			if group == "" {
				return fmt.Errorf("field %s grants an empty group", f.Name)
			}
			if err := checkPermission(f.Name, perm); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkPermission(field, perm string) error {
	switch domain.FieldPermission(perm) {
	case domain.PermissionRead, domain.PermissionReadWrite:
		return nil
	default:
		return fmt.Errorf("field %s has unknown permission %q", field, perm)
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "etraxis.yml")
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, projectID))).Decode(&cfg)
	cfg.Project.ID = projectID
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `project:
  id: %s

template:
  name: Issues
  prefix: issue
  description: "Default issue workflow"

states:
  - name: New
    type: initial
    responsible: remove

  - name: Assigned
    type: intermediate
    responsible: assign

  - name: Resolved
    type: intermediate
    responsible: keep

  - name: Closed
    type: final
    responsible: remove

role_transitions:
  - {from: New, to: Assigned, role: author}
  - {from: Assigned, to: Resolved, role: responsible}
  - {from: Resolved, to: Assigned, role: author}
  - {from: Resolved, to: Closed, role: author}

group_transitions:
  - {from: New, to: Assigned, group: Managers}
  - {from: Assigned, to: Resolved, group: Developers}
  - {from: Resolved, to: Closed, group: Managers}

responsible_groups:
  - {state: Assigned, group: Developers}

fields:
  - state: New
    name: Severity
    type: list
    position: 1
    required: true
    role_permissions:
      anyone: read
      author: read_write
    group_permissions:
      Developers: read_write

  - state: Resolved
    name: Resolution
    type: text
    position: 1
    role_permissions:
      author: read
      responsible: read_write
`
