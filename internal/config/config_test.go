package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := Default("proj-1")
	require.NoError(t, cfg.Validate())
	require.Equal(t, "proj-1", cfg.Project.ID)
	require.Equal(t, "Issues", cfg.Template.Name)
}

func TestValidateRequiresSingleInitialState(t *testing.T) {
	cfg := Default("proj-1")
	cfg.States[1].Type = "initial"
	err := cfg.Validate()
	require.ErrorContains(t, err, "exactly one initial state")

	cfg = Default("proj-1")
	cfg.States[0].Type = "intermediate"
	err = cfg.Validate()
	require.ErrorContains(t, err, "exactly one initial state")
}

func TestValidateRejectsUnknownStateReferences(t *testing.T) {
	cfg := Default("proj-1")
	cfg.RoleTransitions[0].To = "Nowhere"
	require.ErrorContains(t, cfg.Validate(), "unknown state")

	cfg = Default("proj-1")
	cfg.GroupTransitions[0].From = "Nowhere"
	require.ErrorContains(t, cfg.Validate(), "unknown state")

	cfg = Default("proj-1")
	cfg.ResponsibleGroups[0].State = "Nowhere"
	require.ErrorContains(t, cfg.Validate(), "unknown state")

	cfg = Default("proj-1")
	cfg.Fields[0].State = "Nowhere"
	require.ErrorContains(t, cfg.Validate(), "unknown state")
}

func TestValidateRejectsBadEnums(t *testing.T) {
	cfg := Default("proj-1")
	cfg.States[0].Type = "open"
	require.ErrorContains(t, cfg.Validate(), "unknown type")

	cfg = Default("proj-1")
	cfg.States[1].Responsible = "someone"
	require.ErrorContains(t, cfg.Validate(), "responsible policy")

	cfg = Default("proj-1")
	cfg.RoleTransitions[0].Role = "owner"
	require.ErrorContains(t, cfg.Validate(), "unknown role")

	cfg = Default("proj-1")
	cfg.Fields[0].RolePermissions["author"] = "write"
	require.ErrorContains(t, cfg.Validate(), "unknown permission")
}

func TestValidateRejectsDuplicates(t *testing.T) {
	cfg := Default("proj-1")
	cfg.States = append(cfg.States, cfg.States[1])
	require.ErrorContains(t, cfg.Validate(), "declared twice")
}

func TestFromYAMLRejectsGarbage(t *testing.T) {
	_, err := FromYAML([]byte("states: {not: [a, list"))
	require.Error(t, err)
}

func TestFromYAMLRoundTrip(t *testing.T) {
	raw := []byte(`project:
  id: p1
template:
  name: Bugs
  prefix: bug
states:
  - {name: New, type: initial, responsible: remove}
  - {name: Done, type: final}
role_transitions:
  - {from: New, to: Done, role: author}
`)
	cfg, err := FromYAML(raw)
	require.NoError(t, err)
	require.Len(t, cfg.States, 2)
	require.Equal(t, "bug", cfg.Template.Prefix)
}
