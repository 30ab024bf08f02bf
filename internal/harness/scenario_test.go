package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenarioValid(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/rename_undo_redo.yaml")
	require.NoError(t, err)

	assert.Equal(t, "rename_undo_redo", scenario.Name)
	assert.Len(t, scenario.Steps, 11)
	assert.Len(t, scenario.Assertions, 9)

	op, operand := scenario.Steps[2].Op()
	assert.Equal(t, OpChange, op)
	assert.Equal(t, "project/p1", operand)
	assert.Equal(t, "Foo", scenario.Steps[2].Value)
	require.NotNil(t, scenario.Steps[2].Expect)
	assert.Equal(t, "applied", scenario.Steps[2].Expect.Outcome)
}

func TestLoadScenarioResolvesTypes(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/custom_types.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "types"), scenario.Types)
}

func TestLoadScenarioMissingTypes(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "s.yaml", `
name: s
description: d
types: nowhere
steps:
  - create: project/p1
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "types directory not found")
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenarioUnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: s
description: d
step:
  - create: project/p1
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenarioInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing name",
			body: "description: d\nsteps: [{create: project/p1}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			body: "name: s\nsteps: [{create: project/p1}]\n",
			want: "description is required",
		},
		{
			name: "no steps",
			body: "name: s\ndescription: d\n",
			want: "steps list is required",
		},
		{
			name: "two operations",
			body: "name: s\ndescription: d\nsteps: [{create: project/p1, destroy: project/p1}]\n",
			want: "exactly one of",
		},
		{
			name: "bad ref",
			body: "name: s\ndescription: d\nsteps: [{create: p1}]\n",
			want: "want type/id",
		},
		{
			name: "change without key",
			body: "name: s\ndescription: d\nsteps: [{change: project/p1, value: x}]\n",
			want: "key is required for change",
		},
		{
			name: "key on create",
			body: "name: s\ndescription: d\nsteps: [{create: project/p1, key: name}]\n",
			want: "key and value only apply to change",
		},
		{
			name: "bad policy",
			body: "name: s\ndescription: d\nsteps: [{destroy: project/p1, policy: nuke}]\n",
			want: `invalid policy "nuke"`,
		},
		{
			name: "policy on undo",
			body: "name: s\ndescription: d\nsteps: [{undo: edit-1, policy: clear}]\n",
			want: "policy only applies to destroy",
		},
		{
			name: "bad advance",
			body: "name: s\ndescription: d\nsteps: [{advance: later}]\n",
			want: "invalid advance duration",
		},
		{
			name: "duplicate alias",
			body: "name: s\ndescription: d\nsteps: [{create: project/p1, as: a}, {create: project/p2, as: a}]\n",
			want: `alias "a" is already bound`,
		},
		{
			name: "outcome on destroy",
			body: "name: s\ndescription: d\nsteps: [{destroy: project/p1, expect: {outcome: applied}}]\n",
			want: "outcome only applies to change",
		},
		{
			name: "error with outcome",
			body: "name: s\ndescription: d\nsteps: [{change: project/p1, key: name, expect: {outcome: noop, error: NOT_FOUND}}]\n",
			want: "error excludes other expectations",
		},
		{
			name: "unknown assertion",
			body: "name: s\ndescription: d\nsteps: [{create: project/p1}]\nassertions: [{type: vibes}]\n",
			want: `unknown assertion type "vibes"`,
		},
		{
			name: "value without key",
			body: "name: s\ndescription: d\nsteps: [{create: project/p1}]\nassertions: [{type: value, target: project/p1}]\n",
			want: "key is required for value",
		},
		{
			name: "status without expect",
			body: "name: s\ndescription: d\nsteps: [{create: project/p1}]\nassertions: [{type: status, target: project/p1}]\n",
			want: "expect must be live, deleted, or missing",
		},
		{
			name: "undone without bool",
			body: "name: s\ndescription: d\nsteps: [{create: project/p1}]\nassertions: [{type: undone, edit: x, expect: yes please}]\n",
			want: "expect must be a bool",
		},
		{
			name: "counter without name",
			body: "name: s\ndescription: d\nsteps: [{create: project/p1}]\nassertions: [{type: counter, target: organization/o1}]\n",
			want: "counter is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
