package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootHasAllSubcommands(t *testing.T) {
	t.Parallel()
	root := Root()

	expected := []string{"plan", "apply", "scale", "health", "status", "destroy", "version"}
	for _, name := range expected {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "missing subcommand %q", name)
	}
}

func TestApplyFlags(t *testing.T) {
	t.Parallel()
	cmd := Apply()

	require.NotNil(t, cmd.Flags().Lookup("config"))
	require.NotNil(t, cmd.Flags().Lookup("metrics-listen"))
	assert.Equal(t, "c", cmd.Flags().Lookup("config").Shorthand)
}

func TestDestroyFlags(t *testing.T) {
	t.Parallel()
	cmd := Destroy()

	require.NotNil(t, cmd.Flags().Lookup("confirm"))
	require.NotNil(t, cmd.Flags().Lookup("yes"))
}

func TestScaleRejectsNonNumericCount(t *testing.T) {
	t.Parallel()
	cmd := Scale()
	cmd.SetArgs([]string{"lots"})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid worker count")
}

func TestScaleRequiresExactlyOneArg(t *testing.T) {
	t.Parallel()
	cmd := Scale()
	cmd.SetArgs([]string{})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	require.Error(t, cmd.Execute())
}
