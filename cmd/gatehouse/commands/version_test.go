package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetVersionInfo(t *testing.T) {
	origVersion, origCommit, origDate := version, commit, date
	defer SetVersionInfo(origVersion, origCommit, origDate)

	SetVersionInfo("1.2.3", "abc123", "2026-08-23")
	assert.Equal(t, "1.2.3", version)
	assert.Equal(t, "abc123", commit)
	assert.Equal(t, "2026-08-23", date)
}

func TestVersionCommandRuns(t *testing.T) {
	cmd := Version()
	cmd.SetArgs([]string{})
	assert.NoError(t, cmd.Execute())
}
