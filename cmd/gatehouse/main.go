// Package main is the entry point for the gatehouse CLI.
package main

import (
	"fmt"
	"os"

	"github.com/gatehouse-dev/gatehouse/cmd/gatehouse/commands"
	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	exitFatal     = 1
	exitRetryable = 2
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error classification onto shell-visible statuses
// so wrappers can retry transient failures without parsing output.
func exitCode(err error) int {
	if errdefs.Retryable(err) {
		return exitRetryable
	}
	return exitFatal
}
