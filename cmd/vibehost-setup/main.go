// Package main is the entry point for the vibehost-setup CLI.
//
// vibehost-setup turns a freshly installed dedicated server into a
// container host: a hardened host running incus with dev, staging and prod
// workloads, a PostgreSQL workload on a private network, and scheduled
// backups. Every phase is safe to run again.
//
// Commands: provision, validate, version, completion.
//
// For detailed usage information, run:
//
//	vibehost-setup --help
package main

import (
	"fmt"
	"os"

	"github.com/conway-vibehost/vibehost-setup/cmd/vibehost-setup/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
