// Package container runs commands and writes files inside an incus workload
// by composing through the host's ssh.Executor.
//
// Every command is sent as "incus exec <name> -- bash -c '<command>'" so it
// survives the host shell and the workload shell unchanged. A workload that
// does not exist is reported as [ErrWorkloadNotFound], which callers can tell
// apart from a command that ran and failed.
package container
