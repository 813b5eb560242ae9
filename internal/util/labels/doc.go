// Package labels builds the user.vibehost.* configuration keys attached to
// every workload at launch.
//
// The keys let a later run (and an operator running incus list) tell which
// instances this tool created, for which role, and in which run.
package labels
