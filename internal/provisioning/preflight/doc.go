// Package preflight inspects a target host before anything is changed.
//
// It checks reachability from the operator machine, the operating system
// release, available memory, CPU and disk, and the commands every later
// phase depends on. The same checks back the dry-run mode.
package preflight
