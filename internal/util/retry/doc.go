// Package retry provides exponential backoff and polling helpers for
// operations against a remote host that may fail transiently.
//
// [WithExponentialBackoff] is used when dialing SSH, where a freshly
// rebooted or restarted host may refuse connections for a while.
// [Until] polls a readiness check, for example waiting for a container
// to finish booting. Errors wrapped with [Fatal] stop both immediately.
package retry
