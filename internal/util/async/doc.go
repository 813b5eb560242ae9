// Package async runs independent checks concurrently and collects their
// errors. It is only used for read-only work (preflight probes); mutating
// provisioning operations are always sequential.
package async
