// Package host hardens the bare server before any workload exists.
//
// It enables the contrib repository, upgrades the system, creates the
// admin account, configures ufw, CrowdSec, unattended upgrades and kernel
// parameters, and finally replaces sshd_config through the safety gate so
// the admin key is proven before root and password logins are disabled.
package host
