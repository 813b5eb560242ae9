// Package ssh provides the remote command channel used to provision a host.
//
// A [Client] holds one lazily dialed connection for one login identity and
// exposes the operations every provisioning step is built from: run a
// command (optionally privileged, optionally tolerating a non-zero exit),
// test for a path, read a file, write a file atomically and append to a
// file. [Session] pairs the initial login with the admin identity that is
// created during hardening.
//
// Privileged commands run directly when the login user is root and through
// sudo otherwise. File writes are uploaded to a temporary file over SFTP and
// installed with a rename inside the destination directory, so readers never
// observe partial content.
package ssh
