// Package keygen generates ed25519 key pairs for SSH authentication.
//
// Keys are produced in OpenSSH private key format and authorized_keys
// format, ready to be written to a host's ~/.ssh directory.
package keygen
