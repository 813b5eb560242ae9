// Package handoff renders the document given to the server's owner after a
// successful run: access details, workload addresses, database credentials,
// backup policy and the follow-ups raised during provisioning.
package handoff
