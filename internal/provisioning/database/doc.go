// Package database installs and configures PostgreSQL in the postgres workload.
//
// The server listens on the private network only, accepts password logins
// from the private subnet and is tuned for the memory of the postgres
// resource pool. Roles and databases are created once; generated passwords
// are retained on the host so later runs reuse them.
package database
