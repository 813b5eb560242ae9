// Package backups installs the snapshot and offsite backup jobs on the host.
//
// Daily snapshots of every workload and gzipped database dumps are kept
// locally. Weekly exports are shipped either to a storage box over SFTP,
// authenticated with a key generated here, or to an S3-compatible bucket
// through rclone. The bucket itself is created from the operator's machine.
package backups
