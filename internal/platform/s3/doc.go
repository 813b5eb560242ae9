// Package s3 talks to the S3-compatible object storage that receives
// offsite backups.
//
// Only the bucket-level operations the provisioner needs are exposed:
// making sure the backup bucket exists and verifying that the configured
// credentials can write to it. Uploads themselves are done on the host by
// rclone.
package s3
