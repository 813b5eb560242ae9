package backups

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/s3"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
	"github.com/conway-vibehost/vibehost-setup/internal/templates"
	"github.com/conway-vibehost/vibehost-setup/internal/util/keygen"
)

// bucketClient is the part of the object storage client used here.
type bucketClient interface {
	EnsureBucket(ctx context.Context, bucket string) (bool, error)
	CheckWrite(ctx context.Context, bucket string) error
}

// newBucketClient is swapped in tests.
var newBucketClient = func(ctx context.Context, oc config.ObjectStorageConfig) (bucketClient, error) {
	region := oc.Region
	if region == "" {
		region = "us-east-1"
	}
	return s3.NewClient(ctx, oc.Endpoint, region, oc.AccessKey, oc.SecretKey)
}

// prepareStorageBoxKey generates the key the host uses to reach the storage
// box, unless one exists, and records its public half for the handoff.
func prepareStorageBoxKey(ctx *provisioning.Context) error {
	if offsiteProvider(ctx.Config) != config.ProviderHetzner {
		return nil
	}
	keyPath := ctx.Config.Backups.Offsite.SSHKeyPath
	pubPath := keyPath + ".pub"

	err := ctx.EnsureResource("ssh-key", keyPath, provisioning.PathExists(ctx.Host, keyPath), func(c context.Context) error {
		pair, err := keygen.GenerateEd25519KeyPair("vibehost-backup@" + ctx.Config.Server.Host)
		if err != nil {
			return err
		}
		if err := ssh.Run(c, ctx.Host, "install -d -m 700 "+ssh.Quote(path.Dir(keyPath))); err != nil {
			return err
		}
		if err := ctx.Host.Materialize(c, keyPath, pair.PrivateKey, ssh.FileSpec{Mode: 0o600, Owner: "root", Group: "root"}); err != nil {
			return err
		}
		return ctx.Host.Materialize(c, pubPath, pair.PublicKey, ssh.FileSpec{Mode: 0o644, Owner: "root", Group: "root"})
	})
	if err != nil {
		return err
	}

	pub, err := readPublicKey(ctx, keyPath)
	if err != nil {
		return err
	}
	ctx.State.SetStorageBoxPublicKey(pub)
	ctx.Printf("[%s] Add this public key to the storage box: %s", phase, pub)
	return nil
}

// readPublicKey returns the public half of keyPath, deriving it from the
// private key when the .pub file is missing.
func readPublicKey(ctx *provisioning.Context, keyPath string) (string, error) {
	pubPath := keyPath + ".pub"
	exists, err := ctx.Host.Exists(ctx, pubPath)
	if err != nil {
		return "", err
	}
	if exists {
		data, err := ctx.Host.ReadFile(ctx, pubPath)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}
	out, err := ssh.Output(ctx, ctx.Host, "ssh-keygen -y -f "+ssh.Quote(keyPath))
	if err != nil {
		return "", fmt.Errorf("failed to derive public key of %s: %w", keyPath, err)
	}
	return strings.TrimSpace(out), nil
}

// OffsiteScript renders the weekly export script for the configured provider.
func OffsiteScript(cfg *config.Config) ([]byte, error) {
	off := cfg.Backups.Offsite
	data := map[string]any{
		"RetentionWeeks": off.RetentionWeeks,
		"ExportDir":      ExportDir,
		"DumpDir":        DumpDir,
		"Containers":     config.Workloads,
	}
	if offsiteProvider(cfg) == config.ProviderObjectStorage {
		data["Bucket"] = off.ObjectStorage.Bucket
		data["RcloneConfig"] = RcloneConfigPath
		return templates.Render("backups/vibehost-offsite-s3.tmpl", data)
	}
	data["Host"] = off.StorageBoxHost
	data["User"] = off.StorageBoxUser
	data["KeyPath"] = off.SSHKeyPath
	return templates.Render("backups/vibehost-offsite-backup.tmpl", data)
}

func createOffsiteScript(ctx *provisioning.Context) error {
	provider := offsiteProvider(ctx.Config)
	if provider == "" {
		ctx.Printf("[%s] Offsite backups disabled, skipping", phase)
		return nil
	}
	if provider == config.ProviderObjectStorage {
		if err := prepareObjectStorage(ctx); err != nil {
			return err
		}
	}
	script, err := OffsiteScript(ctx.Config)
	if err != nil {
		return err
	}
	return ctx.EnsureFile(ctx.Host, OffsiteScriptPath, script, ssh.FileSpec{Mode: 0o755})
}

// prepareObjectStorage installs rclone with its remote definition and makes
// sure the bucket exists.
func prepareObjectStorage(ctx *provisioning.Context) error {
	oc := ctx.Config.Backups.Offsite.ObjectStorage
	if err := ctx.EnsurePackages(ctx.Host, "rclone", "rclone"); err != nil {
		return err
	}
	conf, err := templates.Render("backups/rclone.conf.tmpl", oc)
	if err != nil {
		return err
	}
	if err := ssh.Run(ctx, ctx.Host, "install -d -m 700 "+path.Dir(RcloneConfigPath)); err != nil {
		return err
	}
	if err := ctx.EnsureFile(ctx.Host, RcloneConfigPath, conf, ssh.FileSpec{Mode: 0o600, Owner: "root", Group: "root"}); err != nil {
		return err
	}

	client, err := newBucketClient(ctx, oc)
	if err != nil {
		return err
	}
	created, err := client.EnsureBucket(ctx, oc.Bucket)
	if err != nil {
		return err
	}
	if created {
		ctx.Printf("[%s] Created bucket %s", phase, oc.Bucket)
	}
	return nil
}

func testConnectivity(ctx *provisioning.Context) error {
	off := ctx.Config.Backups.Offsite
	switch offsiteProvider(ctx.Config) {
	case config.ProviderHetzner:
		cmd := fmt.Sprintf("echo ls | sftp -b - -i %s -oBatchMode=yes -oConnectTimeout=10 -oStrictHostKeyChecking=accept-new %s",
			ssh.Quote(off.SSHKeyPath), ssh.Quote(off.StorageBoxUser+"@"+off.StorageBoxHost))
		res, err := ssh.Probe(ctx, ctx.Host, cmd)
		if err != nil {
			return err
		}
		if !res.OK() {
			ctx.Warn("could not reach the storage box %s; add the backup public key to it and run %s manually",
				off.StorageBoxHost, OffsiteScriptPath)
			return nil
		}
	case config.ProviderObjectStorage:
		client, err := newBucketClient(ctx, off.ObjectStorage)
		if err != nil {
			return err
		}
		if err := client.CheckWrite(ctx, off.ObjectStorage.Bucket); err != nil {
			ctx.Warn("could not write to bucket %s: %v", off.ObjectStorage.Bucket, err)
			return nil
		}
	default:
		return nil
	}
	ctx.Printf("[%s] Offsite target reachable", phase)
	return nil
}
