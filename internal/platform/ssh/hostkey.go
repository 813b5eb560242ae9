package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var knownHostsMu sync.Mutex

// knownHostsCallback verifies host keys against path. Unknown hosts are
// appended to the file unless strict is set; a changed key is always fatal.
func knownHostsCallback(path string, strict bool) (ssh.HostKeyCallback, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create .ssh directory: %w", err)
		}
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			return nil, fmt.Errorf("failed to create known_hosts: %w", err)
		}
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		knownHostsMu.Lock()
		defer knownHostsMu.Unlock()

		// Reload on every handshake so a key recorded by the other identity is seen.
		callback, err := knownhosts.New(path)
		if err != nil {
			return fmt.Errorf("failed to load known_hosts: %w", err)
		}
		err = callback(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) {
			return err
		}
		if len(keyErr.Want) > 0 {
			mismatch := &HostKeyMismatchError{
				Hostname:     hostname,
				ReceivedType: key.Type(),
				KnownHosts:   path,
			}
			for _, k := range keyErr.Want {
				mismatch.WantTypes = append(mismatch.WantTypes, k.Key.Type())
			}
			return mismatch
		}
		if strict {
			return &UnknownHostError{Hostname: hostname, KnownHosts: path}
		}
		return recordHostKey(path, hostname, key)
	}, nil
}

func recordHostKey(path, hostname string, key ssh.PublicKey) error {
	// #nosec G304
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts: %w", err)
	}
	defer func() { _ = f.Close() }()

	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
	if _, err := fmt.Fprintln(f, line); err != nil {
		return fmt.Errorf("failed to record host key: %w", err)
	}
	return nil
}
