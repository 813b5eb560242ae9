package keygen

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// KeyPair holds a key pair in ready-to-use formats.
type KeyPair struct {
	// PrivateKey is the private key as an OpenSSH PEM block.
	PrivateKey []byte
	// PublicKey is the public key in authorized_keys format, newline terminated.
	PublicKey []byte
}

// GenerateEd25519KeyPair generates a new ed25519 key pair. The comment is
// embedded in both halves, as ssh-keygen -C does.
func GenerateEd25519KeyPair(comment string) (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH public key: %w", err)
	}
	authorized := ssh.MarshalAuthorizedKey(sshPub)
	if comment != "" {
		authorized = append(authorized[:len(authorized)-1], []byte(" "+comment+"\n")...)
	}

	return &KeyPair{
		PrivateKey: pem.EncodeToMemory(block),
		PublicKey:  authorized,
	}, nil
}
