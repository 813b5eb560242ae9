package ssh

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kevinburke/ssh_config"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
	defaultMaxRetries  = 3
	defaultRetryDelay  = 2 * time.Second
	defaultMaxDelay    = 10 * time.Second
)

// Config holds SSH client configuration for one login identity.
type Config struct {
	Host string
	Port int
	User string

	// Password enables password and keyboard-interactive authentication.
	Password string
	// PrivateKeyPath is read when PrivateKey is empty.
	PrivateKeyPath string
	PrivateKey     []byte
	Passphrase     string
	// UseAgent adds the keys held by SSH_AUTH_SOCK as a supplementary method.
	UseAgent bool

	// DialTimeout is the timeout for establishing the TCP connection.
	// If zero, defaultDialTimeout is used.
	DialTimeout time.Duration

	// MaxRetries is the maximum number of connection retry attempts.
	// If zero, defaultMaxRetries is used.
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts.
	// If zero, defaultRetryDelay is used.
	RetryDelay time.Duration

	// SSHConfigPath is consulted to resolve host aliases. Defaults to ~/.ssh/config.
	SSHConfigPath string
	// KnownHostsPath defaults to ~/.ssh/known_hosts.
	KnownHostsPath string
	// StrictHostKey rejects hosts missing from known_hosts instead of recording them.
	StrictHostKey bool
	// HostKeyCallback overrides known_hosts handling entirely.
	HostKeyCallback ssh.HostKeyCallback
}

// address returns the host:port string for dialing.
func (c *Config) address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// resolveAlias fills Host, Port, User and PrivateKeyPath from an ssh_config
// Host entry when Host names one. Explicit values win.
func (c *Config) resolveAlias() {
	path := c.SSHConfigPath
	if path == "" {
		path = filepath.Join(homeDir(), ".ssh", "config")
	}
	// #nosec G304
	content, err := os.ReadFile(path)
	if err != nil {
		return
	}
	cfg, err := ssh_config.Decode(bytes.NewReader(stripMatchBlocks(content)))
	if err != nil {
		return
	}

	alias := c.Host
	if hostname, _ := cfg.Get(alias, "HostName"); hostname != "" {
		c.Host = hostname
	}
	if c.Port == 0 {
		if port, _ := cfg.Get(alias, "Port"); port != "" {
			if p, err := strconv.Atoi(port); err == nil {
				c.Port = p
			}
		}
	}
	if c.User == "" {
		if user, _ := cfg.Get(alias, "User"); user != "" {
			c.User = user
		}
	}
	if c.Password == "" && c.PrivateKeyPath == "" && len(c.PrivateKey) == 0 {
		if identity, _ := cfg.Get(alias, "IdentityFile"); identity != "" {
			c.PrivateKeyPath = expandPath(identity)
		}
	}
}

// stripMatchBlocks drops everything from the first Match directive onwards,
// which ssh_config cannot parse.
func stripMatchBlocks(content []byte) []byte {
	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) > 0 && strings.EqualFold(fields[0], "Match") {
			return []byte(strings.Join(lines[:i], "\n"))
		}
	}
	return content
}

// authMethods builds the offered authentication methods.
func (c *Config) authMethods(signer ssh.Signer) []ssh.AuthMethod {
	var methods []ssh.AuthMethod
	if signer != nil {
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if c.UseAgent {
		if agentAuth := sshAgentAuth(); agentAuth != nil {
			methods = append(methods, agentAuth)
		}
	}
	if c.Password != "" {
		password := c.Password
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}
	return methods
}

// parseSigner loads the private key, if any.
func (c *Config) parseSigner() (ssh.Signer, error) {
	key := c.PrivateKey
	if len(key) == 0 && c.PrivateKeyPath != "" {
		data, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		key = data
	}
	if len(key) == 0 {
		return nil, nil
	}
	if c.Passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(key, []byte(c.Passphrase))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return signer, nil
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return signer, nil
}

var (
	agentClient   agent.ExtendedAgent
	agentConnOnce sync.Once
)

// sshAgentAuth returns an auth method backed by the running agent, or nil
// when there is no agent or it holds no keys.
func sshAgentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}
	agentConnOnce.Do(func() {
		conn, err := net.Dial("unix", socket)
		if err != nil {
			return
		}
		agentClient = agent.NewClient(conn)
	})
	if agentClient == nil {
		return nil
	}
	signers, err := agentClient.Signers()
	if err != nil || len(signers) == 0 {
		return nil
	}
	return ssh.PublicKeysCallback(agentClient.Signers)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
