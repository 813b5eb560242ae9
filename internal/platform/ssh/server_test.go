package ssh

import (
	"bytes"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/conway-vibehost/vibehost-setup/internal/util/keygen"
)

// execCall is one exec request seen by the test server.
type execCall struct {
	User    string
	Command string
	Stdin   []byte
}

// reply is the scripted answer to an exec request.
type reply struct {
	Stdout string
	Stderr string
	Exit   uint32
}

// testServer is an in-process SSH server that answers exec requests from a
// handler instead of running them. It refuses the sftp subsystem.
type testServer struct {
	t        *testing.T
	listener net.Listener
	hostKey  ssh.Signer
	config   *ssh.ServerConfig

	mu      sync.Mutex
	calls   []execCall
	handler func(call execCall) reply
}

func newTestServer(t *testing.T, passwords map[string]string, keys map[string]ssh.PublicKey) *testServer {
	t.Helper()

	hostPair, err := keygen.GenerateEd25519KeyPair("host")
	require.NoError(t, err)
	hostKey, err := ssh.ParsePrivateKey(hostPair.PrivateKey)
	require.NoError(t, err)

	s := &testServer{t: t, hostKey: hostKey}
	s.handler = func(execCall) reply { return reply{} }
	s.config = &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if want, ok := passwords[meta.User()]; ok && want == string(password) {
				return nil, nil
			}
			return nil, ssh.ErrNoAuth
		},
		PublicKeyCallback: func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if want, ok := keys[meta.User()]; ok && bytes.Equal(want.Marshal(), key.Marshal()) {
				return nil, nil
			}
			return nil, ssh.ErrNoAuth
		},
	}
	s.config.AddHostKey(hostKey)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s.listener = listener
	t.Cleanup(func() { _ = listener.Close() })

	go s.serve()
	return s
}

func (s *testServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *testServer) handle(fn func(call execCall) reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = fn
}

func (s *testServer) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.Command)
	}
	return out
}

func (s *testServer) lastCall() execCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

func (s *testServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *testServer) handleConn(nConn net.Conn) {
	sshConn, chans, reqs, err := ssh.NewServerConn(nConn, s.config)
	if err != nil {
		_ = nConn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "only sessions")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(sshConn.User(), ch, chReqs)
	}
}

func (s *testServer) handleSession(user string, ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer func() { _ = ch.Close() }()
	for req := range reqs {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				return
			}
			_ = req.Reply(true, nil)

			stdin, _ := io.ReadAll(ch)
			call := execCall{User: user, Command: payload.Command, Stdin: stdin}

			s.mu.Lock()
			s.calls = append(s.calls, call)
			handler := s.handler
			s.mu.Unlock()

			r := handler(call)
			_, _ = io.Copy(ch, strings.NewReader(r.Stdout))
			_, _ = io.Copy(ch.Stderr(), strings.NewReader(r.Stderr))
			_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{r.Exit}))
			return
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

// clientConfig returns a config that trusts the test server's host key.
func (s *testServer) clientConfig(user string) *Config {
	return &Config{
		Host:            "127.0.0.1",
		Port:            s.port(),
		User:            user,
		MaxRetries:      1,
		RetryDelay:      10 * time.Millisecond,
		HostKeyCallback: ssh.FixedHostKey(s.hostKey.PublicKey()),
		SSHConfigPath:   "/nonexistent",
	}
}
