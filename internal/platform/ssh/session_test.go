package ssh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestSession_HostUsesInitialLogin(t *testing.T) {
	kp := generateTestKey(t)
	srv := newTestServer(t, map[string]string{"root": "pw"}, map[string]ssh.PublicKey{"ops": publicKey(t, kp)})

	initial := srv.clientConfig("root")
	initial.Password = "pw"
	admin := srv.clientConfig("ops")
	admin.PrivateKey = kp.PrivateKey

	s := NewSession(initial, admin)
	defer func() { _ = s.Close() }()

	host, err := s.Host(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "root", host.User())

	again, err := s.Host(context.Background())
	require.NoError(t, err)
	assert.Same(t, host, again)
}

func TestSession_HostFallsBackToAdmin(t *testing.T) {
	kp := generateTestKey(t)
	// Root password login has been disabled by a previous run.
	srv := newTestServer(t, nil, map[string]ssh.PublicKey{"ops": publicKey(t, kp)})

	initial := srv.clientConfig("root")
	initial.Password = "pw"
	admin := srv.clientConfig("ops")
	admin.PrivateKey = kp.PrivateKey

	s := NewSession(initial, admin)
	defer func() { _ = s.Close() }()

	host, err := s.Host(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ops", host.User())

	adminClient, err := s.Admin(context.Background())
	require.NoError(t, err)
	assert.Same(t, host, adminClient)
}

func TestSession_NoFallbackWithoutAdmin(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	initial := srv.clientConfig("root")
	initial.Password = "pw"

	s := NewSession(initial, nil)
	defer func() { _ = s.Close() }()

	_, err := s.Host(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)

	_, err = s.Admin(context.Background())
	assert.ErrorIs(t, err, ErrConnection)
}

func TestSession_CloseClosesClients(t *testing.T) {
	srv := newTestServer(t, map[string]string{"root": "pw"}, nil)
	initial := srv.clientConfig("root")
	initial.Password = "pw"

	s := NewSession(initial, nil)
	host, err := s.Host(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Close())

	_, err = host.Execute(context.Background(), "true", ExecOptions{})
	assert.ErrorIs(t, err, ErrConnection)
}
