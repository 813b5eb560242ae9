package ssh

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// Session owns one client per login identity: the initial login used for
// host hardening and the admin identity created by it. Each client is dialed
// on first use and closed by Close.
type Session struct {
	initial *Config
	admin   *Config

	mu          sync.Mutex
	hostClient  *Client
	adminClient *Client
	clients     []*Client

	// newClient is swapped in tests.
	newClient func(*Config) (*Client, error)
}

// NewSession prepares a session. admin may be nil when no admin identity is known.
func NewSession(initial, admin *Config) *Session {
	return &Session{initial: initial, admin: admin, newClient: NewClient}
}

// Host returns the channel used for host-level work. It logs in with the
// initial identity and falls back to the admin identity when the server
// rejects the initial credentials, which is the case on re-runs after root
// login has been disabled.
func (s *Session) Host(ctx context.Context) (*Client, error) {
	s.mu.Lock()
	if s.hostClient != nil {
		defer s.mu.Unlock()
		return s.hostClient, nil
	}
	s.mu.Unlock()

	initial, err := s.open(s.initial)
	if err != nil {
		return nil, err
	}
	err = initial.Connect(ctx)
	if err == nil {
		s.setHost(initial)
		return initial, nil
	}
	if !errors.Is(err, ErrAuthentication) || s.admin == nil {
		return nil, err
	}

	log.Printf("Initial login as %s rejected, continuing as %s", s.initial.User, s.admin.User)
	admin, adminErr := s.Admin(ctx)
	if adminErr != nil {
		return nil, fmt.Errorf("%w (admin fallback: %w)", err, adminErr)
	}
	s.setHost(admin)
	return admin, nil
}

// Admin returns the channel logged in as the admin identity.
func (s *Session) Admin(ctx context.Context) (*Client, error) {
	if s.admin == nil {
		return nil, fmt.Errorf("%w: no admin identity configured", ErrConnection)
	}
	s.mu.Lock()
	if s.adminClient != nil {
		defer s.mu.Unlock()
		return s.adminClient, nil
	}
	s.mu.Unlock()

	client, err := s.open(s.admin)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.adminClient = client
	s.mu.Unlock()
	return client, nil
}

func (s *Session) open(cfg *Config) (*Client, error) {
	client, err := s.newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	s.mu.Lock()
	s.clients = append(s.clients, client)
	s.mu.Unlock()
	return client, nil
}

func (s *Session) setHost(c *Client) {
	s.mu.Lock()
	s.hostClient = c
	s.mu.Unlock()
}

// Close closes every client opened by the session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, c := range s.clients {
		errs = append(errs, c.Close())
	}
	s.clients = nil
	s.hostClient = nil
	s.adminClient = nil
	return errors.Join(errs...)
}
