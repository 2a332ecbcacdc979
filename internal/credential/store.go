package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/no-wing/no-wing/internal/audit"
	"github.com/no-wing/no-wing/internal/awsx"
)

// Kind selects one of the two mutually exclusive identity contexts.
type Kind string

const (
	KindHuman Kind = "human"
	KindAgent Kind = "agent"
)

var (
	// ErrCredentialUnavailable means no credential source is configured for
	// the requested kind, or no context is active yet.
	ErrCredentialUnavailable = errors.New("credentials unavailable")
	// ErrIdentityValidationFailed means the identity-check call errored.
	ErrIdentityValidationFailed = errors.New("identity validation failed")
)

// Context is the active identity. Replaced wholesale on switch, never
// partially mutated.
type Context struct {
	Kind        Kind
	Identity    awsx.Identity
	Credentials awsx.Credentials
	SwitchedAt  time.Time
}

// Source loads the long-lived credentials for one identity kind.
type Source interface {
	Load(ctx context.Context, kind Kind) (awsx.Credentials, error)
}

// Store owns the single active identity context.
//
// Switching does NOT invalidate the client cache itself; by contract the
// caller (the factory layer, or clientcache.WithContext) clears the cache
// immediately after every successful switch.
type Store struct {
	mu       sync.RWMutex
	active   *Context
	source   Source
	identity awsx.IdentityService
	sink     audit.Sink
}

// NewStore builds a context store. A nil sink disables audit notification.
func NewStore(source Source, identity awsx.IdentityService, sink audit.Sink) *Store {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Store{source: source, identity: identity, sink: sink}
}

// SwitchTo loads and validates credentials for the given kind and makes it
// the active context. The switch is atomic: readers see either the old or
// the new context, never a mix.
func (s *Store) SwitchTo(ctx context.Context, kind Kind) (*Context, error) {
	if kind != KindHuman && kind != KindAgent {
		return nil, fmt.Errorf("unknown context kind %q", kind)
	}

	creds, err := s.source.Load(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCredentialUnavailable, kind, err)
	}

	ident, err := s.identity.Validate(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIdentityValidationFailed, kind, err)
	}

	next := &Context{
		Kind:        kind,
		Identity:    ident,
		Credentials: creds,
		SwitchedAt:  time.Now(),
	}

	s.mu.Lock()
	s.active = next
	s.mu.Unlock()

	s.sink.Notify(audit.Event{
		Event:    audit.EventContextSwitch,
		Kind:     string(kind),
		Identity: ident.ARN,
	})

	out := *next
	return &out, nil
}

// Current returns a copy of the active context, or nil before the first
// switch.
func (s *Store) Current() *Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil
	}
	out := *s.active
	return &out
}

// CurrentCredentials returns the raw credential material of the active
// context.
func (s *Store) CurrentCredentials() (awsx.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return awsx.Credentials{}, fmt.Errorf("%w: no active context", ErrCredentialUnavailable)
	}
	return s.active.Credentials, nil
}
