package role

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/no-wing/no-wing/internal/audit"
	"github.com/no-wing/no-wing/internal/awsx"
	"github.com/no-wing/no-wing/internal/config"
	"github.com/no-wing/no-wing/internal/operation"
)

var (
	// ErrRoleNotFound means no discoverable role matched the operation.
	ErrRoleNotFound = errors.New("no matching role found")
	// ErrAssumeRoleDenied means the assumption call was rejected.
	ErrAssumeRoleDenied = errors.New("role assumption denied")
)

const (
	// ReuseBuffer is the minimum remaining lifetime for session reuse.
	// Evaluated at every lookup, never cached as a boolean.
	ReuseBuffer = 5 * time.Minute
	// DefaultDuration is the requested session length unless the role's
	// max session duration is smaller.
	DefaultDuration = time.Hour
)

// Session is one ephemeral assumed-role credential set.
type Session struct {
	RoleArn     string
	SessionName string
	Credentials awsx.Credentials
	Expiration  time.Time
	AssumedAt   time.Time
}

// Usable reports whether the session satisfies the reuse buffer at t.
// Exactly at the boundary the session counts as expired.
func (s *Session) Usable(t time.Time) bool {
	return s.Expiration.Sub(t) > ReuseBuffer
}

// Manager turns an operation context into live temporary credentials.
// It caches discovered roles until an explicit clear, and caches sessions
// per role ARN under the reuse buffer rule.
type Manager struct {
	identity awsx.IdentityService
	patterns config.RolePatterns
	sink     audit.Sink

	mu          sync.Mutex
	roles       []awsx.RoleDescriptor
	rolesLoaded bool
	sessions    map[string]*Session

	now func() time.Time
}

// NewManager builds a role manager. A nil sink disables audit notification.
func NewManager(identity awsx.IdentityService, patterns config.RolePatterns, sink audit.Sink) *Manager {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Manager{
		identity: identity,
		patterns: patterns,
		sink:     sink,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// ListAvailableRoles returns the cached role list, populating it on first
// use. Discovery failure yields an empty list: absence of roles is a valid
// (if limited) state, not an error.
func (m *Manager) ListAvailableRoles(ctx context.Context) []awsx.RoleDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listRolesLocked(ctx)
}

func (m *Manager) listRolesLocked(ctx context.Context) []awsx.RoleDescriptor {
	if m.rolesLoaded {
		return m.roles
	}
	roles, err := m.identity.ListRoles(ctx)
	if err != nil {
		return nil
	}
	m.roles = roles
	m.rolesLoaded = true
	return m.roles
}

// ClearCache drops the role cache and all cached sessions.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles = nil
	m.rolesLoaded = false
	m.sessions = make(map[string]*Session)
}

// FindBestRole selects the most specific role matching the operation's
// pattern set. Returns ErrRoleNotFound when nothing matches.
func (m *Manager) FindBestRole(ctx context.Context, op operation.Context) (*awsx.RoleDescriptor, error) {
	patterns := m.patterns.PatternsFor(op.Service, op.Operation)
	if len(patterns) == 0 {
		return nil, ErrRoleNotFound
	}

	m.mu.Lock()
	roles := m.listRolesLocked(ctx)
	m.mu.Unlock()

	type candidate struct {
		role  awsx.RoleDescriptor
		score int
	}
	var candidates []candidate
	for _, r := range roles {
		if score, ok := bestScore(r.Name, patterns); ok {
			candidates = append(candidates, candidate{role: r, score: score})
		}
	}
	if len(candidates) == 0 {
		return nil, ErrRoleNotFound
	}

	// Stable sort: ties keep discovery order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	best := candidates[0].role
	return &best, nil
}

// AssumeRoleForOperation resolves the target role (override or best match),
// reuses a cached session when the buffer rule holds, and otherwise performs
// a fresh assumption.
func (m *Manager) AssumeRoleForOperation(ctx context.Context, op operation.Context, roleArnOverride string) (*Session, error) {
	var roleArn string
	var maxDuration int32

	if roleArnOverride != "" {
		roleArn = roleArnOverride
	} else {
		best, err := m.FindBestRole(ctx, op)
		if err != nil {
			return nil, err
		}
		roleArn = best.Arn
		maxDuration = best.MaxSessionDuration
	}

	now := m.now()

	m.mu.Lock()
	if cached, ok := m.sessions[roleArn]; ok && cached.Usable(now) {
		out := *cached
		m.mu.Unlock()
		return &out, nil
	}
	m.mu.Unlock()

	duration := int32(DefaultDuration / time.Second)
	if maxDuration > 0 && maxDuration < duration {
		duration = maxDuration
	}

	sessionName := sessionNameFor(op.Operation, now)
	creds, err := m.identity.AssumeRole(ctx, awsx.AssumeRoleInput{
		RoleArn:         roleArn,
		SessionName:     sessionName,
		DurationSeconds: duration,
		Tags:            op.Tags,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssumeRoleDenied, roleArn, err)
	}

	session := &Session{
		RoleArn:     roleArn,
		SessionName: sessionName,
		Credentials: creds,
		Expiration:  creds.Expiration,
		AssumedAt:   now,
	}

	m.mu.Lock()
	m.sessions[roleArn] = session
	m.mu.Unlock()

	m.sink.Notify(audit.Event{
		Event:     audit.EventRoleAssumed,
		Role:      roleArn,
		Operation: op.Operation,
		Service:   op.Service,
		Detail:    sessionName,
	})

	out := *session
	return &out, nil
}

// TestRoleAssumption performs a full assume + identity-check round trip for
// diagnostics. It never touches the session cache.
func (m *Manager) TestRoleAssumption(ctx context.Context, roleArn string) (awsx.Identity, error) {
	creds, err := m.identity.AssumeRole(ctx, awsx.AssumeRoleInput{
		RoleArn:         roleArn,
		SessionName:     sessionNameFor("diagnostic", m.now()),
		DurationSeconds: 900,
	})
	if err != nil {
		return awsx.Identity{}, fmt.Errorf("%w: %s: %v", ErrAssumeRoleDenied, roleArn, err)
	}
	return m.identity.Validate(ctx, creds)
}

// CleanupExpiredSessions evicts every cached session failing the buffer
// rule. Run periodically or before bulk operations.
func (m *Manager) CleanupExpiredSessions() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for arn, s := range m.sessions {
		if !s.Usable(now) {
			delete(m.sessions, arn)
			removed++
		}
	}
	return removed
}

// CachedSessions returns copies of all cached sessions, for status display.
func (m *Manager) CachedSessions() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	return out
}

// sessionNameFor derives an STS session name from the operation and a
// monotonic timestamp. STS limits names to 64 chars of [\w+=,.@-].
func sessionNameFor(op string, t time.Time) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '+' || r == '=' || r == ',' || r == '.' || r == '@' || r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, op)
	if clean == "" {
		clean = "op"
	}
	name := fmt.Sprintf("no-wing-%s-%d", clean, t.UnixNano())
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}
