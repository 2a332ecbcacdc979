package elevate

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ErrRequestNotFound is returned for lookups and transitions on unknown ids.
var ErrRequestNotFound = errors.New("permission request not found")

// Status of a permission request. Only pending transitions; the rest are
// terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusExpired  Status = "expired"
)

// Request is a durable record of an elevation attempt that needs human
// sign-off.
type Request struct {
	ID              string     `json:"id"`
	Operation       string     `json:"operation"`
	Service         string     `json:"service"`
	RequiredActions []string   `json:"required_actions"`
	Resources       []string   `json:"resources,omitempty"`
	Justification   string     `json:"justification"`
	Status          Status     `json:"status"`
	RequestedAt     time.Time  `json:"requested_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	ApprovedBy      string     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
}

// RequestStore keeps permission requests in memory and mirrors every
// mutation to a JSON file, so pending requests survive the process.
// An empty path keeps the store memory-only (tests).
type RequestStore struct {
	mu       sync.Mutex
	path     string
	ttl      time.Duration
	requests map[string]*Request
	now      func() time.Time
}

// NewRequestStore loads (or initializes) the request store at path.
func NewRequestStore(path string, ttl time.Duration) (*RequestStore, error) {
	s := &RequestStore{
		path:     path,
		ttl:      ttl,
		requests: make(map[string]*Request),
		now:      time.Now,
	}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read request store: %w", err)
	}
	if err := json.Unmarshal(data, &s.requests); err != nil {
		return nil, fmt.Errorf("parse request store: %w", err)
	}
	return s, nil
}

func (s *RequestStore) saveLocked() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.requests, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}

// Create stores a new pending request and persists it.
func (s *RequestStore) Create(op, service string, actions, resources []string, justification string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := newRequestID()
	for s.requests[id] != nil {
		id = newRequestID()
	}

	now := s.now()
	req := &Request{
		ID:              id,
		Operation:       op,
		Service:         service,
		RequiredActions: actions,
		Resources:       resources,
		Justification:   justification,
		Status:          StatusPending,
		RequestedAt:     now,
		ExpiresAt:       now.Add(s.ttl),
	}
	s.requests[id] = req

	if err := s.saveLocked(); err != nil {
		delete(s.requests, id)
		return nil, fmt.Errorf("persist request: %w", err)
	}
	out := *req
	return &out, nil
}

// Get returns a copy of the request with the given id.
func (s *RequestStore) Get(id string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}
	out := *req
	return &out, nil
}

// Approve transitions a pending request to approved, recording the
// approver. Non-pending or unknown ids fail without side effects.
func (s *RequestStore) Approve(id, approver string) error {
	return s.resolve(id, StatusApproved, approver)
}

// Deny transitions a pending request to denied.
func (s *RequestStore) Deny(id, denier string) error {
	return s.resolve(id, StatusDenied, denier)
}

func (s *RequestStore) resolve(id string, status Status, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}
	if req.Status != StatusPending {
		return fmt.Errorf("request %s is %s, not pending", id, req.Status)
	}

	now := s.now()
	req.Status = status
	req.ApprovedBy = actor
	req.ApprovedAt = &now
	return s.saveLocked()
}

// CleanupExpired transitions every pending request past its deadline to
// expired. Returns the number of transitions.
func (s *RequestStore) CleanupExpired() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	expired := 0
	for _, req := range s.requests {
		if req.Status == StatusPending && now.After(req.ExpiresAt) {
			req.Status = StatusExpired
			expired++
		}
	}
	if expired == 0 {
		return 0, nil
	}
	return expired, s.saveLocked()
}

// List returns all requests, newest first.
func (s *RequestStore) List() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Request, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, *req)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})
	return out
}

func newRequestID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%x", time.Now().UnixNano())
	}
	return "req-" + hex.EncodeToString(b)
}
