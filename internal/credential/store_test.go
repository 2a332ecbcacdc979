package credential

import (
	"context"
	"errors"
	"testing"

	"github.com/no-wing/no-wing/internal/awsx"
)

type fakeIdentity struct {
	identities map[string]awsx.Identity // keyed by access key
	failAll    bool
}

func (f *fakeIdentity) Validate(_ context.Context, creds awsx.Credentials) (awsx.Identity, error) {
	if f.failAll {
		return awsx.Identity{}, errors.New("sts unreachable")
	}
	id, ok := f.identities[creds.AccessKey]
	if !ok {
		return awsx.Identity{}, errors.New("invalid credentials")
	}
	return id, nil
}

func (f *fakeIdentity) ListRoles(context.Context) ([]awsx.RoleDescriptor, error) {
	return nil, nil
}

func (f *fakeIdentity) GetRole(context.Context, string) (awsx.RoleDescriptor, error) {
	return awsx.RoleDescriptor{}, errors.New("not implemented")
}

func (f *fakeIdentity) AssumeRole(context.Context, awsx.AssumeRoleInput) (awsx.Credentials, error) {
	return awsx.Credentials{}, errors.New("not implemented")
}

func testStore() (*Store, *fakeIdentity) {
	source := StaticSource{
		KindHuman: {AccessKey: "AKIAHUMAN", SecretKey: "sk1"},
		KindAgent: {AccessKey: "AKIAAGENT", SecretKey: "sk2"},
	}
	ident := &fakeIdentity{identities: map[string]awsx.Identity{
		"AKIAHUMAN": {ARN: "arn:aws:iam::123:user/ops", UserID: "U1", Account: "123"},
		"AKIAAGENT": {ARN: "arn:aws:iam::123:user/no-wing", UserID: "U2", Account: "123"},
	}}
	return NewStore(source, ident, nil), ident
}

func TestCurrentIsNilBeforeFirstSwitch(t *testing.T) {
	s, _ := testStore()
	if s.Current() != nil {
		t.Error("Current() should be nil before first switch")
	}
	if _, err := s.CurrentCredentials(); !errors.Is(err, ErrCredentialUnavailable) {
		t.Errorf("CurrentCredentials before switch: err = %v", err)
	}
}

func TestSwitchToResolvesIdentity(t *testing.T) {
	s, _ := testStore()

	cc, err := s.SwitchTo(context.Background(), KindAgent)
	if err != nil {
		t.Fatalf("SwitchTo failed: %v", err)
	}
	if cc.Kind != KindAgent {
		t.Errorf("Kind = %s", cc.Kind)
	}
	if cc.Identity.ARN != "arn:aws:iam::123:user/no-wing" {
		t.Errorf("ARN = %s", cc.Identity.ARN)
	}

	creds, err := s.CurrentCredentials()
	if err != nil || creds.AccessKey != "AKIAAGENT" {
		t.Errorf("CurrentCredentials = %+v, err = %v", creds, err)
	}
}

func TestSwitchReplacesContextWholesale(t *testing.T) {
	s, _ := testStore()

	s.SwitchTo(context.Background(), KindHuman)
	first := s.Current()

	s.SwitchTo(context.Background(), KindAgent)
	second := s.Current()

	if first.Kind != KindHuman {
		t.Error("earlier snapshot mutated by later switch")
	}
	if second.Kind != KindAgent || second.Credentials.AccessKey != "AKIAAGENT" {
		t.Errorf("active context = %+v", second)
	}
}

func TestSwitchToUnknownKindFails(t *testing.T) {
	s, _ := testStore()
	if _, err := s.SwitchTo(context.Background(), Kind("robot")); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestSwitchToUnconfiguredSource(t *testing.T) {
	ident := &fakeIdentity{identities: map[string]awsx.Identity{}}
	s := NewStore(StaticSource{}, ident, nil)

	_, err := s.SwitchTo(context.Background(), KindAgent)
	if !errors.Is(err, ErrCredentialUnavailable) {
		t.Errorf("err = %v, want ErrCredentialUnavailable", err)
	}
	if s.Current() != nil {
		t.Error("failed switch must not set a context")
	}
}

func TestSwitchToValidationFailure(t *testing.T) {
	s, ident := testStore()
	ident.failAll = true

	_, err := s.SwitchTo(context.Background(), KindHuman)
	if !errors.Is(err, ErrIdentityValidationFailed) {
		t.Errorf("err = %v, want ErrIdentityValidationFailed", err)
	}
	if s.Current() != nil {
		t.Error("failed validation must not set a context")
	}
}
