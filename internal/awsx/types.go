package awsx

import (
	"context"
	"time"
)

// Credentials is the single concrete credential shape used everywhere.
// Expiration is zero for long-lived credentials.
type Credentials struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
	Expiration   time.Time
}

// Identity is the resolved caller identity for a credential set.
type Identity struct {
	ARN     string
	UserID  string
	Account string
}

// RoleDescriptor describes one discoverable assumable role.
type RoleDescriptor struct {
	Name               string
	Arn                string
	MaxSessionDuration int32
	TrustPolicy        string
	Tags               map[string]string
}

// AssumeRoleInput carries the parameters of one assumption call.
type AssumeRoleInput struct {
	RoleArn         string
	SessionName     string
	DurationSeconds int32
	Tags            map[string]string
}

// IdentityService is the narrow boundary to the identity provider.
// Implemented once against STS/IAM and once as a test double.
type IdentityService interface {
	// Validate resolves the identity behind a credential set.
	Validate(ctx context.Context, creds Credentials) (Identity, error)
	// ListRoles returns all discoverable assumable roles.
	ListRoles(ctx context.Context) ([]RoleDescriptor, error)
	// GetRole returns a single role by name.
	GetRole(ctx context.Context, name string) (RoleDescriptor, error)
	// AssumeRole exchanges current credentials for temporary role credentials.
	AssumeRole(ctx context.Context, in AssumeRoleInput) (Credentials, error)
}
