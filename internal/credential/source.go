package credential

import (
	"context"
	"fmt"

	"github.com/no-wing/no-wing/internal/awsx"
)

// ProfileSource loads long-lived credentials from shared-config profiles,
// one profile per identity kind.
type ProfileSource struct {
	region   string
	profiles map[Kind]string
}

// NewProfileSource maps identity kinds to AWS profiles.
func NewProfileSource(region string, profiles map[Kind]string) *ProfileSource {
	return &ProfileSource{region: region, profiles: profiles}
}

// Load resolves the profile configured for kind and retrieves its
// credentials.
func (s *ProfileSource) Load(ctx context.Context, kind Kind) (awsx.Credentials, error) {
	profile, ok := s.profiles[kind]
	if !ok || profile == "" {
		return awsx.Credentials{}, fmt.Errorf("no profile configured for %s", kind)
	}

	cfg, err := awsx.ProfileConfig(ctx, profile, s.region)
	if err != nil {
		return awsx.Credentials{}, fmt.Errorf("load profile %s: %w", profile, err)
	}

	raw, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return awsx.Credentials{}, fmt.Errorf("retrieve credentials for %s: %w", profile, err)
	}

	creds := awsx.Credentials{
		AccessKey:    raw.AccessKeyID,
		SecretKey:    raw.SecretAccessKey,
		SessionToken: raw.SessionToken,
	}
	if raw.CanExpire {
		creds.Expiration = raw.Expires
	}
	return creds, nil
}

// StaticSource serves fixed credential sets, mainly for tests and for
// environments that inject credentials directly.
type StaticSource map[Kind]awsx.Credentials

func (s StaticSource) Load(_ context.Context, kind Kind) (awsx.Credentials, error) {
	creds, ok := s[kind]
	if !ok {
		return awsx.Credentials{}, fmt.Errorf("no static credentials for %s", kind)
	}
	return creds, nil
}
