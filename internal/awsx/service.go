package awsx

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
)

// ConfigFunc supplies an aws.Config built from the currently active
// credentials. Passed in rather than captured so the service always follows
// the active context.
type ConfigFunc func(ctx context.Context) (aws.Config, error)

// Service implements IdentityService against STS and IAM.
type Service struct {
	region string
	cfgFn  ConfigFunc
}

// NewService builds an identity service for the given region.
func NewService(region string, cfgFn ConfigFunc) *Service {
	return &Service{region: region, cfgFn: cfgFn}
}

// StaticConfig builds an aws.Config from an explicit credential set.
func StaticConfig(ctx context.Context, creds Credentials, region string) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKey,
			creds.SecretKey,
			creds.SessionToken,
		)),
	)
}

// ProfileConfig builds an aws.Config from a shared-config profile.
func ProfileConfig(ctx context.Context, profile, region string) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithSharedConfigProfile(profile),
	)
}

// Validate resolves the caller identity for the given credential set.
func (s *Service) Validate(ctx context.Context, creds Credentials) (Identity, error) {
	cfg, err := StaticConfig(ctx, creds, s.region)
	if err != nil {
		return Identity{}, fmt.Errorf("load config: %w", err)
	}

	svc := sts.NewFromConfig(cfg)
	out, err := Retry(ctx, func(ctx context.Context) (*sts.GetCallerIdentityOutput, error) {
		return svc.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	})
	if err != nil {
		return Identity{}, err
	}

	return Identity{
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
		Account: aws.ToString(out.Account),
	}, nil
}

// ListRoles returns all IAM roles visible to the active credentials.
func (s *Service) ListRoles(ctx context.Context) ([]RoleDescriptor, error) {
	cfg, err := s.cfgFn(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	svc := iam.NewFromConfig(cfg)
	var roles []RoleDescriptor

	paginator := iam.NewListRolesPaginator(svc, &iam.ListRolesInput{})
	for paginator.HasMorePages() {
		page, err := Retry(ctx, func(ctx context.Context) (*iam.ListRolesOutput, error) {
			return paginator.NextPage(ctx)
		})
		if err != nil {
			return nil, err
		}
		for _, r := range page.Roles {
			roles = append(roles, describeRole(r))
		}
	}
	return roles, nil
}

// GetRole returns a single role by name.
func (s *Service) GetRole(ctx context.Context, name string) (RoleDescriptor, error) {
	cfg, err := s.cfgFn(ctx)
	if err != nil {
		return RoleDescriptor{}, fmt.Errorf("load config: %w", err)
	}

	svc := iam.NewFromConfig(cfg)
	out, err := Retry(ctx, func(ctx context.Context) (*iam.GetRoleOutput, error) {
		return svc.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
	})
	if err != nil {
		return RoleDescriptor{}, err
	}
	return describeRole(*out.Role), nil
}

// AssumeRole exchanges the active credentials for temporary role credentials.
func (s *Service) AssumeRole(ctx context.Context, in AssumeRoleInput) (Credentials, error) {
	cfg, err := s.cfgFn(ctx)
	if err != nil {
		return Credentials{}, fmt.Errorf("load config: %w", err)
	}

	input := &sts.AssumeRoleInput{
		RoleArn:         aws.String(in.RoleArn),
		RoleSessionName: aws.String(in.SessionName),
		DurationSeconds: aws.Int32(in.DurationSeconds),
	}
	for k, v := range in.Tags {
		input.Tags = append(input.Tags, ststypes.Tag{Key: aws.String(k), Value: aws.String(v)})
	}

	svc := sts.NewFromConfig(cfg)
	out, err := Retry(ctx, func(ctx context.Context) (*sts.AssumeRoleOutput, error) {
		return svc.AssumeRole(ctx, input)
	})
	if err != nil {
		return Credentials{}, err
	}

	return Credentials{
		AccessKey:    aws.ToString(out.Credentials.AccessKeyId),
		SecretKey:    aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken: aws.ToString(out.Credentials.SessionToken),
		Expiration:   aws.ToTime(out.Credentials.Expiration),
	}, nil
}

func describeRole(r iamtypes.Role) RoleDescriptor {
	d := RoleDescriptor{
		Name:               aws.ToString(r.RoleName),
		Arn:                aws.ToString(r.Arn),
		MaxSessionDuration: aws.ToInt32(r.MaxSessionDuration),
	}
	// Trust policies come back URL-encoded from the IAM API.
	if doc := aws.ToString(r.AssumeRolePolicyDocument); doc != "" {
		if decoded, err := url.QueryUnescape(doc); err == nil {
			d.TrustPolicy = decoded
		} else {
			d.TrustPolicy = doc
		}
	}
	if len(r.Tags) > 0 {
		d.Tags = make(map[string]string, len(r.Tags))
		for _, t := range r.Tags {
			d.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
		}
	}
	return d
}
