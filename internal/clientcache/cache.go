package clientcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/no-wing/no-wing/internal/awsx"
	"github.com/no-wing/no-wing/internal/credential"
)

var (
	// ErrUnsupportedService is returned for unknown service identifiers.
	ErrUnsupportedService = errors.New("unsupported service")
	// ErrClientValidationFailed means a cached client failed its liveness
	// probe and a replacement could not be built.
	ErrClientValidationFailed = errors.New("client validation failed")
)

// Config carries per-call overrides for client construction.
type Config struct {
	Region string
}

// Handle is one cached per-service client. Client holds the concrete SDK
// client; use the typed accessors.
type Handle struct {
	Service   string
	Kind      credential.Kind
	Region    string
	Client    any
	CreatedAt time.Time
}

// STS returns the underlying STS client, or nil for other services.
func (h *Handle) STS() *sts.Client { c, _ := h.Client.(*sts.Client); return c }

// IAM returns the underlying IAM client, or nil for other services.
func (h *Handle) IAM() *iam.Client { c, _ := h.Client.(*iam.Client); return c }

// S3 returns the underlying S3 client, or nil for other services.
func (h *Handle) S3() *s3.Client { c, _ := h.Client.(*s3.Client); return c }

type entry struct {
	handle *Handle
	probe  func(ctx context.Context) error
}

// builder constructs a service client and its liveness probe from an
// aws.Config. Swappable so tests can avoid real SDK calls.
type builder func(cfg aws.Config) (any, func(ctx context.Context) error, error)

// Cache caches per-service clients keyed by (service, context kind, region)
// and guarantees they always reflect the active identity.
type Cache struct {
	store  *credential.Store
	region string

	mu      sync.Mutex
	entries map[string]*entry

	// switchMu serializes scoped context switches; concurrent elevation
	// attempts under different contexts must not interleave.
	switchMu sync.Mutex

	builders map[string]builder
}

// New builds a cache over the given context store and default region.
func New(store *credential.Store, region string) *Cache {
	c := &Cache{
		store:   store,
		region:  region,
		entries: make(map[string]*entry),
	}
	c.builders = map[string]builder{
		"sts": func(cfg aws.Config) (any, func(ctx context.Context) error, error) {
			client := sts.NewFromConfig(cfg)
			return client, func(ctx context.Context) error {
				_, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
				return err
			}, nil
		},
		"iam": func(cfg aws.Config) (any, func(ctx context.Context) error, error) {
			client := iam.NewFromConfig(cfg)
			return client, func(ctx context.Context) error {
				_, err := client.ListRoles(ctx, &iam.ListRolesInput{MaxItems: aws.Int32(1)})
				return err
			}, nil
		},
		"s3": func(cfg aws.Config) (any, func(ctx context.Context) error, error) {
			client := s3.NewFromConfig(cfg)
			return client, func(ctx context.Context) error {
				_, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
				return err
			}, nil
		},
	}
	return c
}

// GetClient returns a live client for the service under the active context.
// Cache hits are probed before reuse; a failed probe evicts the handle and
// forces synchronous recreation.
func (c *Cache) GetClient(ctx context.Context, service string, cfg *Config) (*Handle, error) {
	build, ok := c.builders[service]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedService, service)
	}

	active := c.store.Current()
	if active == nil {
		return nil, fmt.Errorf("%w: no active context", credential.ErrCredentialUnavailable)
	}

	region := c.region
	if cfg != nil && cfg.Region != "" {
		region = cfg.Region
	}
	key := fmt.Sprintf("%s|%s|%s", service, active.Kind, region)

	c.mu.Lock()
	cached, hit := c.entries[key]
	c.mu.Unlock()

	if hit {
		if err := cached.probe(ctx); err == nil {
			return cached.handle, nil
		}
		// Probe failed: the handle is never served again.
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()

		handle, err := c.create(ctx, key, service, region, active.Kind, build)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrClientValidationFailed, service, err)
		}
		return handle, nil
	}

	return c.create(ctx, key, service, region, active.Kind, build)
}

func (c *Cache) create(ctx context.Context, key, service, region string, kind credential.Kind, build builder) (*Handle, error) {
	creds, err := c.store.CurrentCredentials()
	if err != nil {
		return nil, err
	}
	awsCfg, err := awsx.StaticConfig(ctx, creds, region)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	client, probe, err := build(awsCfg)
	if err != nil {
		return nil, err
	}

	handle := &Handle{
		Service:   service,
		Kind:      kind,
		Region:    region,
		Client:    client,
		CreatedAt: time.Now(),
	}

	c.mu.Lock()
	c.entries[key] = &entry{handle: handle, probe: probe}
	c.mu.Unlock()
	return handle, nil
}

// ClearCache drops all entries. Must be invoked after every identity
// switch, or stale-context clients survive until lazily evicted.
func (c *Cache) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Size returns the number of cached handles.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// WithContext runs fn under the given identity context and then restores
// the prior context, clearing the cache on both transitions. The restore
// and both clears run on every exit path, including fn errors; this is the
// guarantee that no context leaks across a scoped call. A failed restore
// leaves the scoped context active, so its error joins fn's.
func WithContext[T any](ctx context.Context, c *Cache, kind credential.Kind, fn func(context.Context) (T, error)) (out T, err error) {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	prior := c.store.Current()

	if _, serr := c.store.SwitchTo(ctx, kind); serr != nil {
		return out, serr
	}
	c.ClearCache()

	defer func() {
		if prior != nil {
			// Restore uses a fresh context: the caller's may already be
			// cancelled, and the restore must still happen.
			restoreCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, rerr := c.store.SwitchTo(restoreCtx, prior.Kind); rerr != nil {
				err = errors.Join(err, fmt.Errorf("restore %s context: %w", prior.Kind, rerr))
			}
		}
		c.ClearCache()
	}()

	return fn(ctx)
}
