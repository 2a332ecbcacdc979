// Package app wires the engine together: config, audit sink, context
// store, client cache, role manager, and elevator.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/no-wing/no-wing/internal/audit"
	"github.com/no-wing/no-wing/internal/awsx"
	"github.com/no-wing/no-wing/internal/clientcache"
	"github.com/no-wing/no-wing/internal/config"
	"github.com/no-wing/no-wing/internal/credential"
	"github.com/no-wing/no-wing/internal/elevate"
	"github.com/no-wing/no-wing/internal/operation"
	"github.com/no-wing/no-wing/internal/role"
)

// App holds the assembled engine.
type App struct {
	Config   *config.Config
	Audit    *audit.Log
	Store    *credential.Store
	Cache    *clientcache.Cache
	Roles    *role.Manager
	Elevator *elevate.Elevator
}

// New loads configuration and builds the engine.
func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	dir, err := config.Dir()
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	auditPath := cfg.AuditPath
	if auditPath == "" {
		auditPath = filepath.Join(dir, "audit.jsonl")
	}
	sink, err := audit.Open(auditPath)
	if err != nil {
		return nil, err
	}

	profiles := make(map[credential.Kind]string, len(cfg.Identities))
	for kind, ic := range cfg.Identities {
		profiles[credential.Kind(kind)] = ic.Profile
	}
	source := credential.NewProfileSource(cfg.Region, profiles)

	// The identity service follows the active context: its config function
	// reads whatever credentials are current at call time.
	var store *credential.Store
	identity := awsx.NewService(cfg.Region, func(ctx context.Context) (aws.Config, error) {
		creds, err := store.CurrentCredentials()
		if err != nil {
			return aws.Config{}, err
		}
		return awsx.StaticConfig(ctx, creds, cfg.Region)
	})
	store = credential.NewStore(source, identity, sink)

	cache := clientcache.New(store, cfg.Region)
	roles := role.NewManager(identity, cfg.Patterns, sink)

	storePath := cfg.StorePath
	if storePath == "" {
		storePath = filepath.Join(dir, "requests.json")
	}
	requests, err := elevate.NewRequestStore(storePath, cfg.Requests.TTL)
	if err != nil {
		return nil, err
	}

	prober := elevate.NewIAMProber(store, cache)
	elevator := elevate.New(prober, roles, requests, cfg.StrategiesFor, sink)

	return &App{
		Config:   cfg,
		Audit:    sink,
		Store:    store,
		Cache:    cache,
		Roles:    roles,
		Elevator: elevator,
	}, nil
}

// SwitchTo changes the active identity. The client cache is invalidated
// immediately after every successful switch; that contract lives here, not
// inside the store.
func (a *App) SwitchTo(ctx context.Context, kind credential.Kind) (*credential.Context, error) {
	cc, err := a.Store.SwitchTo(ctx, kind)
	if err != nil {
		return nil, err
	}
	a.Cache.ClearCache()
	return cc, nil
}

// ElevateAsAgent runs one elevation attempt scoped to the agent context.
// The prior context is restored and the cache cleared on every exit path.
func (a *App) ElevateAsAgent(ctx context.Context, op operation.Context) (*elevate.Result, error) {
	return clientcache.WithContext(ctx, a.Cache, credential.KindAgent,
		func(ctx context.Context) (*elevate.Result, error) {
			return a.Elevator.ElevatePermissions(ctx, op)
		})
}

// Close releases the audit log.
func (a *App) Close() error {
	return a.Audit.Close()
}
