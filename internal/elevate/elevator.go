package elevate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/no-wing/no-wing/internal/audit"
	"github.com/no-wing/no-wing/internal/operation"
	"github.com/no-wing/no-wing/internal/role"
)

// ErrElevationExhausted marks results where every automatic strategy failed
// and a manual request was created. Attached to the result message, not
// returned as an error: the deferred outcome is still a resolution.
var ErrElevationExhausted = errors.New("all elevation strategies exhausted")

// Learned is the per-(operation, service) record of the last method that
// succeeded.
type Learned struct {
	Method   Method
	Strategy string // set when Method is degraded
}

// RoleAssumer is the role manager surface the elevator depends on.
type RoleAssumer interface {
	AssumeRoleForOperation(ctx context.Context, op operation.Context, roleArnOverride string) (*role.Session, error)
}

// Elevator walks the ordered elevation chain for one operation:
// direct check, role assumption, degraded strategies, manual request.
// The chain is a state machine per attempt; the elevator itself only keeps
// the learning map and the request store.
type Elevator struct {
	prober     Prober
	roles      RoleAssumer
	requests   *RequestStore
	strategies map[string]Strategy
	chains     func(service string) []string
	sink       audit.Sink

	mu      sync.Mutex
	learned map[string]Learned
}

// New builds an elevator. chains maps a service to its degraded-strategy
// names (config.StrategiesFor). A nil sink disables audit notification.
func New(prober Prober, roles RoleAssumer, requests *RequestStore, chains func(string) []string, sink audit.Sink) *Elevator {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Elevator{
		prober:     prober,
		roles:      roles,
		requests:   requests,
		strategies: buildStrategies(prober),
		chains:     chains,
		sink:       sink,
		learned:    make(map[string]Learned),
	}
}

func learnKey(op operation.Context) string {
	return op.Operation + "/" + op.Service
}

// ElevatePermissions runs the chain. Strategy-level failures are absorbed;
// the only hard failure is a malformed operation context.
func (e *Elevator) ElevatePermissions(ctx context.Context, op operation.Context) (*Result, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}

	// DirectCheck: do current credentials already satisfy the operation?
	allowed, err := e.prober.Allowed(ctx, RequiredActions(op), op.Resources)
	if err == nil && allowed {
		res := &Result{
			Success: true,
			Method:  MethodDirect,
			Message: fmt.Sprintf("current credentials satisfy %s on %s", op.Operation, op.Service),
		}
		e.finish(op, res)
		return res, nil
	}

	// RoleAssumption: borrow a purpose-built role.
	session, err := e.roles.AssumeRoleForOperation(ctx, op, "")
	if err == nil && session != nil {
		res := &Result{
			Success: true,
			Method:  MethodRoleAssumption,
			Message: fmt.Sprintf("assumed %s for %s", session.RoleArn, op.Operation),
			Session: session,
		}
		e.finish(op, res)
		return res, nil
	}
	// RoleNotFound and AssumeRoleDenied are expected here; anything else
	// from the role layer is a converted network failure. All continue the
	// chain.

	// Degraded: walk the operation's configured fallback strategies.
	for _, name := range e.degradedChain(op) {
		strategy, ok := e.strategies[name]
		if !ok {
			continue
		}
		res, err := strategy.Run(ctx, op)
		if err != nil {
			// Strategy failure is non-fatal; advance.
			continue
		}
		e.finish(op, res)
		return res, nil
	}

	// ManualRequest: durable human-in-the-loop fallback. Deferred, not
	// failed.
	return e.manualRequest(op)
}

// degradedChain returns the configured strategy names for the operation's
// service, with the learned strategy (if any) tried first. The hint biases
// order only; every strategy still runs if the hinted one fails.
func (e *Elevator) degradedChain(op operation.Context) []string {
	chain := make([]string, 0, 4)
	for _, name := range e.chains(op.Service) {
		if name != StrategyManual {
			chain = append(chain, name)
		}
	}

	e.mu.Lock()
	hint, ok := e.learned[learnKey(op)]
	e.mu.Unlock()
	if !ok || hint.Method != MethodDegraded || hint.Strategy == "" {
		return chain
	}

	reordered := make([]string, 0, len(chain))
	for _, name := range chain {
		if name == hint.Strategy {
			reordered = append([]string{name}, reordered...)
		} else {
			reordered = append(reordered, name)
		}
	}
	return reordered
}

func (e *Elevator) manualRequest(op operation.Context) (*Result, error) {
	actions := RequiredActions(op)
	justification := fmt.Sprintf(
		"agent requires %s on %s to run %q; direct check, role assumption, and degraded strategies were exhausted",
		strings.Join(actions, ", "), op.Service, op.Operation)

	req, err := e.requests.Create(op.Operation, op.Service, actions, op.Resources, justification)
	if err != nil {
		return nil, fmt.Errorf("%w: creating manual request: %v", ErrElevationExhausted, err)
	}

	res := &Result{
		Success:   true,
		Method:    MethodPermissionRequest,
		Message:   fmt.Sprintf("permission request %s created; approve with: no-wing requests approve %s", req.ID, req.ID),
		RequestID: req.ID,
	}
	e.sink.Notify(audit.Event{
		Event:     audit.EventElevation,
		Operation: op.Operation,
		Service:   op.Service,
		Method:    string(MethodPermissionRequest),
		Detail:    req.ID,
	})
	return res, nil
}

// finish records success in the learning map and notifies the audit sink.
func (e *Elevator) finish(op operation.Context, res *Result) {
	e.LearnFromSuccess(op, res.Method, res.Strategy)
	e.sink.Notify(audit.Event{
		Event:     audit.EventElevation,
		Operation: op.Operation,
		Service:   op.Service,
		Method:    string(res.Method),
		Detail:    res.Strategy,
	})
}

// LearnFromSuccess records the method that satisfied the operation type.
func (e *Elevator) LearnFromSuccess(op operation.Context, method Method, strategy string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.learned[learnKey(op)] = Learned{Method: method, Strategy: strategy}
}

// GetLearnedPatterns returns the last successful method for the operation
// type, if any.
func (e *Elevator) GetLearnedPatterns(op operation.Context) (Learned, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.learned[learnKey(op)]
	return l, ok
}

// Requests exposes the underlying request store.
func (e *Elevator) Requests() *RequestStore {
	return e.requests
}

// GetPermissionRequest looks up a request by id.
func (e *Elevator) GetPermissionRequest(id string) (*Request, error) {
	return e.requests.Get(id)
}

// ApprovePermissionRequest transitions a pending request to approved.
// Returns false (with no side effects) for unknown or non-pending ids.
func (e *Elevator) ApprovePermissionRequest(id, approver string) (bool, error) {
	if err := e.requests.Approve(id, approver); err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return false, err
		}
		return false, err
	}
	return true, nil
}

// CleanupExpiredRequests expires pending requests past their deadline.
func (e *Elevator) CleanupExpiredRequests() (int, error) {
	return e.requests.CleanupExpired()
}
