package elevate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/no-wing/no-wing/internal/operation"
)

// Prober performs the lightweight permission checks behind the direct check
// and the degraded strategies. Implemented against IAM policy simulation
// and as a test double.
type Prober interface {
	// Allowed reports whether the active identity may perform every action
	// on the given resources.
	Allowed(ctx context.Context, actions, resources []string) (bool, error)
}

// errNotApplicable marks a strategy that does not apply to the operation;
// the dispatcher advances to the next one silently.
var errNotApplicable = errors.New("strategy not applicable")

// Strategy is one entry in the ordered degradation chain: a name matching
// the config vocabulary and a pure run function.
type Strategy struct {
	Name string
	Run  func(ctx context.Context, op operation.Context) (*Result, error)
}

// Strategy name constants, matching config.
const (
	StrategyReadOnly = "read-only-validation"
	StrategyDryRun   = "dry-run"
	StrategyStaged   = "staged-deployment"
	StrategyManual   = "manual-approval"
)

// buildStrategies assembles the degraded chain implementations over a
// prober. Manual approval is not in this list; the elevator always runs it
// last as the ManualRequest state.
//
// Every strategy here probes something the direct check did not, so each
// can still succeed once the full (all actions, all resources) probe has
// failed: read-only narrows to the read projection, dry-run narrows the
// resource axis, staged narrows the action axis.
func buildStrategies(prober Prober) map[string]Strategy {
	return map[string]Strategy{
		StrategyReadOnly: {
			Name: StrategyReadOnly,
			Run: func(ctx context.Context, op operation.Context) (*Result, error) {
				allowed, err := prober.Allowed(ctx, ReadOnlyActions(op.Service), op.Resources)
				if err != nil || !allowed {
					return nil, errNotApplicable
				}
				return &Result{
					Success:  true,
					Method:   MethodDegraded,
					Strategy: StrategyReadOnly,
					Message:  fmt.Sprintf("read-only access to %s verified; full %s deferred", op.Service, op.Operation),
					Alternatives: []string{
						fmt.Sprintf("request %s via: no-wing requests list", strActions(op)),
					},
				}, nil
			},
		},
		StrategyDryRun: {
			Name: StrategyDryRun,
			Run: func(ctx context.Context, op operation.Context) (*Result, error) {
				// Needs at least two targets: probing the single resource the
				// direct check already covered cannot yield a new answer.
				if len(op.Resources) < 2 {
					return nil, errNotApplicable
				}
				actions := RequiredActions(op)
				for i, res := range op.Resources {
					allowed, err := prober.Allowed(ctx, actions, []string{res})
					if err != nil || !allowed {
						continue
					}
					deferred := make([]string, 0, len(op.Resources)-1)
					deferred = append(deferred, op.Resources[:i]...)
					deferred = append(deferred, op.Resources[i+1:]...)
					return &Result{
						Success:  true,
						Method:   MethodDegraded,
						Strategy: StrategyDryRun,
						Message:  fmt.Sprintf("dry-run of %s verified against %s", op.Operation, res),
						Alternatives: []string{
							fmt.Sprintf("deferred targets: %s", strings.Join(deferred, ", ")),
						},
					}, nil
				}
				return nil, errNotApplicable
			},
		},
		StrategyStaged: {
			Name: StrategyStaged,
			Run: func(ctx context.Context, op operation.Context) (*Result, error) {
				// Staging is meaningless for a single-action operation.
				actions := RequiredActions(op)
				if len(actions) < 2 {
					return nil, errNotApplicable
				}
				phase := actions[:1]
				allowed, err := prober.Allowed(ctx, phase, op.Resources)
				if err != nil || !allowed {
					return nil, errNotApplicable
				}
				return &Result{
					Success:  true,
					Method:   MethodDegraded,
					Strategy: StrategyStaged,
					Message:  fmt.Sprintf("staged %s prepared: phase 1 of %d (%s) verified", op.Operation, len(actions), phase[0]),
					Alternatives: []string{
						fmt.Sprintf("remaining phases: %s", strings.Join(actions[1:], ", ")),
					},
				}, nil
			},
		},
	}
}

func strActions(op operation.Context) string {
	actions := RequiredActions(op)
	if len(actions) == 1 {
		return actions[0]
	}
	return fmt.Sprintf("%d actions", len(actions))
}
