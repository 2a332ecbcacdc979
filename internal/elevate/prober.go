package elevate

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/no-wing/no-wing/internal/awsx"
	"github.com/no-wing/no-wing/internal/clientcache"
	"github.com/no-wing/no-wing/internal/credential"
)

// IAMProber checks permissions with IAM policy simulation against the
// active identity. Cheap and side-effect free: the least-privilege probe
// the direct check and degraded strategies run on.
type IAMProber struct {
	store *credential.Store
	cache *clientcache.Cache
}

// NewIAMProber builds a prober over the context store and client cache.
func NewIAMProber(store *credential.Store, cache *clientcache.Cache) *IAMProber {
	return &IAMProber{store: store, cache: cache}
}

// Allowed simulates the actions for the active identity and reports whether
// every decision came back allowed.
func (p *IAMProber) Allowed(ctx context.Context, actions, resources []string) (bool, error) {
	active := p.store.Current()
	if active == nil {
		return false, fmt.Errorf("%w: no active context", credential.ErrCredentialUnavailable)
	}

	handle, err := p.cache.GetClient(ctx, "iam", nil)
	if err != nil {
		return false, err
	}
	client := handle.IAM()

	input := &iam.SimulatePrincipalPolicyInput{
		PolicySourceArn: aws.String(active.Identity.ARN),
		ActionNames:     actions,
	}
	if len(resources) > 0 {
		input.ResourceArns = resources
	}

	out, err := awsx.Retry(ctx, func(ctx context.Context) (*iam.SimulatePrincipalPolicyOutput, error) {
		return client.SimulatePrincipalPolicy(ctx, input)
	})
	if err != nil {
		return false, err
	}

	for _, r := range out.EvaluationResults {
		if r.EvalDecision != "allowed" {
			return false, nil
		}
	}
	return len(out.EvaluationResults) > 0, nil
}
