package elevate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/no-wing/no-wing/internal/awsx"
	"github.com/no-wing/no-wing/internal/operation"
	"github.com/no-wing/no-wing/internal/role"
)

// fakeProber answers Allowed by matching the first action against
// configured prefixes (or an arbitrary predicate), and records every probe
// for order assertions.
type fakeProber struct {
	allowPrefixes []string
	allow         func(actions, resources []string) bool
	err           error
	calls         []string
}

func (f *fakeProber) Allowed(_ context.Context, actions, resources []string) (bool, error) {
	f.calls = append(f.calls, strings.Join(actions, ","))
	if f.err != nil {
		return false, f.err
	}
	if f.allow != nil {
		return f.allow(actions, resources), nil
	}
	for _, p := range f.allowPrefixes {
		if strings.HasPrefix(actions[0], p) {
			return true, nil
		}
	}
	return false, nil
}

type fakeAssumer struct {
	session *role.Session
	err     error
	calls   int
}

func (f *fakeAssumer) AssumeRoleForOperation(context.Context, operation.Context, string) (*role.Session, error) {
	f.calls++
	return f.session, f.err
}

func defaultChains(service string) []string {
	if service == "deployment" {
		return []string{StrategyReadOnly, StrategyDryRun, StrategyStaged, StrategyManual}
	}
	return []string{StrategyReadOnly, StrategyDryRun, StrategyManual}
}

func newTestElevator(t *testing.T, prober Prober, assumer RoleAssumer) *Elevator {
	t.Helper()
	store, err := NewRequestStore("", 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return New(prober, assumer, store, defaultChains, nil)
}

func deployOp() operation.Context {
	return operation.Context{Operation: "deploy", Service: "deployment"}
}

func TestDirectCheckWinsFirst(t *testing.T) {
	prober := &fakeProber{allowPrefixes: []string{"deployment:"}}
	assumer := &fakeAssumer{err: role.ErrRoleNotFound}
	e := newTestElevator(t, prober, assumer)

	res, err := e.ElevatePermissions(context.Background(), deployOp())
	if err != nil {
		t.Fatalf("ElevatePermissions failed: %v", err)
	}
	if !res.Success || res.Method != MethodDirect {
		t.Errorf("result = %+v, want direct success", res)
	}
	if assumer.calls != 0 {
		t.Error("no later strategy may run once direct succeeds")
	}
}

func TestRoleAssumptionSecond(t *testing.T) {
	prober := &fakeProber{} // direct check denied
	session := &role.Session{
		RoleArn:     "arn:aws:iam::123:role/no-wing-deploy-prod",
		Credentials: awsx.Credentials{AccessKey: "ASIA1"},
		Expiration:  time.Now().Add(time.Hour),
	}
	assumer := &fakeAssumer{session: session}
	e := newTestElevator(t, prober, assumer)

	res, err := e.ElevatePermissions(context.Background(), deployOp())
	if err != nil {
		t.Fatalf("ElevatePermissions failed: %v", err)
	}
	if res.Method != MethodRoleAssumption {
		t.Errorf("Method = %s, want role-assumption", res.Method)
	}
	if res.Session == nil || res.Session.RoleArn != session.RoleArn {
		t.Error("session info must ride on the result")
	}
	if len(prober.calls) != 1 {
		t.Errorf("degraded strategies ran after role success: %v", prober.calls)
	}
}

func TestDegradedChainThird(t *testing.T) {
	// Direct check sees the write action and denies; read-only probes pass.
	prober := &fakeProber{allowPrefixes: []string{"deployment:Get"}}
	assumer := &fakeAssumer{err: role.ErrRoleNotFound}
	e := newTestElevator(t, prober, assumer)

	res, err := e.ElevatePermissions(context.Background(), deployOp())
	if err != nil {
		t.Fatalf("ElevatePermissions failed: %v", err)
	}
	if res.Method != MethodDegraded || res.Strategy != StrategyReadOnly {
		t.Errorf("result = %+v, want degraded/read-only-validation", res)
	}
}

func TestManualRequestLast(t *testing.T) {
	prober := &fakeProber{} // everything denied
	assumer := &fakeAssumer{err: role.ErrRoleNotFound}
	e := newTestElevator(t, prober, assumer)

	res, err := e.ElevatePermissions(context.Background(), deployOp())
	if err != nil {
		t.Fatalf("ElevatePermissions failed: %v", err)
	}

	// Deferred, not failed: the request is the resolution.
	if !res.Success || res.Method != MethodPermissionRequest {
		t.Errorf("result = %+v, want deferred permission-request", res)
	}
	if res.RequestID == "" {
		t.Fatal("result must carry the request id")
	}

	req, err := e.GetPermissionRequest(res.RequestID)
	if err != nil {
		t.Fatalf("GetPermissionRequest failed: %v", err)
	}
	if req.Status != StatusPending {
		t.Errorf("Status = %s, want pending", req.Status)
	}
	if req.Justification == "" {
		t.Error("justification must be generated")
	}
}

func TestStrategyOrderIsStrict(t *testing.T) {
	prober := &fakeProber{}
	assumer := &fakeAssumer{err: role.ErrRoleNotFound}
	e := newTestElevator(t, prober, assumer)

	e.ElevatePermissions(context.Background(), deployOp())

	// Probe order: direct (write actions), then read-only. A single-action
	// operation with no resources gives dry-run and staged nothing to
	// narrow, so neither issues a probe.
	want := []string{
		"deployment:Deploy",
		"deployment:Get*,deployment:List*,deployment:Describe*",
	}
	if len(prober.calls) != len(want) {
		t.Fatalf("calls = %v, want exactly %d probes", prober.calls, len(want))
	}
	for i, w := range want {
		if prober.calls[i] != w {
			t.Errorf("call %d = %q, want %q", i, prober.calls[i], w)
		}
	}
}

func TestDryRunSucceedsAfterDirectCheckFails(t *testing.T) {
	// Permission exists for one of the two targets only: the direct check
	// (all resources at once) fails, the per-resource dry-run succeeds.
	granted := "arn:aws:s3:::staging-bucket"
	prober := &fakeProber{allow: func(actions, resources []string) bool {
		return len(resources) == 1 && resources[0] == granted
	}}
	e := newTestElevator(t, prober, &fakeAssumer{err: role.ErrRoleNotFound})

	op := operation.Context{
		Operation: "deploy",
		Service:   "deployment",
		Resources: []string{"arn:aws:s3:::prod-bucket", granted},
	}
	res, err := e.ElevatePermissions(context.Background(), op)
	if err != nil {
		t.Fatalf("ElevatePermissions failed: %v", err)
	}
	if res.Method != MethodDegraded || res.Strategy != StrategyDryRun {
		t.Fatalf("result = %+v, want degraded/dry-run", res)
	}
	if !strings.Contains(res.Message, granted) {
		t.Errorf("Message = %q, want the granted target named", res.Message)
	}
	if len(res.Alternatives) == 0 || !strings.Contains(res.Alternatives[0], "prod-bucket") {
		t.Errorf("Alternatives = %v, want the deferred target listed", res.Alternatives)
	}
}

func TestStagedSucceedsOnFirstPhase(t *testing.T) {
	// Only the first of the operation's actions is granted: the direct
	// check (all actions) fails, the staged first-phase probe succeeds.
	prober := &fakeProber{allow: func(actions, resources []string) bool {
		return len(actions) == 1 && actions[0] == "cloudformation:CreateChangeSet"
	}}
	e := newTestElevator(t, prober, &fakeAssumer{err: role.ErrRoleNotFound})

	op := operation.Context{
		Operation: "deploy",
		Service:   "deployment",
		Resources: []string{"arn:aws:cloudformation:us-east-1:123:stack/app/*"},
		Tags:      map[string]string{"actions": "cloudformation:CreateChangeSet,cloudformation:ExecuteChangeSet"},
	}
	res, err := e.ElevatePermissions(context.Background(), op)
	if err != nil {
		t.Fatalf("ElevatePermissions failed: %v", err)
	}
	if res.Method != MethodDegraded || res.Strategy != StrategyStaged {
		t.Fatalf("result = %+v, want degraded/staged-deployment", res)
	}
	if !strings.Contains(res.Message, "CreateChangeSet") {
		t.Errorf("Message = %q, want the verified phase named", res.Message)
	}
	if len(res.Alternatives) == 0 || !strings.Contains(res.Alternatives[0], "ExecuteChangeSet") {
		t.Errorf("Alternatives = %v, want the remaining phase listed", res.Alternatives)
	}
}

func TestProberErrorsAreAbsorbed(t *testing.T) {
	prober := &fakeProber{err: errors.New("iam unreachable")}
	assumer := &fakeAssumer{err: role.ErrAssumeRoleDenied}
	e := newTestElevator(t, prober, assumer)

	res, err := e.ElevatePermissions(context.Background(), deployOp())
	if err != nil {
		t.Fatalf("network failures must not abort the chain: %v", err)
	}
	if res.Method != MethodPermissionRequest {
		t.Errorf("Method = %s, want permission-request fallback", res.Method)
	}
}

func TestMalformedContextIsHardFailure(t *testing.T) {
	e := newTestElevator(t, &fakeProber{}, &fakeAssumer{})

	if _, err := e.ElevatePermissions(context.Background(), operation.Context{Service: "s3"}); err == nil {
		t.Error("missing operation must be a hard failure")
	}
	if _, err := e.ElevatePermissions(context.Background(), operation.Context{Operation: "read"}); err == nil {
		t.Error("missing service must be a hard failure")
	}
}

func TestLearningRecordsSuccessfulMethod(t *testing.T) {
	prober := &fakeProber{allowPrefixes: []string{"deployment:"}}
	e := newTestElevator(t, prober, &fakeAssumer{err: role.ErrRoleNotFound})

	op := deployOp()
	e.ElevatePermissions(context.Background(), op)

	learned, ok := e.GetLearnedPatterns(op)
	if !ok || learned.Method != MethodDirect {
		t.Errorf("learned = %+v ok=%v, want direct", learned, ok)
	}
}

func TestLearnedStrategyBiasesDegradedOrder(t *testing.T) {
	prober := &fakeProber{}
	e := newTestElevator(t, prober, &fakeAssumer{err: role.ErrRoleNotFound})
	op := deployOp()

	// Pretend dry-run worked last time.
	e.LearnFromSuccess(op, MethodDegraded, StrategyDryRun)

	chain := e.degradedChain(op)
	if chain[0] != StrategyDryRun {
		t.Errorf("chain = %v, want dry-run first", chain)
	}
	// The hint reorders; nothing is dropped.
	if len(chain) != 3 {
		t.Errorf("chain = %v, want all three degraded strategies", chain)
	}
}

func TestApprovePermissionRequestRoundTrip(t *testing.T) {
	prober := &fakeProber{}
	e := newTestElevator(t, prober, &fakeAssumer{err: role.ErrRoleNotFound})

	res, _ := e.ElevatePermissions(context.Background(), deployOp())

	ok, err := e.ApprovePermissionRequest(res.RequestID, "ops@example.com")
	if !ok || err != nil {
		t.Fatalf("approve = %v, %v", ok, err)
	}

	req, _ := e.GetPermissionRequest(res.RequestID)
	if req.Status != StatusApproved || req.ApprovedBy != "ops@example.com" {
		t.Errorf("request = %+v", req)
	}

	// Second approval must fail and change nothing.
	if ok, _ := e.ApprovePermissionRequest(res.RequestID, "intruder"); ok {
		t.Error("approving a non-pending request must fail")
	}
	req, _ = e.GetPermissionRequest(res.RequestID)
	if req.ApprovedBy != "ops@example.com" {
		t.Error("approver overwritten by failed approval")
	}
}

func TestApproveUnknownRequest(t *testing.T) {
	e := newTestElevator(t, &fakeProber{}, &fakeAssumer{})
	if ok, err := e.ApprovePermissionRequest("req-ghost", "ops"); ok || !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("approve unknown = %v, %v", ok, err)
	}
}

func TestRequiredActionsFromTags(t *testing.T) {
	op := operation.Context{
		Operation: "deploy",
		Service:   "deployment",
		Tags:      map[string]string{"actions": "s3:PutObject, cloudformation:CreateStack"},
	}
	actions := RequiredActions(op)
	if len(actions) != 2 || actions[0] != "s3:PutObject" || actions[1] != "cloudformation:CreateStack" {
		t.Errorf("actions = %v", actions)
	}
}

func TestRequiredActionsSynthesized(t *testing.T) {
	actions := RequiredActions(operation.Context{Operation: "deploy", Service: "deployment"})
	if len(actions) != 1 || actions[0] != "deployment:Deploy" {
		t.Errorf("actions = %v", actions)
	}
}
