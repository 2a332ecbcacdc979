package elevate

import (
	"fmt"
	"strings"

	"github.com/no-wing/no-wing/internal/operation"
	"github.com/no-wing/no-wing/internal/role"
)

// Method identifies which elevation path produced a result.
type Method string

const (
	MethodDirect            Method = "direct"
	MethodRoleAssumption    Method = "role-assumption"
	MethodDegraded          Method = "degraded"
	MethodPermissionRequest Method = "permission-request"
)

// Result is the outcome of one elevation attempt. Returned, never stored.
//
// A permission-request result has Success=true: a pending human-approvable
// request is a resolved outcome of the chain, not a failure.
type Result struct {
	Success      bool
	Method       Method
	Strategy     string // degraded strategy that succeeded, if any
	Message      string
	Session      *role.Session
	Alternatives []string
	RequestID    string
}

// RequiredActions derives the IAM action set an operation needs.
// Explicit actions can ride in on the "actions" tag (comma-separated);
// otherwise the action is synthesized from service and operation.
func RequiredActions(op operation.Context) []string {
	if raw, ok := op.Tags["actions"]; ok && raw != "" {
		parts := strings.Split(raw, ",")
		actions := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				actions = append(actions, p)
			}
		}
		if len(actions) > 0 {
			return actions
		}
	}
	return []string{fmt.Sprintf("%s:%s", op.Service, camel(op.Operation))}
}

// ReadOnlyActions returns the read-only probe set for a service.
func ReadOnlyActions(service string) []string {
	return []string{
		service + ":Get*",
		service + ":List*",
		service + ":Describe*",
	}
}

func camel(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
