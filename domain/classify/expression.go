package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"whalefall/domain/dbaccount"
)

// RuleExpression is the structured predicate a classification rule evaluates
// against an account's permission facts. Clauses combine with AND; the
// membership lists within a clause combine with OR. An expression with no
// clauses at all is malformed: a rule that matches everything is almost
// certainly a data-entry mistake, so it is rejected rather than applied.
type RuleExpression struct {
	AnyCapability    []string                     `json:"any_capability,omitempty"`
	AllCapabilities  []string                     `json:"all_capabilities,omitempty"`
	AnyRole          []string                     `json:"any_role,omitempty"`
	AnyPrivilege     map[dbaccount.Scope][]string `json:"any_privilege,omitempty"`
	IsSuperuser      *bool                        `json:"is_superuser,omitempty"`
	IsLocked         *bool                        `json:"is_locked,omitempty"`
	UsernameContains string                       `json:"username_contains,omitempty"`
}

// ErrEmptyExpression marks an expression with no predicate clauses.
var ErrEmptyExpression = errors.New("rule expression has no predicate clauses")

// ParseExpression decodes a rule's expression JSON and validates it has at
// least one clause.
func ParseExpression(raw string) (*RuleExpression, error) {
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.DisallowUnknownFields()

	var expr RuleExpression
	if err := decoder.Decode(&expr); err != nil {
		return nil, fmt.Errorf("invalid rule expression: %w", err)
	}
	if expr.isEmpty() {
		return nil, ErrEmptyExpression
	}
	return &expr, nil
}

func (e *RuleExpression) isEmpty() bool {
	return len(e.AnyCapability) == 0 &&
		len(e.AllCapabilities) == 0 &&
		len(e.AnyRole) == 0 &&
		len(e.AnyPrivilege) == 0 &&
		e.IsSuperuser == nil &&
		e.IsLocked == nil &&
		e.UsernameContains == ""
}

// Matches evaluates the predicate against an account and its facts. The
// returned rationale names each satisfied clause so an assignment can explain
// itself, mirroring the provenance reasons carried by the facts.
func (e *RuleExpression) Matches(account *dbaccount.Account, facts *dbaccount.PermissionFacts) (bool, string) {
	var satisfied []string

	if len(e.AnyCapability) > 0 {
		matched := ""
		for _, capability := range e.AnyCapability {
			if facts.HasCapability(capability) {
				matched = capability
				break
			}
		}
		if matched == "" {
			return false, ""
		}
		satisfied = append(satisfied, fmt.Sprintf("capability %s", matched))
	}

	for _, capability := range e.AllCapabilities {
		if !facts.HasCapability(capability) {
			return false, ""
		}
	}
	if len(e.AllCapabilities) > 0 {
		satisfied = append(satisfied, fmt.Sprintf("capabilities %s", strings.Join(e.AllCapabilities, "+")))
	}

	if len(e.AnyRole) > 0 {
		matched := ""
		for _, role := range e.AnyRole {
			if facts.HasRole(role) {
				matched = role
				break
			}
		}
		if matched == "" {
			return false, ""
		}
		satisfied = append(satisfied, fmt.Sprintf("role %s", matched))
	}

	if len(e.AnyPrivilege) > 0 {
		matched := ""
		for scope, privileges := range e.AnyPrivilege {
			for _, privilege := range privileges {
				if facts.HasPrivilege(scope, privilege) {
					matched = fmt.Sprintf("%s privilege %s", scope, privilege)
					break
				}
			}
			if matched != "" {
				break
			}
		}
		if matched == "" {
			return false, ""
		}
		satisfied = append(satisfied, matched)
	}

	if e.IsSuperuser != nil {
		if facts.IsSuperuser != *e.IsSuperuser {
			return false, ""
		}
		satisfied = append(satisfied, fmt.Sprintf("is_superuser=%t", facts.IsSuperuser))
	}

	if e.IsLocked != nil {
		if facts.IsLocked != *e.IsLocked {
			return false, ""
		}
		satisfied = append(satisfied, fmt.Sprintf("is_locked=%t", facts.IsLocked))
	}

	if e.UsernameContains != "" {
		if !strings.Contains(strings.ToLower(account.Username), strings.ToLower(e.UsernameContains)) {
			return false, ""
		}
		satisfied = append(satisfied, fmt.Sprintf("username contains %q", e.UsernameContains))
	}

	return true, strings.Join(satisfied, "; ")
}
