package models

import (
	"fmt"
	"strings"
)

// Role is a member role attribute as published by the identity service.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleLead    Role = "lead"
	RoleMember  Role = "member"
	RoleUnknown Role = "unknown"
)

// Action is an operation subject to role-based authorization.
type Action string

const (
	ActionCreatePost Action = "create_post"
	ActionEditHours  Action = "edit_hours"
	ActionViewHours  Action = "view_hours"
)

var validRoles = map[Role]struct{}{
	RoleAdmin:  {},
	RoleLead:   {},
	RoleMember: {},
}

var privilegedRoles = map[Role]struct{}{
	RoleAdmin: {},
	RoleLead:  {},
}

var validActions = map[Action]struct{}{
	ActionCreatePost: {},
	ActionEditHours:  {},
	ActionViewHours:  {},
}

// ParseRole maps a raw role attribute onto the closed role set.
// Absent, malformed, or unrecognised values become RoleUnknown.
func ParseRole(raw any) Role {
	value, ok := raw.(string)
	if !ok {
		return RoleUnknown
	}
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := validRoles[role]; !ok {
		return RoleUnknown
	}
	return role
}

// IsPrivileged reports whether role is admin or lead.
func (r Role) IsPrivileged() bool {
	_, ok := privilegedRoles[r]
	return ok
}

// String returns the display form, "N/A" for unknown roles.
func (r Role) String() string {
	if r == "" || r == RoleUnknown {
		return "N/A"
	}
	return string(r)
}

func ParseAction(raw string) (Action, error) {
	value := Action(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("action is required")
	}
	if _, ok := validActions[value]; !ok {
		return "", fmt.Errorf("invalid action: %s", value)
	}
	return value, nil
}

// Authorize decides whether role may perform action.
func Authorize(role Role, action Action) bool {
	if _, ok := validActions[action]; !ok {
		return false
	}
	return role.IsPrivileged()
}
