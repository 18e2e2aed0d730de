package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// 认证子系统返回的通用错误。
var (
	ErrMissingKey       = errors.New("missing api key")
	ErrInvalidKey       = errors.New("invalid api key")
	ErrPermissionDenied = errors.New("permission denied")
)

// 内置权限。
const (
	PermActionsRead   = "actions:read"
	PermActionsInvoke = "actions:invoke"
	PermTasksRead     = "tasks:read"
	PermTasksWrite    = "tasks:write"
	PermHistoryRead   = "history:read"
	// PermAll 授予全部权限。
	PermAll = "*"
)

// Key 描述一个静态 API Key 及其权限。
type Key struct {
	Name        string
	Secret      string
	Permissions []string
}

// Subject 是通过认证的调用方，会经由 context 传给处理函数。
type Subject struct {
	Name        string
	Permissions []string

	grants map[string]bool
}

func newSubject(name string, permissions []string) *Subject {
	grants := make(map[string]bool, len(permissions))
	for _, p := range permissions {
		if p = canonicalPermission(p); p != "" {
			grants[p] = true
		}
	}
	return &Subject{Name: name, Permissions: slices.Clone(permissions), grants: grants}
}

func canonicalPermission(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

// HasPermission 判断主体是否具备指定权限，PermAll 覆盖一切。
func (s *Subject) HasPermission(permission string) bool {
	if s == nil {
		return false
	}
	return s.grants[PermAll] || s.grants[canonicalPermission(permission)]
}

// Authorize 返回第一个缺失的权限对应的错误。
func (s *Subject) Authorize(perms ...string) error {
	if s == nil {
		return ErrInvalidKey
	}
	for _, perm := range perms {
		if perm != "" && !s.HasPermission(perm) {
			return fmt.Errorf("%w: missing %s", ErrPermissionDenied, perm)
		}
	}
	return nil
}
