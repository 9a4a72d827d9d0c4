package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/model"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/roles"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/scope"
)

// Source identifies where an effective role came from
type Source string

const (
	SourceSystemAdmin Source = "system_admin"
	SourceOrgOwner    Source = "org_owner"
	SourceOrgAdmin    Source = "org_admin"
	SourceExplicit    Source = "explicit"
	SourceNone        Source = "none"
)

// IsInherited reports whether the source grants access without a project membership
func (s Source) IsInherited() bool {
	switch s {
	case SourceSystemAdmin, SourceOrgOwner, SourceOrgAdmin:
		return true
	}
	return false
}

// EffectiveRoleResult is the outcome of resolving a (user, project) pair
type EffectiveRoleResult struct {
	Role             roles.ProjectRole `json:"role"`
	Source           Source            `json:"source"`
	IsInherited      bool              `json:"is_inherited"`
	OrganizationID   string            `json:"organization_id,omitempty"`
	OrganizationRole roles.OrgRole     `json:"organization_role,omitempty"`

	// Scope and ExpiresAt are only set for explicit memberships
	Scope     scope.Scope `json:"scope"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`

	ResolvedAt time.Time `json:"resolved_at"`
}

// HasRole reports whether the result grants any project role
func (r *EffectiveRoleResult) HasRole() bool {
	return r != nil && !r.Role.IsNone()
}

// IsExpiredAt reports whether an explicit grant carried by the result has
// lapsed, which can happen while the result sits in the cache.
func (r *EffectiveRoleResult) IsExpiredAt(now time.Time) bool {
	return r != nil && r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

func (r *EffectiveRoleResult) clone() *EffectiveRoleResult {
	c := *r
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

func noAccess() *EffectiveRoleResult {
	return &EffectiveRoleResult{Role: roles.ProjectRoleNone, Source: SourceNone}
}

// Directory is the read side of the persistence collaborator. Lookups for
// absent rows return an error wrapping model.ErrNotFound.
type Directory interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetProject(ctx context.Context, projectID string) (*model.Project, error)
	GetOrganizationMembership(ctx context.Context, userID, organizationID string) (*model.OrganizationMembership, error)
	GetProjectMembership(ctx context.Context, userID, projectID string) (*model.ProjectMembership, error)
	ListOrganizationMemberIDs(ctx context.Context, organizationID string) ([]string, error)
}

// RoleResolver resolves effective roles
type RoleResolver interface {
	Resolve(ctx context.Context, userID, projectID string) (*EffectiveRoleResult, error)
}

// Invalidator is the narrow hook membership mutations call after committing
type Invalidator interface {
	// InvalidateCache evicts one pair, or every entry of the user when projectID is empty
	InvalidateCache(ctx context.Context, userID, projectID string) error
	// InvalidateOrganizationCache evicts every entry of every organization member
	InvalidateOrganizationCache(ctx context.Context, organizationID string) error
}

// ChangeDecision answers whether a project role change is permitted
type ChangeDecision struct {
	Allowed      bool   `json:"allowed"`
	Reason       string `json:"reason,omitempty"`
	TargetSource Source `json:"target_source"`
}

// Err converts a denial into an error wrapping model.ErrForbidden
func (d *ChangeDecision) Err() error {
	if d == nil || d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", model.ErrForbidden, d.Reason)
}

// ChainStep is one human-readable step of an inheritance trace
type ChainStep struct {
	Level       string `json:"level"` // system, organization or project
	Role        string `json:"role"`
	Description string `json:"description"`
}
