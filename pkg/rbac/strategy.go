package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/model"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/roles"
)

// Strategy is one rule of the precedence chain. A strategy returns nil when
// it does not apply so the next one is consulted.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, in *Lookup, now time.Time) (*EffectiveRoleResult, error)
}

// DefaultStrategies returns the precedence chain, highest first
func DefaultStrategies() []Strategy {
	return []Strategy{
		SystemAdminStrategy{},
		NewOrgRoleStrategy(roles.OrgRoleOwner, SourceOrgOwner),
		NewOrgRoleStrategy(roles.OrgRoleAdmin, SourceOrgAdmin),
		ExplicitMembershipStrategy{},
	}
}

// Lookup memoizes the directory reads of a single resolution so each row is
// fetched at most once regardless of how many strategies need it. It is not
// safe for concurrent use.
type Lookup struct {
	UserID    string
	ProjectID string

	dir Directory

	user              *model.User
	project           *model.Project
	orgMembership     *model.OrganizationMembership
	projectMembership *model.ProjectMembership

	userLoaded, projectLoaded, orgLoaded, membershipLoaded bool
}

// NewLookup creates a Lookup for one (user, project) pair
func NewLookup(dir Directory, userID, projectID string) *Lookup {
	return &Lookup{UserID: userID, ProjectID: projectID, dir: dir}
}

// User returns the user, or nil when it does not exist
func (l *Lookup) User(ctx context.Context) (*model.User, error) {
	if !l.userLoaded {
		u, err := l.dir.GetUser(ctx, l.UserID)
		if err = absentAsNil(err); err != nil {
			return nil, fmt.Errorf("failed to get user: %w", err)
		}
		l.user, l.userLoaded = u, true
	}
	return l.user, nil
}

// Project returns the project, or nil when it does not exist
func (l *Lookup) Project(ctx context.Context) (*model.Project, error) {
	if !l.projectLoaded {
		p, err := l.dir.GetProject(ctx, l.ProjectID)
		if err = absentAsNil(err); err != nil {
			return nil, fmt.Errorf("failed to get project: %w", err)
		}
		l.project, l.projectLoaded = p, true
	}
	return l.project, nil
}

// OrganizationMembership returns the user's membership in the project's
// organization, or nil when the user is not a member or the project is absent
func (l *Lookup) OrganizationMembership(ctx context.Context) (*model.OrganizationMembership, error) {
	if !l.orgLoaded {
		project, err := l.Project(ctx)
		if err != nil {
			return nil, err
		}
		if project != nil {
			m, err := l.dir.GetOrganizationMembership(ctx, l.UserID, project.OrganizationID)
			if err = absentAsNil(err); err != nil {
				return nil, fmt.Errorf("failed to get organization membership: %w", err)
			}
			l.orgMembership = m
		}
		l.orgLoaded = true
	}
	return l.orgMembership, nil
}

// ProjectMembership returns the explicit membership, or nil
func (l *Lookup) ProjectMembership(ctx context.Context) (*model.ProjectMembership, error) {
	if !l.membershipLoaded {
		m, err := l.dir.GetProjectMembership(ctx, l.UserID, l.ProjectID)
		if err = absentAsNil(err); err != nil {
			return nil, fmt.Errorf("failed to get project membership: %w", err)
		}
		l.projectMembership, l.membershipLoaded = m, true
	}
	return l.projectMembership, nil
}

// organizationContext fills the organization fields of result from whatever
// has already been loaded, without issuing new reads
func (l *Lookup) organizationContext(result *EffectiveRoleResult) {
	if l.project != nil {
		result.OrganizationID = l.project.OrganizationID
	}
	if l.orgMembership != nil {
		result.OrganizationRole = l.orgMembership.Role
	}
}

func absentAsNil(err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	return err
}

// SystemAdminStrategy grants the top role to system administrators
type SystemAdminStrategy struct{}

func (SystemAdminStrategy) Name() string { return string(SourceSystemAdmin) }

func (SystemAdminStrategy) Resolve(ctx context.Context, in *Lookup, _ time.Time) (*EffectiveRoleResult, error) {
	user, err := in.User(ctx)
	if err != nil {
		return nil, err
	}
	if !user.IsSystemAdmin() {
		return nil, nil
	}
	return &EffectiveRoleResult{
		Role:        roles.TopProjectRole,
		Source:      SourceSystemAdmin,
		IsInherited: true,
	}, nil
}

// OrgRoleStrategy grants the top role to holders of one organization role
type OrgRoleStrategy struct {
	role   roles.OrgRole
	source Source
}

// NewOrgRoleStrategy creates a strategy granting the top role to role holders
func NewOrgRoleStrategy(role roles.OrgRole, source Source) OrgRoleStrategy {
	return OrgRoleStrategy{role: role, source: source}
}

func (s OrgRoleStrategy) Name() string { return string(s.source) }

func (s OrgRoleStrategy) Resolve(ctx context.Context, in *Lookup, _ time.Time) (*EffectiveRoleResult, error) {
	membership, err := in.OrganizationMembership(ctx)
	if err != nil {
		return nil, err
	}
	if membership == nil || membership.Role != s.role {
		return nil, nil
	}
	return &EffectiveRoleResult{
		Role:             roles.TopProjectRole,
		Source:           s.source,
		IsInherited:      true,
		OrganizationID:   membership.OrganizationID,
		OrganizationRole: membership.Role,
	}, nil
}

// ExplicitMembershipStrategy uses the user's own unexpired project membership
type ExplicitMembershipStrategy struct{}

func (ExplicitMembershipStrategy) Name() string { return string(SourceExplicit) }

func (ExplicitMembershipStrategy) Resolve(ctx context.Context, in *Lookup, now time.Time) (*EffectiveRoleResult, error) {
	project, err := in.Project(ctx)
	if err != nil || project == nil {
		return nil, err
	}
	membership, err := in.ProjectMembership(ctx)
	if err != nil {
		return nil, err
	}
	if membership == nil || !membership.Role.Valid() || membership.IsExpiredAt(now) {
		return nil, nil
	}
	if _, err := in.OrganizationMembership(ctx); err != nil {
		return nil, err
	}

	result := &EffectiveRoleResult{
		Role:   membership.Role,
		Source: SourceExplicit,
		Scope:  membership.Scope,
	}
	if exp := membership.ExpiresAt(); exp != nil {
		t := *exp
		result.ExpiresAt = &t
	}
	in.organizationContext(result)
	return result, nil
}
