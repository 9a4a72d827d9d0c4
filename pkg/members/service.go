package members

import (
	"context"
	"fmt"
	"time"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/model"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/observability"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/rbac"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/roles"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/scope"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/storage"
)

// Store is the persistence the membership service needs
type Store interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetOrganizationMembership(ctx context.Context, userID, organizationID string) (*model.OrganizationMembership, error)
	GetProjectMembership(ctx context.Context, userID, projectID string) (*model.ProjectMembership, error)
	PutProjectMembership(ctx context.Context, membership *model.ProjectMembership) error
	DeleteProjectMembership(ctx context.Context, userID, projectID string) error
	MutateOrganizationMembership(ctx context.Context, userID, organizationID string, fn storage.OrganizationMutation) (*model.OrganizationMembership, error)
}

// AccessResolver is the slice of the resolver the service depends on
type AccessResolver interface {
	ResolveFresh(ctx context.Context, userID, projectID string) (*rbac.EffectiveRoleResult, error)
	CanChangeProjectRole(ctx context.Context, targetUserID, projectID string, newRole roles.ProjectRole, requesterID string) (*rbac.ChangeDecision, error)
	rbac.Invalidator
}

// AddProjectMemberRequest grants an explicit project role
type AddProjectMemberRequest struct {
	ProjectID   string
	UserID      string
	Role        roles.ProjectRole
	Scope       scope.Scope
	ExpiresAt   *time.Time
	RequestedBy string
}

// UpdateProjectMemberRequest changes the role or scope of an explicit member.
// Nil fields are left unchanged.
type UpdateProjectMemberRequest struct {
	ProjectID   string
	UserID      string
	Role        *roles.ProjectRole
	Scope       *scope.Scope
	RequestedBy string
}

// Service mutates memberships and keeps the resolver cache coherent
type Service struct {
	store    Store
	resolver AccessResolver
	now      func() time.Time
	logger   *observability.Logger
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *observability.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a new membership service
func NewService(store Store, resolver AccessResolver, opts ...Option) *Service {
	s := &Service{
		store:    store,
		resolver: resolver,
		now:      time.Now,
		logger:   observability.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddProjectMember grants userID an explicit role on the project. The
// requester needs a role that manages members and may not grant a role above
// their own.
func (s *Service) AddProjectMember(ctx context.Context, req AddProjectMemberRequest) (*model.ProjectMembership, error) {
	if !req.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown project role %q", model.ErrInvalidState, req.Role)
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(s.now()) {
		return nil, fmt.Errorf("%w: expiration date must be in the future", model.ErrInvalidState)
	}

	requester, err := s.requireManager(ctx, req.RequestedBy, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if !requester.Role.AtLeast(req.Role) {
		return nil, fmt.Errorf("%w: cannot grant %s above your own role", model.ErrForbidden, req.Role.DisplayName())
	}

	if _, err := s.store.GetUser(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if err := s.rejectInherited(ctx, req.UserID, req.ProjectID); err != nil {
		return nil, err
	}

	if _, err := s.store.GetProjectMembership(ctx, req.UserID, req.ProjectID); err == nil {
		return nil, fmt.Errorf("%w: user is already a member of this project", model.ErrInvalidState)
	} else if !model.IsNotFound(err) {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	m := &model.ProjectMembership{
		UserID:     req.UserID,
		ProjectID:  req.ProjectID,
		Role:       req.Role,
		Scope:      req.Scope,
		Expiration: model.NewExpirationState(req.ExpiresAt),
		AddedBy:    req.RequestedBy,
	}
	if err := s.store.PutProjectMembership(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	s.invalidate(ctx, req.UserID, req.ProjectID, "project member added")
	return m, nil
}

// UpdateProjectMember changes an explicit member's role or scope. Role
// changes follow CanChangeProjectRole.
func (s *Service) UpdateProjectMember(ctx context.Context, req UpdateProjectMemberRequest) (*model.ProjectMembership, error) {
	if _, err := s.requireManager(ctx, req.RequestedBy, req.ProjectID); err != nil {
		return nil, err
	}
	if err := s.rejectInherited(ctx, req.UserID, req.ProjectID); err != nil {
		return nil, err
	}

	m, err := s.store.GetProjectMembership(ctx, req.UserID, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	if req.Role != nil && *req.Role != m.Role {
		decision, err := s.resolver.CanChangeProjectRole(ctx, req.UserID, req.ProjectID, *req.Role, req.RequestedBy)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate role change: %w", err)
		}
		if err := decision.Err(); err != nil {
			return nil, err
		}
		m.Role = *req.Role
	}
	if req.Scope != nil {
		m.Scope = *req.Scope
	}

	if err := s.store.PutProjectMembership(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to update member: %w", err)
	}

	s.invalidate(ctx, req.UserID, req.ProjectID, "project member updated")
	return m, nil
}

// RemoveProjectMember deletes an explicit membership
func (s *Service) RemoveProjectMember(ctx context.Context, projectID, userID, requestedBy string) error {
	if _, err := s.requireManager(ctx, requestedBy, projectID); err != nil {
		return err
	}
	if err := s.rejectInherited(ctx, userID, projectID); err != nil {
		return err
	}

	if err := s.store.DeleteProjectMembership(ctx, userID, projectID); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	s.invalidate(ctx, userID, projectID, "project member removed")
	return nil
}

// SetOrganizationRole adds userID to the organization or changes their role.
// Only an OWNER or a system administrator may grant or revoke OWNER, and the
// organization always keeps at least one OWNER.
func (s *Service) SetOrganizationRole(ctx context.Context, organizationID, userID string, role roles.OrgRole, requestedBy string) (*model.OrganizationMembership, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown organization role %q", model.ErrInvalidState, role)
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	canManageOwners, err := s.requireOrganizationManager(ctx, organizationID, requestedBy)
	if err != nil {
		return nil, err
	}

	m, err := s.store.MutateOrganizationMembership(ctx, userID, organizationID, func(current *model.OrganizationMembership, owners int) (*model.OrganizationMembership, error) {
		wasOwner := current != nil && current.Role == roles.OrgRoleOwner
		if (role == roles.OrgRoleOwner || wasOwner) && !canManageOwners {
			return nil, fmt.Errorf("%w: only an organization owner can grant or revoke %s", model.ErrForbidden, roles.OrgRoleOwner.DisplayName())
		}
		if wasOwner && role != roles.OrgRoleOwner && owners <= 1 {
			return nil, fmt.Errorf("%w: organization must keep at least one owner", model.ErrInvalidState)
		}

		next := &model.OrganizationMembership{UserID: userID, OrganizationID: organizationID, Role: role}
		if current != nil {
			next.CreatedAt = current.CreatedAt
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	// The role applies to every project of the organization
	s.invalidate(ctx, userID, "", "organization role changed")
	return m, nil
}

// RemoveOrganizationMember removes userID from the organization. Project
// memberships are left to the caller.
func (s *Service) RemoveOrganizationMember(ctx context.Context, organizationID, userID, requestedBy string) error {
	canManageOwners, err := s.requireOrganizationManager(ctx, organizationID, requestedBy)
	if err != nil {
		return err
	}

	_, err = s.store.MutateOrganizationMembership(ctx, userID, organizationID, func(current *model.OrganizationMembership, owners int) (*model.OrganizationMembership, error) {
		if current == nil {
			return nil, fmt.Errorf("%w: user is not a member of this organization", model.ErrNotFound)
		}
		if current.Role == roles.OrgRoleOwner {
			if !canManageOwners {
				return nil, fmt.Errorf("%w: only an organization owner can remove an owner", model.ErrForbidden)
			}
			if owners <= 1 {
				return nil, fmt.Errorf("%w: organization must keep at least one owner", model.ErrInvalidState)
			}
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, userID, "", "organization member removed")
	return nil
}

// requireManager resolves the requester without the cache and checks they
// may manage the project's members
func (s *Service) requireManager(ctx context.Context, requesterID, projectID string) (*rbac.EffectiveRoleResult, error) {
	result, err := s.resolver.ResolveFresh(ctx, requesterID, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve requester access: %w", err)
	}
	if !result.HasRole() || !result.Role.CanManageMembers() {
		return nil, fmt.Errorf("%w: managing project members requires %s or %s", model.ErrForbidden,
			roles.ProjectRoleAdmin.DisplayName(), roles.ProjectRoleManager.DisplayName())
	}
	return result, nil
}

func (s *Service) rejectInherited(ctx context.Context, userID, projectID string) error {
	target, err := s.resolver.ResolveFresh(ctx, userID, projectID)
	if err != nil {
		return fmt.Errorf("failed to resolve target access: %w", err)
	}
	if target.IsInherited {
		return fmt.Errorf("%w: user has inherited access through %s and cannot be managed as a project member", model.ErrForbidden, target.Source)
	}
	return nil
}

// requireOrganizationManager checks the requester is a system administrator,
// OWNER or ORG_ADMIN, and reports whether they may manage owners
func (s *Service) requireOrganizationManager(ctx context.Context, organizationID, requesterID string) (bool, error) {
	user, err := s.store.GetUser(ctx, requesterID)
	if err != nil && !model.IsNotFound(err) {
		return false, fmt.Errorf("failed to get requester: %w", err)
	}
	if user.IsSystemAdmin() {
		return true, nil
	}

	m, err := s.store.GetOrganizationMembership(ctx, requesterID, organizationID)
	if model.IsNotFound(err) {
		m = nil
	} else if err != nil {
		return false, fmt.Errorf("failed to get requester membership: %w", err)
	}
	if m == nil || !m.Role.AtLeast(roles.OrgRoleAdmin) {
		return false, fmt.Errorf("%w: managing organization members requires %s or %s", model.ErrForbidden,
			roles.OrgRoleOwner.DisplayName(), roles.OrgRoleAdmin.DisplayName())
	}
	return m.Role == roles.OrgRoleOwner, nil
}

func (s *Service) invalidate(ctx context.Context, userID, projectID, event string) {
	logger := observability.FromContext(ctx, s.logger).WithAccess(userID, projectID)
	if err := s.resolver.InvalidateCache(ctx, userID, projectID); err != nil {
		logger.WithError(err).Warn("failed to invalidate access cache")
	}
	logger.Info(event)
}
