package expiration

import (
	"context"
	"fmt"
	"time"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/model"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/observability"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/rbac"
)

// MutateFunc computes the next expiration state from the current one
type MutateFunc = func(current model.ExpirationState) (model.ExpirationState, error)

// Store is the persistence the expiration service needs
type Store interface {
	GetProjectMembership(ctx context.Context, userID, projectID string) (*model.ProjectMembership, error)
	ListProjectMemberships(ctx context.Context, projectID string) ([]*model.ProjectMembership, error)

	// UpdateExpiration loads the membership, applies fn and persists the
	// result atomically. An error from fn aborts without writing.
	UpdateExpiration(ctx context.Context, userID, projectID string, fn MutateFunc) (*model.ProjectMembership, error)
}

// AccessResolver is the slice of the resolver the service depends on
type AccessResolver interface {
	HasInheritedAccess(ctx context.Context, userID, projectID string) (bool, error)
	rbac.Invalidator
}

// Check is the expiration detail of one (user, project) pair
type Check struct {
	UserID              string        `json:"user_id"`
	ProjectID           string        `json:"project_id"`
	Status              Status        `json:"status"`
	IsInherited         bool          `json:"is_inherited"`
	ExpiresAt           *time.Time    `json:"expires_at,omitempty"`
	DaysUntilExpiration *int          `json:"days_until_expiration,omitempty"`
	Renewal             model.Renewal `json:"renewal"`
}

// ProcessRenewalRequest approves or denies a pending renewal
type ProcessRenewalRequest struct {
	UserID       string
	ProjectID    string
	Approve      bool
	NewExpiresAt *time.Time // required when approving
	ProcessedBy  string
}

// Service runs expiration checks and the renewal workflow
type Service struct {
	store    Store
	resolver AccessResolver
	now      func() time.Time
	logger   *observability.Logger
	metrics  *observability.Metrics
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

// WithMetrics sets the metrics sink
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

// NewService creates a new expiration service
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

// CheckExpiration reports the expiration status of the user's access.
// Inherited access never expires, whatever a shadowed membership row says.
func (s *Service) CheckExpiration(ctx context.Context, userID, projectID string) (*Check, error) {
	inherited, err := s.resolver.HasInheritedAccess(ctx, userID, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve access: %w", err)
	}
	if inherited {
		return &Check{
			UserID:      userID,
			ProjectID:   projectID,
			Status:      StatusNoExpiration,
			IsInherited: true,
			Renewal:     model.Renewal{Status: model.RenewalNone},
		}, nil
	}

	m, err := s.store.GetProjectMembership(ctx, userID, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	now := s.now()
	return &Check{
		UserID:              userID,
		ProjectID:           projectID,
		Status:              StatusAt(m.ExpiresAt(), now),
		ExpiresAt:           m.ExpiresAt(),
		DaysUntilExpiration: DaysUntil(m.ExpiresAt(), now),
		Renewal:             m.Expiration.Renewal,
	}, nil
}

// IsExpired reports whether the user's explicit membership has expired
func (s *Service) IsExpired(ctx context.Context, userID, projectID string) (bool, error) {
	check, err := s.CheckExpiration(ctx, userID, projectID)
	if err != nil {
		return false, err
	}
	return check.Status == StatusExpired, nil
}

// IsExpiringSoon reports whether the membership expires within ExpiringSoonWindow
func (s *Service) IsExpiringSoon(ctx context.Context, userID, projectID string) (bool, error) {
	check, err := s.CheckExpiration(ctx, userID, projectID)
	if err != nil {
		return false, err
	}
	return check.Status == StatusExpiringSoon, nil
}

// RequestRenewal opens a renewal request on an expiring membership
func (s *Service) RequestRenewal(ctx context.Context, userID, projectID, requestedBy, reason string) (*model.ProjectMembership, error) {
	now := s.now()
	return s.mutate(ctx, userID, projectID, "request", func(st model.ExpirationState) (model.ExpirationState, error) {
		return st.RequestRenewal(requestedBy, reason, now)
	})
}

// ProcessRenewal approves or denies a pending renewal. Approval applies the
// new expiration date and starts a fresh notification cycle; denial leaves
// the date untouched.
func (s *Service) ProcessRenewal(ctx context.Context, req ProcessRenewalRequest) (*model.ProjectMembership, error) {
	now := s.now()
	if req.Approve {
		return s.mutate(ctx, req.UserID, req.ProjectID, "approve", func(st model.ExpirationState) (model.ExpirationState, error) {
			return st.ApproveRenewal(req.ProcessedBy, req.NewExpiresAt, now)
		})
	}
	return s.mutate(ctx, req.UserID, req.ProjectID, "deny", func(st model.ExpirationState) (model.ExpirationState, error) {
		return st.DenyRenewal(req.ProcessedBy, now)
	})
}

// ExtendExpiration sets a new future expiration date, approving any pending renewal
func (s *Service) ExtendExpiration(ctx context.Context, userID, projectID string, newExpiresAt time.Time, actor string) (*model.ProjectMembership, error) {
	now := s.now()
	return s.mutate(ctx, userID, projectID, "extend", func(st model.ExpirationState) (model.ExpirationState, error) {
		return st.Extend(newExpiresAt, actor, now)
	})
}

// RemoveExpiration makes the membership permanent, approving any pending renewal
func (s *Service) RemoveExpiration(ctx context.Context, userID, projectID, actor string) (*model.ProjectMembership, error) {
	now := s.now()
	return s.mutate(ctx, userID, projectID, "remove", func(st model.ExpirationState) (model.ExpirationState, error) {
		return st.Remove(actor, now), nil
	})
}

// mutate applies a workflow transition to an explicit membership and
// invalidates the cached resolution once it is committed
func (s *Service) mutate(ctx context.Context, userID, projectID, action string, fn MutateFunc) (*model.ProjectMembership, error) {
	logger := observability.FromContext(ctx, s.logger).
		WithAccess(userID, projectID).
		WithField("action", action)

	inherited, err := s.resolver.HasInheritedAccess(ctx, userID, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve access: %w", err)
	}
	if inherited {
		return nil, fmt.Errorf("%w: access is inherited from an organization or system role and does not expire", model.ErrInvalidState)
	}

	m, err := s.store.UpdateExpiration(ctx, userID, projectID, fn)
	if err != nil {
		if model.IsInvalidState(err) {
			logger.WithError(err).Debug("renewal transition rejected")
		}
		return nil, err
	}

	if err := s.resolver.InvalidateCache(ctx, userID, projectID); err != nil {
		logger.WithError(err).Warn("failed to invalidate access cache after expiration change")
	}
	s.metrics.ObserveRenewal(action)
	logger.Info("membership expiration updated")
	return m, nil
}

// MembershipsRequiringNotification returns the project's memberships with a
// notification due. Members whose access is inherited are skipped.
func (s *Service) MembershipsRequiringNotification(ctx context.Context, projectID string) ([]Notification, error) {
	memberships, err := s.store.ListProjectMemberships(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}

	due := DueNotifications(memberships, s.now())
	out := due[:0]
	for _, n := range due {
		inherited, err := s.resolver.HasInheritedAccess(ctx, n.Membership.UserID, projectID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve access: %w", err)
		}
		if !inherited {
			out = append(out, n)
		}
	}
	return out, nil
}

// MarkNotificationSent records that kind was sent. It is idempotent and
// reports whether this call recorded it.
func (s *Service) MarkNotificationSent(ctx context.Context, userID, projectID string, kind model.NotificationKind) (bool, error) {
	now := s.now()
	var changed bool
	_, err := s.store.UpdateExpiration(ctx, userID, projectID, func(st model.ExpirationState) (model.ExpirationState, error) {
		next, ok, err := st.MarkNotified(kind, now)
		changed = ok
		return next, err
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}
