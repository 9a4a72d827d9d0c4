package rbac

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/observability"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/roles"
)

// DefaultCacheTTL bounds how long a cached resolution is served
const DefaultCacheTTL = 15 * time.Minute

// Option configures a Resolver
type Option func(*Resolver)

// WithCache sets the resolution cache. A nil cache disables caching.
func WithCache(cache Cache) Option {
	return func(r *Resolver) {
		if cache == nil {
			cache = nopCache{}
		}
		r.cache = cache
	}
}

// WithCacheTTL sets the cache freshness window
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *observability.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(metrics *observability.Metrics) Option {
	return func(r *Resolver) { r.metrics = metrics }
}

// WithStrategies replaces the precedence chain
func WithStrategies(strategies ...Strategy) Option {
	return func(r *Resolver) {
		if len(strategies) > 0 {
			r.strategies = strategies
		}
	}
}

// Resolver computes effective project roles with a read-through cache.
//
// Every invalidation bumps an epoch. A resolution that started before an
// invalidation does not write its result back, so a slow read cannot
// repopulate the cache with data the invalidation was meant to discard.
type Resolver struct {
	directory  Directory
	cache      Cache
	strategies []Strategy
	ttl        time.Duration
	now        func() time.Time
	logger     *observability.Logger
	metrics    *observability.Metrics

	epoch atomic.Uint64
}

// NewResolver creates a resolver over the given directory. Without WithCache
// an unbounded MapCache is used.
func NewResolver(directory Directory, opts ...Option) *Resolver {
	r := &Resolver{
		directory:  directory,
		cache:      NewMapCache(),
		strategies: DefaultStrategies(),
		ttl:        DefaultCacheTTL,
		now:        time.Now,
		logger:     observability.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the effective role of userID on projectID, serving fresh
// cache entries when available. Absent users, projects and memberships
// resolve to no access rather than an error.
func (r *Resolver) Resolve(ctx context.Context, userID, projectID string) (*EffectiveRoleResult, error) {
	key := CacheKey{UserID: userID, ProjectID: projectID}
	start := time.Now()

	if result, ok := r.cached(ctx, key); ok {
		r.metrics.ObserveResolution(string(result.Source), true, time.Since(start))
		return result, nil
	}
	r.metrics.ObserveCacheMiss()

	return r.resolveAndStore(ctx, key, start)
}

// ResolveFresh bypasses cached entries. The fresh result still refreshes the cache.
func (r *Resolver) ResolveFresh(ctx context.Context, userID, projectID string) (*EffectiveRoleResult, error) {
	return r.resolveAndStore(ctx, CacheKey{UserID: userID, ProjectID: projectID}, time.Now())
}

func (r *Resolver) resolveAndStore(ctx context.Context, key CacheKey, start time.Time) (*EffectiveRoleResult, error) {
	epoch := r.epoch.Load()

	result, err := r.compute(ctx, key)
	if err != nil {
		return nil, err
	}
	r.metrics.ObserveResolution(string(result.Source), false, time.Since(start))

	if r.epoch.Load() == epoch {
		if err := r.cache.Set(ctx, key, CacheEntry{Result: *result, CachedAt: result.ResolvedAt}); err != nil {
			r.cacheFailure(key, "set", err)
		} else if r.epoch.Load() != epoch {
			// An invalidation raced the write; drop what may be stale.
			if err := r.cache.Delete(ctx, key); err != nil {
				r.cacheFailure(key, "delete", err)
			}
		}
	}
	return result, nil
}

func (r *Resolver) cached(ctx context.Context, key CacheKey) (*EffectiveRoleResult, bool) {
	entry, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.cacheFailure(key, "get", err)
		return nil, false
	}
	if !ok || entry == nil {
		return nil, false
	}
	now := r.now()
	if now.Sub(entry.CachedAt) >= r.ttl || entry.Result.IsExpiredAt(now) {
		if err := r.cache.Delete(ctx, key); err != nil {
			r.cacheFailure(key, "delete", err)
		}
		return nil, false
	}
	return entry.Result.clone(), true
}

func (r *Resolver) cacheFailure(key CacheKey, op string, err error) {
	r.metrics.ObserveCacheError(op)
	r.logger.WithAccess(key.UserID, key.ProjectID).
		WithField("operation", op).
		WithError(err).
		Warn("access cache unavailable, falling back to direct resolution")
}

func (r *Resolver) compute(ctx context.Context, key CacheKey) (result *EffectiveRoleResult, err error) {
	ctx, span := observability.StartSpan(ctx, "rbac.Resolve",
		attribute.String("user.id", key.UserID),
		attribute.String("project.id", key.ProjectID),
	)
	defer func() { observability.EndSpan(span, err) }()

	now := r.now()
	lookup := NewLookup(r.directory, key.UserID, key.ProjectID)

	for _, strategy := range r.strategies {
		res, err := strategy.Resolve(ctx, lookup, now)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s role for user %s on project %s: %w",
				strategy.Name(), key.UserID, key.ProjectID, err)
		}
		if res.HasRole() {
			res.ResolvedAt = now
			span.SetAttributes(attribute.String("access.source", string(res.Source)))
			return res, nil
		}
	}

	result = noAccess()
	lookup.organizationContext(result)
	result.ResolvedAt = now
	return result, nil
}

// HasInheritedAccess reports whether the user's access comes from a system or
// organization role rather than a project membership
func (r *Resolver) HasInheritedAccess(ctx context.Context, userID, projectID string) (bool, error) {
	result, err := r.Resolve(ctx, userID, projectID)
	if err != nil {
		return false, err
	}
	return result.HasRole() && result.IsInherited, nil
}

// CanChangeProjectRole decides whether requesterID may set targetUserID's
// project role. Both sides are resolved without the cache.
func (r *Resolver) CanChangeProjectRole(ctx context.Context, targetUserID, projectID string, newRole roles.ProjectRole, requesterID string) (*ChangeDecision, error) {
	target, err := r.ResolveFresh(ctx, targetUserID, projectID)
	if err != nil {
		return nil, err
	}

	decision := &ChangeDecision{TargetSource: target.Source}
	switch target.Source {
	case SourceSystemAdmin:
		decision.Reason = "user is a system administrator; project role is not managed per project"
		return decision, nil
	case SourceOrgOwner:
		decision.Reason = "user inherits access as organization owner; change the organization role instead"
		return decision, nil
	case SourceOrgAdmin:
		decision.Reason = "user inherits access as organization admin; change the organization role instead"
		return decision, nil
	case SourceNone:
		decision.Reason = "user is not a member of this project"
		return decision, nil
	}

	if !newRole.Valid() {
		decision.Reason = fmt.Sprintf("unknown project role %q", newRole)
		return decision, nil
	}

	requester, err := r.ResolveFresh(ctx, requesterID, projectID)
	if err != nil {
		return nil, err
	}
	if !requester.Role.IsTop() {
		decision.Reason = fmt.Sprintf("only %s can change project roles", roles.TopProjectRole.DisplayName())
		return decision, nil
	}

	decision.Allowed = true
	return decision, nil
}

// InheritanceChain explains how the effective role was reached
func (r *Resolver) InheritanceChain(ctx context.Context, userID, projectID string) ([]ChainStep, error) {
	result, err := r.Resolve(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	orgStep := func(description string) ChainStep {
		return ChainStep{Level: "organization", Role: string(result.OrganizationRole), Description: description}
	}

	switch result.Source {
	case SourceSystemAdmin:
		return []ChainStep{{
			Level:       "system",
			Role:        string(roles.SystemRoleAdmin),
			Description: fmt.Sprintf("System administrator override grants %s", result.Role.DisplayName()),
		}}, nil
	case SourceOrgOwner, SourceOrgAdmin:
		return []ChainStep{
			orgStep(fmt.Sprintf("%s of organization %s", result.OrganizationRole.DisplayName(), result.OrganizationID)),
			{
				Level:       "project",
				Role:        string(result.Role),
				Description: fmt.Sprintf("Inherits %s from organization role", result.Role.DisplayName()),
			},
		}, nil
	}

	var chain []ChainStep
	if result.OrganizationRole != "" {
		chain = append(chain, orgStep(fmt.Sprintf("%s of organization %s (no project inheritance)",
			result.OrganizationRole.DisplayName(), result.OrganizationID)))
	}
	if result.Source == SourceExplicit {
		chain = append(chain, ChainStep{
			Level:       "project",
			Role:        string(result.Role),
			Description: fmt.Sprintf("Explicit project membership as %s", result.Role.DisplayName()),
		})
	} else {
		chain = append(chain, ChainStep{
			Level:       "project",
			Role:        result.Role.String(),
			Description: "No project access",
		})
	}
	return chain, nil
}

// InvalidateCache evicts the (userID, projectID) entry, or every entry of
// userID when projectID is empty
func (r *Resolver) InvalidateCache(ctx context.Context, userID, projectID string) error {
	r.epoch.Add(1)

	if projectID == "" {
		r.metrics.ObserveInvalidation("user")
		if err := r.cache.DeleteUser(ctx, userID); err != nil {
			r.cacheFailure(CacheKey{UserID: userID}, "delete_user", err)
			return fmt.Errorf("failed to invalidate cache for user %s: %w", userID, err)
		}
		return nil
	}

	r.metrics.ObserveInvalidation("pair")
	if err := r.cache.Delete(ctx, CacheKey{UserID: userID, ProjectID: projectID}); err != nil {
		r.cacheFailure(CacheKey{UserID: userID, ProjectID: projectID}, "delete", err)
		return fmt.Errorf("failed to invalidate cache for user %s on project %s: %w", userID, projectID, err)
	}
	return nil
}

// InvalidateOrganizationCache evicts every cached entry of every member of the
// organization, used when an organization-wide change affects inheritance
func (r *Resolver) InvalidateOrganizationCache(ctx context.Context, organizationID string) error {
	r.epoch.Add(1)
	r.metrics.ObserveInvalidation("organization")

	memberIDs, err := r.directory.ListOrganizationMemberIDs(ctx, organizationID)
	if err != nil {
		return fmt.Errorf("failed to list members of organization %s: %w", organizationID, err)
	}

	var firstErr error
	for _, userID := range memberIDs {
		if err := r.cache.DeleteUser(ctx, userID); err != nil {
			r.cacheFailure(CacheKey{UserID: userID}, "delete_user", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to invalidate cache for user %s: %w", userID, err)
			}
		}
	}
	return firstErr
}

// PurgeCache drops every cached resolution
func (r *Resolver) PurgeCache(ctx context.Context) error {
	r.epoch.Add(1)
	if err := r.cache.Purge(ctx); err != nil {
		r.cacheFailure(CacheKey{}, "purge", err)
		return fmt.Errorf("failed to purge access cache: %w", err)
	}
	return nil
}
