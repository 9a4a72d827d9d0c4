package rbac

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/observability"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/scope"
)

// CapabilityMapper answers capability questions on top of role resolution
type CapabilityMapper struct {
	resolver RoleResolver
	policy   atomic.Pointer[Policy]
	now      func() time.Time
	metrics  *observability.Metrics
}

// MapperOption configures a CapabilityMapper
type MapperOption func(*CapabilityMapper)

// WithMapperClock overrides the time source used for expiry checks
func WithMapperClock(now func() time.Time) MapperOption {
	return func(m *CapabilityMapper) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMapperMetrics sets the metrics sink
func WithMapperMetrics(metrics *observability.Metrics) MapperOption {
	return func(m *CapabilityMapper) { m.metrics = metrics }
}

// NewCapabilityMapper creates a mapper. A nil policy means DefaultPolicy.
func NewCapabilityMapper(resolver RoleResolver, policy *Policy, opts ...MapperOption) *CapabilityMapper {
	m := &CapabilityMapper{resolver: resolver, now: time.Now}
	if policy == nil {
		policy = DefaultPolicy()
	}
	m.policy.Store(policy)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy returns the active policy
func (m *CapabilityMapper) Policy() *Policy {
	return m.policy.Load()
}

// SetPolicy swaps the active policy atomically
func (m *CapabilityMapper) SetPolicy(policy *Policy) {
	if policy != nil {
		m.policy.Store(policy)
	}
}

// HasCapability reports whether the user's effective role grants capability
func (m *CapabilityMapper) HasCapability(ctx context.Context, userID, projectID string, capability Capability) (bool, error) {
	return m.HasScopedCapability(ctx, userID, projectID, capability, scope.None())
}

// HasScopedCapability additionally requires that a scope-limited role's
// membership scope covers requested
func (m *CapabilityMapper) HasScopedCapability(ctx context.Context, userID, projectID string, capability Capability, requested scope.Scope) (bool, error) {
	if !capability.Valid() {
		return false, fmt.Errorf("invalid capability %q", capability)
	}
	result, err := m.resolver.Resolve(ctx, userID, projectID)
	if err != nil {
		return false, err
	}
	allowed := m.Decide(result, capability, requested)
	m.metrics.ObserveCapabilityCheck(allowed)
	return allowed, nil
}

// HasCapabilities checks several capabilities with a single resolution
func (m *CapabilityMapper) HasCapabilities(ctx context.Context, userID, projectID string, capabilities []Capability) (map[Capability]bool, error) {
	for _, c := range capabilities {
		if !c.Valid() {
			return nil, fmt.Errorf("invalid capability %q", c)
		}
	}
	result, err := m.resolver.Resolve(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	out := make(map[Capability]bool, len(capabilities))
	for _, c := range capabilities {
		out[c] = m.Decide(result, c, scope.None())
		m.metrics.ObserveCapabilityCheck(out[c])
	}
	return out, nil
}

// Decide evaluates a resolved role against capability and requested scope.
// No role, or an explicit grant that has lapsed since it was cached, denies.
func (m *CapabilityMapper) Decide(result *EffectiveRoleResult, capability Capability, requested scope.Scope) bool {
	if !result.HasRole() || result.IsExpiredAt(m.now()) {
		return false
	}
	if !m.Policy().Allows(result.Role, capability) {
		return false
	}
	if result.Role.IsScopeLimited() && !scope.Allows(result.Scope, requested) {
		return false
	}
	return true
}
