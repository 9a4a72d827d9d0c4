package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/contextkeys"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/roles"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/scope"
)

func TestCapabilityMatches(t *testing.T) {
	tests := []struct {
		granted   Capability
		requested Capability
		want      bool
	}{
		{CapabilityAll, "documents:drawing:update", true},
		{"documents:*:read", "documents:drawing:read", true},
		{"documents:*:read", "documents:drawing:update", false},
		{"*:*:read", "budget:line:read", true},
		{"rfis:rfi:respond", "rfis:rfi:respond", true},
		{"rfis:rfi:respond", "rfis:rfi:create", false},
		{"documents:drawing:read", "documents:*:read", false},
		{"documents:*:read", "documents:*:read", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.granted.Matches(tt.requested), "%s vs %s", tt.granted, tt.requested)
	}
}

func TestParseCapability(t *testing.T) {
	c, err := ParseCapability(" documents:drawing:read ")
	require.NoError(t, err)
	assert.Equal(t, Capability("documents:drawing:read"), c)

	for _, bad := range []string{"", "documents", "documents:drawing", "a::b", "a:b:c:d"} {
		_, err := ParseCapability(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewPolicy(t *testing.T) {
	p, err := NewPolicy(map[roles.ProjectRole][]Capability{
		roles.ProjectRoleViewer: {"documents:*:read", "documents:*:read"},
	})
	require.NoError(t, err)
	assert.Equal(t, []Capability{"documents:*:read"}, p.Grants(roles.ProjectRoleViewer))
	assert.Equal(t, []Capability{CapabilityAll}, p.Grants(roles.TopProjectRole), "top role always holds everything")

	_, err = NewPolicy(map[roles.ProjectRole][]Capability{
		roles.ProjectRoleInspector: {"punch_list:item:update"},
	})
	assert.ErrorContains(t, err, "read-only")

	_, err = NewPolicy(map[roles.ProjectRole][]Capability{
		roles.ProjectRoleViewer: {"documents:*:*"},
	})
	assert.Error(t, err, "wildcard action is not read-class")

	_, err = NewPolicy(map[roles.ProjectRole][]Capability{"JANITOR": {"a:b:c"}})
	assert.Error(t, err)
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	for _, role := range roles.AllProjectRoles() {
		if role.IsReadOnly() {
			for _, c := range p.Grants(role) {
				_, _, action := c.Segments()
				assert.True(t, readActions[action], "%s must not be granted %s", role, c)
			}
		}
	}

	assert.True(t, p.Allows(roles.ProjectRoleAdmin, "anything:at:all"))
	assert.True(t, p.Allows(roles.ProjectRoleManager, "project:members:manage"))
	assert.False(t, p.Allows(roles.ProjectRoleEngineer, "project:members:manage"))
	assert.True(t, p.Allows(roles.ProjectRoleForeman, "daily_logs:log:create"))
	assert.False(t, p.Allows(roles.ProjectRoleViewer, "documents:drawing:update"))
	assert.False(t, p.Allows(roles.ProjectRoleNone, "documents:drawing:read"))
}

func TestLoadPolicy(t *testing.T) {
	p, err := LoadPolicy(strings.NewReader(`
roles:
  viewer:
    - "documents:*:read"
  FOREMAN:
    - "daily_logs:*:create"
`))
	require.NoError(t, err)
	assert.True(t, p.Allows(roles.ProjectRoleViewer, "documents:spec:read"))
	assert.True(t, p.Allows(roles.ProjectRoleForeman, "daily_logs:entry:create"))
	assert.False(t, p.Allows(roles.ProjectRoleManager, "documents:spec:read"), "roles not listed get nothing")

	_, err = LoadPolicy(strings.NewReader("roles:\n  VIEWER:\n    - \"bad\"\n"))
	assert.Error(t, err)

	_, err = LoadPolicy(strings.NewReader("roles: [unclosed"))
	assert.Error(t, err)

	_, err = LoadPolicy(strings.NewReader(""))
	assert.Error(t, err, "an empty file is usually a write in progress")

	onlyTop, err := LoadPolicy(strings.NewReader("roles: {}\n"))
	require.NoError(t, err)
	assert.True(t, onlyTop.Allows(roles.TopProjectRole, "a:b:c"))
}

func newMapperFixture(t *testing.T) (*fakeDirectory, *fakeClock, *CapabilityMapper) {
	t.Helper()
	dir, clock, r := newFixture(t)
	return dir, clock, NewCapabilityMapper(r, nil, WithMapperClock(clock.Now))
}

func TestHasCapability(t *testing.T) {
	ctx := context.Background()
	dir, clock, m := newMapperFixture(t)
	dir.addUser("admin", roles.SystemRoleUser)
	dir.setOrgRole("admin", "org-1", roles.OrgRoleAdmin)
	dir.addUser("viewer", roles.SystemRoleUser)
	dir.setMembership("viewer", "proj-1", roles.ProjectRoleViewer, scope.None(), nil)
	dir.addUser("lapsed", roles.SystemRoleUser)
	yesterday := clock.Now().Add(-24 * time.Hour)
	dir.setMembership("lapsed", "proj-1", roles.ProjectRoleManager, scope.None(), &yesterday)

	ok, err := m.HasCapability(ctx, "admin", "proj-1", "budget:line:approve")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.HasCapability(ctx, "viewer", "proj-1", "documents:drawing:read")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.HasCapability(ctx, "viewer", "proj-1", "documents:drawing:update")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.HasCapability(ctx, "lapsed", "proj-1", "documents:drawing:read")
	require.NoError(t, err)
	assert.False(t, ok, "expired membership denies everything")

	ok, err = m.HasCapability(ctx, "stranger", "proj-1", "documents:drawing:read")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.HasCapability(ctx, "viewer", "proj-1", "documents")
	assert.Error(t, err)
}

func TestHasCapability_CachedGrantExpires(t *testing.T) {
	ctx := context.Background()
	dir, clock, m := newMapperFixture(t)
	dir.addUser("u", roles.SystemRoleUser)
	exp := clock.Now().Add(time.Minute)
	dir.setMembership("u", "proj-1", roles.ProjectRoleEngineer, scope.None(), &exp)

	ok, err := m.HasCapability(ctx, "u", "proj-1", "rfis:rfi:create")
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(2 * time.Minute)
	ok, err = m.HasCapability(ctx, "u", "proj-1", "rfis:rfi:create")
	require.NoError(t, err)
	assert.False(t, ok, "a cached grant past its expiry must deny")
}

func TestHasCapabilities(t *testing.T) {
	dir, _, m := newMapperFixture(t)
	dir.addUser("u", roles.SystemRoleUser)
	dir.setMembership("u", "proj-1", roles.ProjectRoleSuperintendent, scope.None(), nil)

	got, err := m.HasCapabilities(context.Background(), "u", "proj-1", []Capability{
		"daily_logs:log:create",
		"schedule:task:update",
		"budget:line:approve",
	})
	require.NoError(t, err)
	assert.Equal(t, map[Capability]bool{
		"daily_logs:log:create": true,
		"schedule:task:update":  true,
		"budget:line:approve":   false,
	}, got)
	assert.Equal(t, 1, dir.callCount("GetProjectMembership"), "batch resolves once")

	_, err = m.HasCapabilities(context.Background(), "u", "proj-1", []Capability{"ok:ok:ok", "bad"})
	assert.Error(t, err)
}

func TestHasScopedCapability(t *testing.T) {
	ctx := context.Background()
	dir, _, m := newMapperFixture(t)
	dir.addUser("sub", roles.SystemRoleUser)
	dir.setMembership("sub", "proj-1", roles.ProjectRoleSubcontractor,
		scope.Categorized(map[string][]string{"trades": {"electrical"}}), nil)
	dir.addUser("pe", roles.SystemRoleUser)
	dir.setMembership("pe", "proj-1", roles.ProjectRoleEngineer, scope.List("floor-1"), nil)

	ok, err := m.HasScopedCapability(ctx, "sub", "proj-1", "documents:drawing:read",
		scope.Categorized(map[string][]string{"trades": {"electrical"}}))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.HasScopedCapability(ctx, "sub", "proj-1", "documents:drawing:read",
		scope.Categorized(map[string][]string{"trades": {"plumbing"}}))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.HasScopedCapability(ctx, "pe", "proj-1", "documents:drawing:read", scope.List("floor-9"))
	require.NoError(t, err)
	assert.True(t, ok, "scope only restricts scope-limited roles")
}

func TestPolicyWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles:\n  VIEWER:\n    - \"documents:*:read\"\n"), 0o600))

	policy, err := LoadPolicyFile(path)
	require.NoError(t, err)
	_, _, r := newFixture(t)
	m := NewCapabilityMapper(r, policy)

	w, err := NewPolicyWatcher(path, m, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(path, []byte("roles:\n  VIEWER:\n    - \"photos:*:view\"\n"), 0o600))
	assert.Eventually(t, func() bool {
		return m.Policy().Allows(roles.ProjectRoleViewer, "photos:site:view")
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("roles:\n  VIEWER:\n    - \"photos:*:delete\"\n"), 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.True(t, m.Policy().Allows(roles.ProjectRoleViewer, "photos:site:view"), "invalid policy keeps the previous one")
}

func TestCapabilityMiddleware(t *testing.T) {
	dir, _, m := newMapperFixture(t)
	dir.addUser("viewer", roles.SystemRoleUser)
	dir.setMembership("viewer", "proj-1", roles.ProjectRoleViewer, scope.None(), nil)
	dir.addUser("sub", roles.SystemRoleUser)
	dir.setMembership("sub", "proj-1", roles.ProjectRoleSubcontractor, scope.List("electrical"), nil)

	mw := NewCapabilityMiddleware(m, nil)
	var sawRequestID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawRequestID = contextkeys.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	router := mux.NewRouter()
	router.Handle("/projects/{projectID}/drawings", mw.RequireCapability("documents:drawing:read")(handler)).Methods(http.MethodGet)
	router.Handle("/projects/{projectID}/drawings", mw.RequireCapability("documents:drawing:update")(handler)).Methods(http.MethodPut)
	router.Handle("/drawings", mw.RequireCapability("documents:drawing:read")(handler))

	do := func(method, path, userID, scopeHeader string) int {
		req := httptest.NewRequest(method, path, nil)
		if userID != "" {
			req = req.WithContext(contextkeys.WithUserID(req.Context(), userID))
		}
		if scopeHeader != "" {
			req.Header.Set(ScopeHeader, scopeHeader)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/projects/proj-1/drawings", "viewer", ""))
	assert.NotEmpty(t, sawRequestID)
	assert.Equal(t, http.StatusForbidden, do(http.MethodPut, "/projects/proj-1/drawings", "viewer", ""))
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/projects/proj-1/drawings", "", ""))
	assert.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/drawings", "viewer", ""))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/projects/proj-1/drawings", "sub", `["electrical"]`))
	assert.Equal(t, http.StatusForbidden, do(http.MethodGet, "/projects/proj-1/drawings", "sub", `["plumbing"]`))
	assert.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/projects/proj-1/drawings", "sub", `{bad`))
}
