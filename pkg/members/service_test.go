package members

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/model"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/rbac"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/roles"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/scope"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/storage"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ctx      context.Context
	store    *storage.MemoryStore
	resolver *rbac.Resolver
	service  *Service
}

// setupService builds organization o1 with project p1:
//
//	owner     OWNER
//	orgadmin  ORG_ADMIN
//	sysadmin  SYSTEM_ADMIN, no memberships
//	padmin    PROJECT_ADMIN on p1
//	pm        PROJECT_MANAGER on p1
//	viewer    VIEWER on p1
//	newbie    no memberships
func setupService(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()

	require.NoError(t, store.PutOrganization(ctx, &model.Organization{ID: "o1", Name: "Acme"}))
	require.NoError(t, store.PutProject(ctx, &model.Project{ID: "p1", OrganizationID: "o1"}))
	for _, id := range []string{"owner", "orgadmin", "padmin", "pm", "viewer", "newbie"} {
		require.NoError(t, store.PutUser(ctx, &model.User{ID: id, SystemRole: roles.SystemRoleUser}))
	}
	require.NoError(t, store.PutUser(ctx, &model.User{ID: "sysadmin", SystemRole: roles.SystemRoleAdmin}))

	setOrg := func(user string, role roles.OrgRole) {
		_, err := store.MutateOrganizationMembership(ctx, user, "o1", func(*model.OrganizationMembership, int) (*model.OrganizationMembership, error) {
			return &model.OrganizationMembership{Role: role}, nil
		})
		require.NoError(t, err)
	}
	setOrg("owner", roles.OrgRoleOwner)
	setOrg("orgadmin", roles.OrgRoleAdmin)
	setOrg("pm", roles.OrgRoleMember)

	for user, role := range map[string]roles.ProjectRole{
		"padmin": roles.ProjectRoleAdmin,
		"pm":     roles.ProjectRoleManager,
		"viewer": roles.ProjectRoleViewer,
	} {
		require.NoError(t, store.PutProjectMembership(ctx, &model.ProjectMembership{
			UserID: user, ProjectID: "p1", Role: role, Expiration: model.NewExpirationState(nil),
		}))
	}

	clock := func() time.Time { return testNow }
	resolver := rbac.NewResolver(store, rbac.WithClock(clock))
	return &fixture{
		ctx:      ctx,
		store:    store,
		resolver: resolver,
		service:  NewService(store, resolver, WithClock(clock)),
	}
}

func (f *fixture) role(t *testing.T, userID string) rbac.Source {
	t.Helper()
	res, err := f.resolver.Resolve(f.ctx, userID, "p1")
	require.NoError(t, err)
	return res.Source
}

func TestAddProjectMember(t *testing.T) {
	f := setupService(t)
	assert.Equal(t, rbac.SourceNone, f.role(t, "newbie"), "prime the cache with no access")

	exp := testNow.Add(30 * 24 * time.Hour)
	m, err := f.service.AddProjectMember(f.ctx, AddProjectMemberRequest{
		ProjectID:   "p1",
		UserID:      "newbie",
		Role:        roles.ProjectRoleForeman,
		Scope:       scope.List("electrical"),
		ExpiresAt:   &exp,
		RequestedBy: "pm",
	})
	require.NoError(t, err)
	assert.Equal(t, "pm", m.AddedBy)

	res, err := f.resolver.Resolve(f.ctx, "newbie", "p1")
	require.NoError(t, err)
	assert.Equal(t, rbac.SourceExplicit, res.Source)
	assert.Equal(t, roles.ProjectRoleForeman, res.Role)
	require.NotNil(t, res.ExpiresAt)
	assert.True(t, res.ExpiresAt.Equal(exp))
}

func TestAddProjectMember_Rejections(t *testing.T) {
	past := testNow.Add(-time.Hour)

	tests := []struct {
		name    string
		req     AddProjectMemberRequest
		checkFn func(error) bool
	}{
		{
			name:    "viewer cannot manage members",
			req:     AddProjectMemberRequest{ProjectID: "p1", UserID: "newbie", Role: roles.ProjectRoleViewer, RequestedBy: "viewer"},
			checkFn: model.IsForbidden,
		},
		{
			name:    "manager cannot grant admin",
			req:     AddProjectMemberRequest{ProjectID: "p1", UserID: "newbie", Role: roles.ProjectRoleAdmin, RequestedBy: "pm"},
			checkFn: model.IsForbidden,
		},
		{
			name:    "inherited target",
			req:     AddProjectMemberRequest{ProjectID: "p1", UserID: "orgadmin", Role: roles.ProjectRoleViewer, RequestedBy: "padmin"},
			checkFn: model.IsForbidden,
		},
		{
			name:    "already a member",
			req:     AddProjectMemberRequest{ProjectID: "p1", UserID: "viewer", Role: roles.ProjectRoleViewer, RequestedBy: "padmin"},
			checkFn: model.IsInvalidState,
		},
		{
			name:    "unknown role",
			req:     AddProjectMemberRequest{ProjectID: "p1", UserID: "newbie", Role: roles.ProjectRole("CRANE_OPERATOR"), RequestedBy: "padmin"},
			checkFn: model.IsInvalidState,
		},
		{
			name:    "past expiration",
			req:     AddProjectMemberRequest{ProjectID: "p1", UserID: "newbie", Role: roles.ProjectRoleViewer, ExpiresAt: &past, RequestedBy: "padmin"},
			checkFn: model.IsInvalidState,
		},
		{
			name:    "unknown user",
			req:     AddProjectMemberRequest{ProjectID: "p1", UserID: "ghost", Role: roles.ProjectRoleViewer, RequestedBy: "padmin"},
			checkFn: model.IsNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupService(t)
			_, err := f.service.AddProjectMember(f.ctx, tt.req)
			require.Error(t, err)
			assert.True(t, tt.checkFn(err), "unexpected error: %v", err)
		})
	}
}

func TestUpdateProjectMember(t *testing.T) {
	f := setupService(t)
	superintendent := roles.ProjectRoleSuperintendent
	sc := scope.Categorized(map[string][]string{"floors": {"3"}})

	// a manager may change scope but not roles
	_, err := f.service.UpdateProjectMember(f.ctx, UpdateProjectMemberRequest{ProjectID: "p1", UserID: "viewer", Role: &superintendent, RequestedBy: "pm"})
	require.Error(t, err)
	assert.True(t, model.IsForbidden(err))
	assert.Contains(t, err.Error(), "only Project Admin can change project roles")

	m, err := f.service.UpdateProjectMember(f.ctx, UpdateProjectMemberRequest{ProjectID: "p1", UserID: "viewer", Scope: &sc, RequestedBy: "pm"})
	require.NoError(t, err)
	assert.True(t, m.Scope.Equal(sc))

	assert.Equal(t, rbac.SourceExplicit, f.role(t, "viewer"))
	m, err = f.service.UpdateProjectMember(f.ctx, UpdateProjectMemberRequest{ProjectID: "p1", UserID: "viewer", Role: &superintendent, RequestedBy: "padmin"})
	require.NoError(t, err)
	assert.Equal(t, superintendent, m.Role)

	res, err := f.resolver.Resolve(f.ctx, "viewer", "p1")
	require.NoError(t, err)
	assert.Equal(t, superintendent, res.Role, "cache was invalidated")

	_, err = f.service.UpdateProjectMember(f.ctx, UpdateProjectMemberRequest{ProjectID: "p1", UserID: "owner", Role: &superintendent, RequestedBy: "padmin"})
	assert.True(t, model.IsForbidden(err), "inherited members are managed through the organization")

	_, err = f.service.UpdateProjectMember(f.ctx, UpdateProjectMemberRequest{ProjectID: "p1", UserID: "newbie", Scope: &sc, RequestedBy: "padmin"})
	assert.True(t, model.IsNotFound(err))
}

func TestRemoveProjectMember(t *testing.T) {
	f := setupService(t)
	assert.Equal(t, rbac.SourceExplicit, f.role(t, "viewer"))

	require.NoError(t, f.service.RemoveProjectMember(f.ctx, "p1", "viewer", "pm"))
	assert.Equal(t, rbac.SourceNone, f.role(t, "viewer"))

	err := f.service.RemoveProjectMember(f.ctx, "p1", "viewer", "pm")
	assert.True(t, model.IsNotFound(err))

	err = f.service.RemoveProjectMember(f.ctx, "p1", "owner", "padmin")
	assert.True(t, model.IsForbidden(err))

	err = f.service.RemoveProjectMember(f.ctx, "p1", "pm", "newbie")
	assert.True(t, model.IsForbidden(err))
}

func TestSetOrganizationRole(t *testing.T) {
	f := setupService(t)
	assert.Equal(t, rbac.SourceExplicit, f.role(t, "pm"))

	m, err := f.service.SetOrganizationRole(f.ctx, "o1", "pm", roles.OrgRoleAdmin, "orgadmin")
	require.NoError(t, err)
	assert.Equal(t, roles.OrgRoleAdmin, m.Role)
	assert.Equal(t, rbac.SourceOrgAdmin, f.role(t, "pm"), "promotion cascades immediately")

	_, err = f.service.SetOrganizationRole(f.ctx, "o1", "pm", roles.OrgRoleMember, "orgadmin")
	require.NoError(t, err)
	assert.Equal(t, rbac.SourceExplicit, f.role(t, "pm"), "explicit membership applies again after demotion")

	_, err = f.service.SetOrganizationRole(f.ctx, "o1", "newbie", roles.OrgRoleGuest, "orgadmin")
	require.NoError(t, err)
	om, err := f.store.GetOrganizationMembership(f.ctx, "newbie", "o1")
	require.NoError(t, err)
	assert.Equal(t, roles.OrgRoleGuest, om.Role)
}

func TestSetOrganizationRole_Owners(t *testing.T) {
	f := setupService(t)

	_, err := f.service.SetOrganizationRole(f.ctx, "o1", "pm", roles.OrgRoleOwner, "orgadmin")
	assert.True(t, model.IsForbidden(err), "only owners grant ownership")

	_, err = f.service.SetOrganizationRole(f.ctx, "o1", "owner", roles.OrgRoleMember, "orgadmin")
	assert.True(t, model.IsForbidden(err), "only owners revoke ownership")

	_, err = f.service.SetOrganizationRole(f.ctx, "o1", "owner", roles.OrgRoleAdmin, "owner")
	require.Error(t, err)
	assert.True(t, model.IsInvalidState(err))
	assert.Contains(t, err.Error(), "at least one owner")

	_, err = f.service.SetOrganizationRole(f.ctx, "o1", "orgadmin", roles.OrgRoleOwner, "sysadmin")
	require.NoError(t, err)

	_, err = f.service.SetOrganizationRole(f.ctx, "o1", "owner", roles.OrgRoleMember, "orgadmin")
	require.NoError(t, err, "a second owner may step the first down")
	assert.Equal(t, rbac.SourceNone, f.role(t, "owner"))

	_, err = f.service.SetOrganizationRole(f.ctx, "o1", "pm", roles.OrgRoleAdmin, "viewer")
	assert.True(t, model.IsForbidden(err))

	_, err = f.service.SetOrganizationRole(f.ctx, "o1", "pm", roles.OrgRole("CEO"), "owner")
	assert.True(t, model.IsInvalidState(err))
}

func TestRemoveOrganizationMember(t *testing.T) {
	f := setupService(t)
	assert.Equal(t, rbac.SourceOrgAdmin, f.role(t, "orgadmin"))

	require.NoError(t, f.service.RemoveOrganizationMember(f.ctx, "o1", "orgadmin", "owner"))
	assert.Equal(t, rbac.SourceNone, f.role(t, "orgadmin"))

	err := f.service.RemoveOrganizationMember(f.ctx, "o1", "orgadmin", "owner")
	assert.True(t, model.IsNotFound(err))

	err = f.service.RemoveOrganizationMember(f.ctx, "o1", "owner", "owner")
	assert.True(t, model.IsInvalidState(err), "last owner stays")

	err = f.service.RemoveOrganizationMember(f.ctx, "o1", "pm", "newbie")
	assert.True(t, model.IsForbidden(err))
}
