package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectRoleHierarchy(t *testing.T) {
	all := AllProjectRoles()
	require.Len(t, all, 10)
	assert.Equal(t, TopProjectRole, all[0])

	for i := 1; i < len(all); i++ {
		assert.Greater(t, all[i-1].Level(), all[i].Level(), "%s should outrank %s", all[i-1], all[i])
	}

	assert.True(t, ProjectRoleAdmin.AtLeast(ProjectRoleManager))
	assert.True(t, ProjectRoleViewer.AtLeast(ProjectRoleViewer))
	assert.False(t, ProjectRoleViewer.AtLeast(ProjectRoleInspector))
	assert.False(t, ProjectRoleNone.AtLeast(ProjectRoleViewer))
}

func TestProjectRoleFlags(t *testing.T) {
	tests := []struct {
		role         ProjectRole
		manages      bool
		readOnly     bool
		scopeLimited bool
	}{
		{ProjectRoleAdmin, true, false, false},
		{ProjectRoleManager, true, false, false},
		{ProjectRoleEngineer, false, false, false},
		{ProjectRoleSuperintendent, false, false, false},
		{ProjectRoleArchitectEngineer, false, false, false},
		{ProjectRoleForeman, false, false, true},
		{ProjectRoleSubcontractor, false, false, true},
		{ProjectRoleOwnerRep, false, true, false},
		{ProjectRoleInspector, false, true, false},
		{ProjectRoleViewer, false, true, false},
		{ProjectRoleNone, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.role.String(), func(t *testing.T) {
			assert.Equal(t, tt.manages, tt.role.CanManageMembers())
			assert.Equal(t, tt.readOnly, tt.role.IsReadOnly())
			assert.Equal(t, tt.scopeLimited, tt.role.IsScopeLimited())
		})
	}

	managers := 0
	for _, r := range AllProjectRoles() {
		if r.CanManageMembers() {
			managers++
		}
	}
	assert.Equal(t, 2, managers, "exactly two roles may manage members")
}

func TestOrgRoles(t *testing.T) {
	assert.True(t, OrgRoleOwner.GrantsProjectInheritance())
	assert.True(t, OrgRoleAdmin.GrantsProjectInheritance())
	assert.False(t, OrgRoleMember.GrantsProjectInheritance())
	assert.False(t, OrgRoleGuest.GrantsProjectInheritance())

	assert.True(t, OrgRoleOwner.AtLeast(OrgRoleAdmin))
	assert.True(t, OrgRoleAdmin.AtLeast(OrgRoleMember))
	assert.False(t, OrgRoleGuest.AtLeast(OrgRoleMember))
	assert.False(t, OrgRole("bogus").AtLeast(OrgRoleGuest))
}

func TestParseRoles(t *testing.T) {
	r, err := ParseProjectRole(" project_manager ")
	require.NoError(t, err)
	assert.Equal(t, ProjectRoleManager, r)

	_, err = ParseProjectRole("janitor")
	assert.Error(t, err)

	_, err = ParseProjectRole("")
	assert.Error(t, err)

	o, err := ParseOrgRole("org_admin")
	require.NoError(t, err)
	assert.Equal(t, OrgRoleAdmin, o)

	_, err = ParseOrgRole("superuser")
	assert.Error(t, err)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Project Admin", ProjectRoleAdmin.DisplayName())
	assert.Equal(t, "No access", ProjectRoleNone.DisplayName())
	assert.Equal(t, "NONE", ProjectRoleNone.String())
	assert.True(t, SystemRoleAdmin.Valid())
	assert.False(t, SystemRole("root").Valid())
}
