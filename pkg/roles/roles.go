package roles

import (
	"fmt"
	"strings"
)

// SystemRole is the global role attached to a user account
type SystemRole string

const (
	SystemRoleUser  SystemRole = "USER"
	SystemRoleAdmin SystemRole = "SYSTEM_ADMIN"
)

// Valid reports whether r is a known system role
func (r SystemRole) Valid() bool {
	return r == SystemRoleUser || r == SystemRoleAdmin
}

// OrgRole represents organization-level roles
type OrgRole string

const (
	OrgRoleOwner  OrgRole = "OWNER"
	OrgRoleAdmin  OrgRole = "ORG_ADMIN"
	OrgRoleMember OrgRole = "ORG_MEMBER"
	OrgRoleGuest  OrgRole = "GUEST"
)

var orgRoleLevels = map[OrgRole]int{
	OrgRoleOwner:  100,
	OrgRoleAdmin:  80,
	OrgRoleMember: 50,
	OrgRoleGuest:  10,
}

// Level returns the privilege level of the role, 0 for unknown roles
func (r OrgRole) Level() int {
	return orgRoleLevels[r]
}

// Valid reports whether r is a known organization role
func (r OrgRole) Valid() bool {
	_, ok := orgRoleLevels[r]
	return ok
}

// AtLeast reports whether r is equal to or more privileged than other
func (r OrgRole) AtLeast(other OrgRole) bool {
	return r.Valid() && r.Level() >= other.Level()
}

// GrantsProjectInheritance reports whether holders of this role automatically
// receive the top project role on every project of the organization.
func (r OrgRole) GrantsProjectInheritance() bool {
	return r == OrgRoleOwner || r == OrgRoleAdmin
}

// DisplayName returns a human readable role name
func (r OrgRole) DisplayName() string {
	switch r {
	case OrgRoleOwner:
		return "Organization Owner"
	case OrgRoleAdmin:
		return "Organization Admin"
	case OrgRoleMember:
		return "Organization Member"
	case OrgRoleGuest:
		return "Guest"
	}
	return string(r)
}

// ProjectRole represents project-level roles
type ProjectRole string

const (
	ProjectRoleAdmin             ProjectRole = "PROJECT_ADMIN"
	ProjectRoleManager           ProjectRole = "PROJECT_MANAGER"
	ProjectRoleEngineer          ProjectRole = "PROJECT_ENGINEER"
	ProjectRoleSuperintendent    ProjectRole = "SUPERINTENDENT"
	ProjectRoleArchitectEngineer ProjectRole = "ARCHITECT_ENGINEER"
	ProjectRoleForeman           ProjectRole = "FOREMAN"
	ProjectRoleSubcontractor     ProjectRole = "SUBCONTRACTOR"
	ProjectRoleOwnerRep          ProjectRole = "OWNER_REP"
	ProjectRoleInspector         ProjectRole = "INSPECTOR"
	ProjectRoleViewer            ProjectRole = "VIEWER"

	// ProjectRoleNone is the zero value and means no access
	ProjectRoleNone ProjectRole = ""
)

// TopProjectRole is the role granted by every form of inheritance
const TopProjectRole = ProjectRoleAdmin

type projectRoleInfo struct {
	level        int
	displayName  string
	manages      bool
	readOnly     bool
	scopeLimited bool
}

var projectRoleTable = map[ProjectRole]projectRoleInfo{
	ProjectRoleAdmin:             {level: 100, displayName: "Project Admin", manages: true},
	ProjectRoleManager:           {level: 90, displayName: "Project Manager", manages: true},
	ProjectRoleEngineer:          {level: 80, displayName: "Project Engineer"},
	ProjectRoleSuperintendent:    {level: 70, displayName: "Superintendent"},
	ProjectRoleArchitectEngineer: {level: 60, displayName: "Architect / Engineer"},
	ProjectRoleForeman:           {level: 50, displayName: "Foreman", scopeLimited: true},
	ProjectRoleSubcontractor:     {level: 40, displayName: "Subcontractor", scopeLimited: true},
	ProjectRoleOwnerRep:          {level: 30, displayName: "Owner's Representative", readOnly: true},
	ProjectRoleInspector:         {level: 20, displayName: "Inspector", readOnly: true},
	ProjectRoleViewer:            {level: 10, displayName: "Viewer", readOnly: true},
}

// AllProjectRoles returns every project role ordered from most to least privileged
func AllProjectRoles() []ProjectRole {
	return []ProjectRole{
		ProjectRoleAdmin,
		ProjectRoleManager,
		ProjectRoleEngineer,
		ProjectRoleSuperintendent,
		ProjectRoleArchitectEngineer,
		ProjectRoleForeman,
		ProjectRoleSubcontractor,
		ProjectRoleOwnerRep,
		ProjectRoleInspector,
		ProjectRoleViewer,
	}
}

// ParseProjectRole parses a role name, accepting any letter case
func ParseProjectRole(s string) (ProjectRole, error) {
	r := ProjectRole(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return ProjectRoleNone, fmt.Errorf("unknown project role %q", s)
	}
	return r, nil
}

// ParseOrgRole parses an organization role name, accepting any letter case
func ParseOrgRole(s string) (OrgRole, error) {
	r := OrgRole(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown organization role %q", s)
	}
	return r, nil
}

// Valid reports whether r is a known project role. ProjectRoleNone is not valid.
func (r ProjectRole) Valid() bool {
	_, ok := projectRoleTable[r]
	return ok
}

// IsNone reports whether r represents the absence of access
func (r ProjectRole) IsNone() bool {
	return r == ProjectRoleNone
}

// Level returns the privilege level of the role, 0 for none or unknown
func (r ProjectRole) Level() int {
	return projectRoleTable[r].level
}

// AtLeast reports whether r is equal to or more privileged than other
func (r ProjectRole) AtLeast(other ProjectRole) bool {
	return r.Valid() && r.Level() >= other.Level()
}

// IsTop reports whether r is the highest project role
func (r ProjectRole) IsTop() bool {
	return r == TopProjectRole
}

// CanManageMembers reports whether the role may add, edit or remove other members
func (r ProjectRole) CanManageMembers() bool {
	return projectRoleTable[r].manages
}

// IsReadOnly reports whether the role is barred from editing project data
func (r ProjectRole) IsReadOnly() bool {
	return projectRoleTable[r].readOnly
}

// IsScopeLimited reports whether a membership scope narrows this role's access
func (r ProjectRole) IsScopeLimited() bool {
	return projectRoleTable[r].scopeLimited
}

// DisplayName returns a human readable role name
func (r ProjectRole) DisplayName() string {
	if info, ok := projectRoleTable[r]; ok {
		return info.displayName
	}
	if r.IsNone() {
		return "No access"
	}
	return string(r)
}

func (r ProjectRole) String() string {
	if r.IsNone() {
		return "NONE"
	}
	return string(r)
}
