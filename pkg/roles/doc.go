// Package roles defines the static role hierarchy used by access resolution.
//
// Three independent role families exist:
//
//	SystemRole   USER | SYSTEM_ADMIN
//	OrgRole      OWNER > ORG_ADMIN > ORG_MEMBER > GUEST
//	ProjectRole  PROJECT_ADMIN > PROJECT_MANAGER > PROJECT_ENGINEER > ... > VIEWER
//
// Organization OWNER and ORG_ADMIN cascade into TopProjectRole on every
// project of their organization. Project roles additionally carry three
// flags: whether they may manage other members, whether they are read-only,
// and whether their access can be narrowed by a membership scope.
package roles
