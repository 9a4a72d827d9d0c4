package model

import (
	"time"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/roles"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/scope"
)

// User represents a platform account
type User struct {
	ID         string           `json:"id"`
	Email      string           `json:"email"`
	SystemRole roles.SystemRole `json:"system_role"`
	CreatedAt  time.Time        `json:"created_at"`
}

// IsSystemAdmin reports whether the user bypasses organization and project membership
func (u *User) IsSystemAdmin() bool {
	return u != nil && u.SystemRole == roles.SystemRoleAdmin
}

// Organization owns projects
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// OrganizationMembership binds a user to an organization role
type OrganizationMembership struct {
	UserID         string        `json:"user_id"`
	OrganizationID string        `json:"organization_id"`
	Role           roles.OrgRole `json:"role"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Project belongs to exactly one organization
type Project struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
}

// ProjectMembership is an explicit grant of a project role
type ProjectMembership struct {
	UserID     string            `json:"user_id"`
	ProjectID  string            `json:"project_id"`
	Role       roles.ProjectRole `json:"role"`
	Scope      scope.Scope       `json:"scope"`
	Expiration ExpirationState   `json:"expiration"`
	AddedBy    string            `json:"added_by,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// ExpiresAt is shorthand for m.Expiration.ExpiresAt
func (m *ProjectMembership) ExpiresAt() *time.Time {
	return m.Expiration.ExpiresAt
}

// IsExpiredAt reports whether the membership has an expiration at or before now
func (m *ProjectMembership) IsExpiredAt(now time.Time) bool {
	return m.Expiration.IsExpiredAt(now)
}

// Clone returns a deep copy so callers can mutate without aliasing a store's copy
func (m *ProjectMembership) Clone() *ProjectMembership {
	if m == nil {
		return nil
	}
	c := *m
	c.Expiration = m.Expiration.clone()
	return &c
}
