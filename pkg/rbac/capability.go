package rbac

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/roles"
)

// Capability is a feature:resource:action string. Any segment of a granted
// capability may be "*".
type Capability string

// CapabilityAll grants everything
const CapabilityAll Capability = "*:*:*"

const wildcard = "*"

// readActions are the only actions a read-only role may be granted
var readActions = map[string]bool{
	"read":     true,
	"view":     true,
	"list":     true,
	"download": true,
}

// ParseCapability validates the three-segment shape
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.TrimSpace(s))
	if !c.Valid() {
		return "", fmt.Errorf("invalid capability %q: expected feature:resource:action", s)
	}
	return c, nil
}

// Valid reports whether c has three non-empty segments
func (c Capability) Valid() bool {
	parts := strings.Split(string(c), ":")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

// Segments splits c into feature, resource and action
func (c Capability) Segments() (feature, resource, action string) {
	parts := strings.SplitN(string(c), ":", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return parts[0], parts[1], parts[2]
}

// Matches reports whether the granted pattern c covers requested. A "*" in a
// requested segment is literal and only matches a granted "*".
func (c Capability) Matches(requested Capability) bool {
	gf, gr, ga := c.Segments()
	rf, rr, ra := requested.Segments()
	return segmentMatches(gf, rf) && segmentMatches(gr, rr) && segmentMatches(ga, ra)
}

func segmentMatches(granted, requested string) bool {
	return granted == wildcard || granted == requested
}

// Policy maps project roles to granted capabilities
type Policy struct {
	grants map[roles.ProjectRole][]Capability
}

// NewPolicy validates grants and builds a policy. The top role always holds
// CapabilityAll and read-only roles may only hold read-class actions.
func NewPolicy(grants map[roles.ProjectRole][]Capability) (*Policy, error) {
	p := &Policy{grants: make(map[roles.ProjectRole][]Capability, len(grants)+1)}

	for role, caps := range grants {
		if !role.Valid() {
			return nil, fmt.Errorf("unknown project role %q in policy", role)
		}
		seen := make(map[Capability]bool, len(caps))
		out := make([]Capability, 0, len(caps))
		for _, c := range caps {
			if !c.Valid() {
				return nil, fmt.Errorf("role %s: invalid capability %q", role, c)
			}
			if role.IsReadOnly() {
				if _, _, action := c.Segments(); !readActions[action] {
					return nil, fmt.Errorf("role %s is read-only and cannot be granted %q", role, c)
				}
			}
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
		p.grants[role] = out
	}

	p.grants[roles.TopProjectRole] = []Capability{CapabilityAll}
	return p, nil
}

// Grants returns the capabilities granted to role, sorted
func (p *Policy) Grants(role roles.ProjectRole) []Capability {
	caps := append([]Capability(nil), p.grants[role]...)
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// Allows reports whether role is granted capability
func (p *Policy) Allows(role roles.ProjectRole, capability Capability) bool {
	if p == nil || role.IsNone() {
		return false
	}
	for _, granted := range p.grants[role] {
		if granted.Matches(capability) {
			return true
		}
	}
	return false
}

// policyFile is the YAML shape of a policy:
//
//	roles:
//	  PROJECT_MANAGER:
//	    - "*:*:read"
//	    - "project:members:manage"
type policyFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadPolicy parses a YAML policy
func LoadPolicy(r io.Reader) (*Policy, error) {
	var file policyFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("policy is empty")
		}
		return nil, fmt.Errorf("failed to decode policy: %w", err)
	}

	grants := make(map[roles.ProjectRole][]Capability, len(file.Roles))
	for name, caps := range file.Roles {
		role, err := roles.ParseProjectRole(name)
		if err != nil {
			return nil, err
		}
		for _, raw := range caps {
			c, err := ParseCapability(raw)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", role, err)
			}
			grants[role] = append(grants[role], c)
		}
	}
	return NewPolicy(grants)
}

// LoadPolicyFile reads a YAML policy from disk
func LoadPolicyFile(path string) (*Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy file: %w", err)
	}
	defer f.Close()
	return LoadPolicy(f)
}

// DefaultPolicy returns the built-in construction project policy
func DefaultPolicy() *Policy {
	p, err := NewPolicy(map[roles.ProjectRole][]Capability{
		roles.ProjectRoleManager: {
			"*:*:read", "*:*:list", "*:*:create", "*:*:update", "*:*:delete", "*:*:approve",
			"project:members:manage",
		},
		roles.ProjectRoleEngineer: {
			"*:*:read", "*:*:list",
			"documents:*:create", "documents:*:update",
			"rfis:*:create", "rfis:*:update",
			"submittals:*:create", "submittals:*:update",
			"daily_logs:*:create",
		},
		roles.ProjectRoleSuperintendent: {
			"*:*:read", "*:*:list",
			"daily_logs:*:create", "daily_logs:*:update",
			"punch_list:*:create", "punch_list:*:update",
			"safety:*:create", "schedule:*:update",
		},
		roles.ProjectRoleArchitectEngineer: {
			"documents:*:read", "documents:drawing:update",
			"rfis:*:read", "rfis:rfi:respond",
			"submittals:*:read", "submittals:submittal:review",
		},
		roles.ProjectRoleForeman: {
			"documents:*:read", "schedule:*:read",
			"daily_logs:*:read", "daily_logs:*:create",
			"punch_list:*:read", "punch_list:item:update",
			"safety:*:create",
		},
		roles.ProjectRoleSubcontractor: {
			"documents:*:read", "rfis:*:read", "rfis:rfi:create",
			"submittals:*:read", "submittals:submittal:create",
			"punch_list:*:read", "punch_list:item:update",
		},
		roles.ProjectRoleOwnerRep: {
			"*:*:read", "*:*:list", "*:*:download",
		},
		roles.ProjectRoleInspector: {
			"documents:*:read", "inspections:*:read", "punch_list:*:read",
			"safety:*:read", "daily_logs:*:read",
		},
		roles.ProjectRoleViewer: {
			"documents:*:read", "schedule:*:read", "photos:*:view",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("rbac: invalid default policy: %v", err))
	}
	return p
}
