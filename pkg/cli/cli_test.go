package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/config"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/engine"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/rbac"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/roles"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/storage"
)

// newTestRoot returns a root command over the example fixture
func newTestRoot(t *testing.T) (*Command, *bytes.Buffer) {
	t.Helper()

	s := storage.DefaultConfig()
	s.FixturePath = filepath.Join("..", "..", "examples", "fixture.yaml")
	cfg := &config.Config{
		Storage:  s,
		Cache:    config.CacheConfig{Type: "memory", TTL: rbac.DefaultCacheTTL, MaxEntries: 100},
		Notifier: config.NotifierConfig{Schedule: "@hourly", MaxWorkers: 1},
	}

	out := &bytes.Buffer{}
	env := &Env{
		Out: out,
		Open: func(ctx context.Context) (*engine.Engine, error) {
			return engine.New(ctx, cfg, nil)
		},
	}
	return NewRootCommand(env), out
}

func TestNewRootCommand(t *testing.T) {
	root, out := newTestRoot(t)

	assert.Equal(t, "accessctl", root.Name)
	for _, name := range []string{"resolve", "chain", "check", "status", "sweep"} {
		assert.Contains(t, root.Subcommands, name, "Expected subcommand %s to be registered", name)
	}
	assert.Len(t, root.Subcommands, 5)

	require.NoError(t, root.ExecuteArgs(nil))
	assert.Contains(t, out.String(), "Usage: accessctl <command> [args]")
	assert.Contains(t, out.String(), "resolve")

	err := root.ExecuteArgs([]string{"grant"})
	assert.EqualError(t, err, "unknown command: grant")
}

func TestResolveCommand(t *testing.T) {
	t.Run("explicit membership", func(t *testing.T) {
		root, out := newTestRoot(t)
		require.NoError(t, root.ExecuteArgs([]string{"resolve", "-user", "electrician", "-project", "tower"}))

		output := out.String()
		assert.Contains(t, output, "SUBCONTRACTOR")
		assert.Contains(t, output, "explicit")
		assert.Contains(t, output, "Scope:")
		assert.Contains(t, output, "Expires:")
	})

	t.Run("inherited json", func(t *testing.T) {
		root, out := newTestRoot(t)
		require.NoError(t, root.ExecuteArgs([]string{"resolve", "-user", "orgadmin", "-project", "tower", "-json", "-fresh"}))

		var result rbac.EffectiveRoleResult
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.Equal(t, roles.ProjectRoleAdmin, result.Role)
		assert.Equal(t, rbac.SourceOrgAdmin, result.Source)
		assert.True(t, result.IsInherited)
	})

	t.Run("missing flags", func(t *testing.T) {
		root, _ := newTestRoot(t)
		err := root.ExecuteArgs([]string{"resolve", "-user", "pm"})
		assert.ErrorContains(t, err, "both -user and -project are required")
	})
}

func TestChainCommand(t *testing.T) {
	root, out := newTestRoot(t)
	require.NoError(t, root.ExecuteArgs([]string{"chain", "-user", "orgadmin", "-project", "tower"}))

	output := out.String()
	assert.Contains(t, output, "LEVEL")
	assert.Contains(t, output, "organization")
	assert.Contains(t, output, "Inherits")
}

func TestCheckCommand(t *testing.T) {
	t.Run("allowed within scope", func(t *testing.T) {
		root, out := newTestRoot(t)
		err := root.ExecuteArgs([]string{"check",
			"-user", "electrician", "-project", "tower",
			"-capability", "documents:drawing:read",
			"-scope", `["electrical"]`,
		})
		require.NoError(t, err)
		assert.Contains(t, out.String(), "allowed")
	})

	t.Run("denied outside scope", func(t *testing.T) {
		root, out := newTestRoot(t)
		err := root.ExecuteArgs([]string{"check",
			"-user", "electrician", "-project", "tower",
			"-capability", "documents:drawing:read",
			"-scope", `["plumbing"]`,
		})
		assert.ErrorIs(t, err, ErrDenied)
		assert.Contains(t, out.String(), "denied")
	})

	t.Run("invalid capability", func(t *testing.T) {
		root, _ := newTestRoot(t)
		err := root.ExecuteArgs([]string{"check", "-user", "pm", "-project", "tower", "-capability", "documents"})
		assert.Error(t, err)
	})

	t.Run("no capability", func(t *testing.T) {
		root, _ := newTestRoot(t)
		err := root.ExecuteArgs([]string{"check", "-user", "pm", "-project", "tower"})
		assert.ErrorContains(t, err, "at least one -capability is required")
	})
}

func TestStatusCommand(t *testing.T) {
	root, out := newTestRoot(t)
	require.NoError(t, root.ExecuteArgs([]string{"status", "-user", "inspector", "-project", "tower"}))
	assert.Contains(t, out.String(), "ACTIVE")
	assert.Contains(t, out.String(), "Days left:")

	root, out = newTestRoot(t)
	require.NoError(t, root.ExecuteArgs([]string{"status", "-user", "orgadmin", "-project", "tower"}))
	assert.Contains(t, out.String(), "NO_EXPIRATION")
}

func TestSweepCommand(t *testing.T) {
	root, out := newTestRoot(t)
	require.NoError(t, root.ExecuteArgs([]string{"sweep"}))
	assert.Contains(t, out.String(), "Swept 1 projects")
}
