package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/engine"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/rbac"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/scope"
)

// ErrDenied is returned by check when any capability is denied
var ErrDenied = errors.New("access denied")

func newCheckCommand(env *Env) *Command {
	return &Command{
		Name:        "check",
		Description: "Check capabilities such as documents:drawing:read",
		Run: func(args []string) error {
			return runCheck(env, args)
		},
	}
}

func runCheck(env *Env, args []string) error {
	flags := flag.NewFlagSet("check", flag.ContinueOnError)
	flags.SetOutput(env.Out)
	user, project, asJSON := pairFlags(flags)
	capList := flags.String("capability", "", "Comma-separated capabilities (feature:resource:action)")
	scopeJSON := flags.String("scope", "", `Requested scope as JSON, e.g. ["electrical"] or {"floors":["3"]}`)

	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := requirePair(*user, *project); err != nil {
		return err
	}

	var capabilities []rbac.Capability
	for _, raw := range strings.Split(*capList, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		c, err := rbac.ParseCapability(raw)
		if err != nil {
			return err
		}
		capabilities = append(capabilities, c)
	}
	if len(capabilities) == 0 {
		return fmt.Errorf("at least one -capability is required")
	}

	requested := scope.None()
	if *scopeJSON != "" {
		if err := requested.UnmarshalJSON([]byte(*scopeJSON)); err != nil {
			return fmt.Errorf("invalid -scope: %w", err)
		}
	}

	return withEngine(env, func(ctx context.Context, e *engine.Engine) error {
		results := make(map[rbac.Capability]bool, len(capabilities))
		denied := false
		for _, c := range capabilities {
			ok, err := e.Mapper.HasScopedCapability(ctx, *user, *project, c, requested)
			if err != nil {
				return fmt.Errorf("failed to check %s: %w", c, err)
			}
			results[c] = ok
			denied = denied || !ok
		}

		if *asJSON {
			if err := writeJSON(env.Out, results); err != nil {
				return err
			}
		} else {
			w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
			for _, c := range capabilities {
				verdict := "allowed"
				if !results[c] {
					verdict = "denied"
				}
				fmt.Fprintf(w, "%s\t%s\n", c, verdict)
			}
			w.Flush()
		}

		if denied {
			return ErrDenied
		}
		return nil
	})
}
