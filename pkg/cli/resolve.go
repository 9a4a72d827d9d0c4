package cli

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/engine"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/rbac"
)

func newResolveCommand(env *Env) *Command {
	return &Command{
		Name:        "resolve",
		Description: "Resolve a user's effective role on a project",
		Run: func(args []string) error {
			return runResolve(env, args)
		},
	}
}

func runResolve(env *Env, args []string) error {
	flags := flag.NewFlagSet("resolve", flag.ContinueOnError)
	flags.SetOutput(env.Out)
	user, project, asJSON := pairFlags(flags)
	fresh := flags.Bool("fresh", false, "Bypass the resolution cache")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := requirePair(*user, *project); err != nil {
		return err
	}

	return withEngine(env, func(ctx context.Context, e *engine.Engine) error {
		resolve := e.Resolver.Resolve
		if *fresh {
			resolve = e.Resolver.ResolveFresh
		}
		result, err := resolve(ctx, *user, *project)
		if err != nil {
			return fmt.Errorf("failed to resolve access: %w", err)
		}

		if *asJSON {
			return writeJSON(env.Out, result)
		}
		printResult(env, result)
		return nil
	})
}

func printResult(env *Env, result *rbac.EffectiveRoleResult) {
	w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	role := "none"
	if result.HasRole() {
		role = fmt.Sprintf("%s (%s)", result.Role, result.Role.DisplayName())
	}
	fmt.Fprintf(w, "Role:\t%s\n", role)
	fmt.Fprintf(w, "Source:\t%s\n", result.Source)
	fmt.Fprintf(w, "Inherited:\t%t\n", result.IsInherited)
	if result.OrganizationRole != "" {
		fmt.Fprintf(w, "Organization:\t%s (%s)\n", result.OrganizationID, result.OrganizationRole)
	}
	if result.Scope.HasLimitations() {
		fmt.Fprintf(w, "Scope:\t%s\n", result.Scope)
	}
	if result.ExpiresAt != nil {
		fmt.Fprintf(w, "Expires:\t%s\n", result.ExpiresAt.UTC().Format(time.RFC3339))
	}
}

func newChainCommand(env *Env) *Command {
	return &Command{
		Name:        "chain",
		Description: "Explain how a user's project access is derived",
		Run: func(args []string) error {
			return runChain(env, args)
		},
	}
}

func runChain(env *Env, args []string) error {
	flags := flag.NewFlagSet("chain", flag.ContinueOnError)
	flags.SetOutput(env.Out)
	user, project, asJSON := pairFlags(flags)

	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := requirePair(*user, *project); err != nil {
		return err
	}

	return withEngine(env, func(ctx context.Context, e *engine.Engine) error {
		chain, err := e.Resolver.InheritanceChain(ctx, *user, *project)
		if err != nil {
			return fmt.Errorf("failed to build inheritance chain: %w", err)
		}

		if *asJSON {
			return writeJSON(env.Out, chain)
		}

		w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintln(w, "LEVEL\tROLE\tDESCRIPTION")
		for _, step := range chain {
			fmt.Fprintf(w, "%s\t%s\t%s\n", step.Level, step.Role, step.Description)
		}
		return nil
	})
}
