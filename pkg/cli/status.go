package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/engine"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/notify"
)

func newStatusCommand(env *Env) *Command {
	return &Command{
		Name:        "status",
		Description: "Show the expiration and renewal status of a membership",
		Run: func(args []string) error {
			return runStatus(env, args)
		},
	}
}

func runStatus(env *Env, args []string) error {
	flags := flag.NewFlagSet("status", flag.ContinueOnError)
	flags.SetOutput(env.Out)
	user, project, asJSON := pairFlags(flags)

	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := requirePair(*user, *project); err != nil {
		return err
	}

	return withEngine(env, func(ctx context.Context, e *engine.Engine) error {
		check, err := e.Expiration.CheckExpiration(ctx, *user, *project)
		if err != nil {
			return fmt.Errorf("failed to check expiration: %w", err)
		}

		if *asJSON {
			return writeJSON(env.Out, check)
		}

		w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintf(w, "Status:\t%s\n", check.Status)
		fmt.Fprintf(w, "Inherited:\t%t\n", check.IsInherited)
		if check.ExpiresAt != nil {
			fmt.Fprintf(w, "Expires:\t%s\n", check.ExpiresAt.UTC().Format(time.RFC3339))
		}
		if check.DaysUntilExpiration != nil {
			fmt.Fprintf(w, "Days left:\t%d\n", *check.DaysUntilExpiration)
		}
		fmt.Fprintf(w, "Renewal:\t%s\n", check.Renewal.Status)
		if check.Renewal.Requested {
			fmt.Fprintf(w, "Requested by:\t%s\n", check.Renewal.RequestedBy)
			if check.Renewal.Reason != "" {
				fmt.Fprintf(w, "Reason:\t%s\n", check.Renewal.Reason)
			}
		}
		return nil
	})
}

func newSweepCommand(env *Env) *Command {
	return &Command{
		Name:        "sweep",
		Description: "Run one expiration notification sweep",
		Run: func(args []string) error {
			return runSweep(env, args)
		},
	}
}

func runSweep(env *Env, args []string) error {
	flags := flag.NewFlagSet("sweep", flag.ContinueOnError)
	flags.SetOutput(env.Out)
	asJSON := flags.Bool("json", false, "Print JSON")

	if err := flags.Parse(args); err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	return withEngine(env, func(ctx context.Context, e *engine.Engine) error {
		result, err := e.Sweeper(notify.NewLogNotifier(logger)).Run(ctx)
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}

		if *asJSON {
			return writeJSON(env.Out, result)
		}
		fmt.Fprintf(env.Out, "Swept %d projects: %d sent, %d already sent, %d failed\n",
			result.Projects, result.Sent, result.AlreadySent, result.Failed)
		return nil
	})
}
