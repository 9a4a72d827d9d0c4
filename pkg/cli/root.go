package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/config"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/engine"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
}

// Env carries the command output and the engine factory
type Env struct {
	Out  io.Writer
	Open func(ctx context.Context) (*engine.Engine, error)
}

// DefaultEnv writes to stdout and builds the engine from ACCESS_* variables
func DefaultEnv() *Env {
	return &Env{
		Out: os.Stdout,
		Open: func(ctx context.Context) (*engine.Engine, error) {
			cfg, err := config.LoadConfig()
			if err != nil {
				return nil, err
			}
			return engine.New(ctx, cfg, nil)
		},
	}
}

// NewRootCommand creates the root command
func NewRootCommand(env *Env) *Command {
	if env == nil {
		env = DefaultEnv()
	}

	root := &Command{
		Name:        "accessctl",
		Description: "accessctl - inspect effective project access",
		Subcommands: make(map[string]*Command),
	}

	// Add subcommands
	root.Subcommands["resolve"] = newResolveCommand(env)
	root.Subcommands["chain"] = newChainCommand(env)
	root.Subcommands["check"] = newCheckCommand(env)
	root.Subcommands["status"] = newStatusCommand(env)
	root.Subcommands["sweep"] = newSweepCommand(env)

	root.Run = func(args []string) error { return root.usage(env.Out) }
	return root
}

// Execute runs the command with the process arguments
func (c *Command) Execute() error {
	return c.ExecuteArgs(os.Args[1:])
}

// ExecuteArgs runs the subcommand named by args[0]
func (c *Command) ExecuteArgs(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		return c.Run(nil)
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage(w io.Writer) error {
	fmt.Fprintf(w, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(w, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// pairFlags registers the -user and -project flags shared by most commands
func pairFlags(flags *flag.FlagSet) (user, project *string, asJSON *bool) {
	user = flags.String("user", "", "User ID")
	project = flags.String("project", "", "Project ID")
	asJSON = flags.Bool("json", false, "Print JSON")
	return user, project, asJSON
}

func requirePair(user, project string) error {
	if user == "" || project == "" {
		return fmt.Errorf("both -user and -project are required")
	}
	return nil
}

// withEngine opens the engine for the duration of fn
func withEngine(env *Env, fn func(ctx context.Context, e *engine.Engine) error) error {
	ctx := context.Background()
	e, err := env.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open access engine: %w", err)
	}
	defer e.Close()
	return fn(ctx, e)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
