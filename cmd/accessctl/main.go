package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/cli"
)

func main() {
	rootCmd := cli.NewRootCommand(cli.DefaultEnv())

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, cli.ErrDenied) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
