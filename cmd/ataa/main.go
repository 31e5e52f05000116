package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/ataa/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		// Commands render their own failures; only cobra's usage and flag
		// errors reach stderr here.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
