package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vk/cellgrid/internal/cli"
)

// main is the entrypoint for the cellgrid application.
func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and maps its error onto an exit code.
func run(ctx context.Context, args []string, outW, errW io.Writer) int {
	err := cli.Execute(ctx, args, outW, errW)
	if err == nil {
		return 0
	}
	fmt.Fprintln(errW, err)

	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
