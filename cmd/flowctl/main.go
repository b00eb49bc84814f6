// flowctl edits trove flows over the HTTP API.
//
// Usage:
//
//	flowctl [--api-url URL] [--token TOKEN | --user NAME] [-o table|json|yaml] <command>
//
// Commands:
//
//	flows    list, show, create, update, delete
//	stage    add, rename, move, delete
//	node     insert, move, describe, remove
//	library  list, add
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"trove/api/internal/cli"
)

// version is set with -ldflags at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := cli.NewRootCmd(version, os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
