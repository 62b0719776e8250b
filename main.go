package main

import (
	"context"
	"os"

	"github.com/isometry/dlsync/internal/cli"
)

// Set by goreleaser.
var version = "dev"

func main() {
	if err := cli.Run(context.Background(), os.Args, version); err != nil {
		os.Exit(1)
	}
}
