package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/metcalfc/epub2md/cmd"
)

// Version info (injected via ldflags)
var version = "dev"

func main() {
	root := cmd.NewRootCmd()

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
