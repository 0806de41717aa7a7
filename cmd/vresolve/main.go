package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/guiyumin/vresolve/internal/cli"
	"github.com/guiyumin/vresolve/internal/core/version"
)

func main() {
	if err := fang.Execute(
		context.Background(),
		cli.Root(),
		fang.WithVersion(version.Version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
