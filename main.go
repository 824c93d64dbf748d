package main

import (
	"context"
	"fmt"
	"os"

	"github.com/quantfall/arbscan/cmd"
	"github.com/quantfall/arbscan/config"
)

func main() {
	// A missing .env is fine; the config file covers everything.
	_ = config.LoadEnv()

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
