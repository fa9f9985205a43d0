package main

import (
	"os"

	"github.com/garyjia/koe-workflow/internal/cli"
)

func main() {
	if err := cli.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
