package main

import (
	"os"

	"github.com/lpdev/bitpredector/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
