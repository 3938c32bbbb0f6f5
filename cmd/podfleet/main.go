package main

import (
	"os"

	"github.com/danpasecinic/podfleet/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
