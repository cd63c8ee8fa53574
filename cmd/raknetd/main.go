package main

import (
	"os"

	"github.com/opd-ai/raknet/cmd/raknetd/cmd"
)

func main() {
	if err := cmd.Root.Execute(); err != nil {
		os.Exit(1)
	}
}
