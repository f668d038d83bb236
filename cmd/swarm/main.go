package main

import (
	"os"

	"github.com/agentswarm/swarm/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
