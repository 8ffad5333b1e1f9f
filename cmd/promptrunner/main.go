// Package main is the entry point for the promptrunner CLI.
package main

import (
	"os"

	"github.com/supremeagent/promptrunner/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
