// Package main provides the entry point for the maven CLI.
package main

import (
	"os"

	"github.com/rizkaitbrik/maven/cmd/maven/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
