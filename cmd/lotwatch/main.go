// Package main is the entry point for the lotwatch CLI.
package main

import (
	"os"

	"github.com/lotwatch/lotwatch/cmd/lotwatch/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
