// Package main is the entry point for the endoforge application.
package main

import (
	"os"

	"github.com/endoforge/endoforge/cmd/endoforge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
