// Package main is the entry point for the tabwarden daemon.
package main

import (
	"os"

	"github.com/tabwarden/tabwarden/cmd/tabwarden/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
