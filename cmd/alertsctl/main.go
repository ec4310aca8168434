// Package main is the entry point for the alertsctl CLI.
package main

import (
	"os"

	"github.com/good-yellow-bee/alertboard/cmd/alertsctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
