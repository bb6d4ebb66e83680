// Package main provides the entry point for the nocmatch CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/nocmatch/cmd/nocmatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
