// Package main is the kioku CLI entry point.
package main

import (
	"os"

	"github.com/hyperjump/kioku/internal/cli"
)

var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}
