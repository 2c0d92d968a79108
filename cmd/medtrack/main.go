// Package main provides the medtrack CLI.
package main

import (
	"os"

	"github.com/mesh-intelligence/medtrack/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
