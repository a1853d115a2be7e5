// Package main provides the leapdump command.
package main

import (
	"os"

	"github.com/leapstack-labs/leapdump/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
