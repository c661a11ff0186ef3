// Package main is the single-binary entrypoint for scalewatch.
package main

import "github.com/scalewatch/scalewatch/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
