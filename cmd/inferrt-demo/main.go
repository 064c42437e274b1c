// Package main is the single-binary entrypoint for the inferrt demo
// CLI, grounded on Tutu-Engine-tutuengine's cmd/tutu/main.go
// (version set via -ldflags, Execute(version) delegates to the cli
// package's root command).
package main

import "github.com/tutu-network/inferrt/internal/democli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	democli.Execute(version)
}
