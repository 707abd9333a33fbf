//go:build tools

package main

// Developer tooling pinned through the module graph.
import (
	_ "github.com/golangci/golangci-lint/cmd/golangci-lint"
	_ "golang.org/x/vuln/cmd/govulncheck"
)
