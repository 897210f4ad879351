// Package main provides the vingo-admin CLI tool for inspecting a running Vingo backend.
package main

import (
	"os"

	"github.com/vingo-app/vingo-backend/cmd/vingo-admin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
