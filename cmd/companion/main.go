package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
)

var (
	version   = "dev"
	gitCommit string
)

const appName = "companion-core"

// formatVersion returns the version string with optional git commit
func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func versionLines() []string {
	return []string{
		fmt.Sprintf("%s %s", appName, formatVersion()),
		fmt.Sprintf("  Go: %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := buildRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
