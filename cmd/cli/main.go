package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/myrjola/lorebook/cmd/cli/build"
	"github.com/myrjola/lorebook/cmd/cli/seed"
	"github.com/spf13/cobra"
)

func init() {
	// Missing .env is fine for the CLI, environment may come from the shell.
	_ = godotenv.Load()
	rootCmd.AddGroup(seed.Group)
	rootCmd.AddCommand(seed.Seed)
	rootCmd.AddGroup(build.Group)
	rootCmd.AddCommand(build.Build)
}

var rootCmd = &cobra.Command{
	Use:  "lorebook-cli",
	Long: `Command line utilities for Lorebook https://github.com/myrjola/lorebook`,
	Run: func(cmd *cobra.Command, args []string) {
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
