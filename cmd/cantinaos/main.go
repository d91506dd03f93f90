// Command cantinaos boots the event-bus runtime: it wires the bus, every
// core service, the Command Dispatcher's command registry, and a CLI
// stdin loop, then runs until an interrupt is received.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfigPath string
	flagEnvPath    string
)

var rootCmd = &cobra.Command{
	Use:   "cantinaos",
	Short: "CantinaOS - event-bus runtime for an interactive voice character",
	Long: `CantinaOS orchestrates the event bus, service framework, command
dispatcher, timeline executor, brain/planner, memory store, and web bridge
that realize an interactive voice character.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagEnvPath, "env", ".env", "path to a .env file of vendor secrets")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
