package main

import (
	"fmt"
	"os"

	"github.com/benvon/food-delivery/cmd/configure/commands"
	"github.com/spf13/cobra"
)

func main() {
	var configFile string

	var rootCmd = &cobra.Command{
		Use:   "food-delivery-configure",
		Short: "Operations tool for the Food Delivery API",
		Long:  "CLI tool for checking configuration, backing services and rate limit counters",
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file (overrides CONFIG_FILE)")

	rootCmd.AddCommand(commands.NewConfigCmd(&configFile))
	rootCmd.AddCommand(commands.NewRatelimitCmd(&configFile))
	rootCmd.AddCommand(commands.NewTestCmd(&configFile))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
