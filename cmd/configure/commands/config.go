package commands

import (
	"fmt"

	"github.com/benvon/food-delivery/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCmd creates the config command with show and validate subcommands.
func NewConfigCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
		Long:  "Show or validate the configuration the API server would start with (defaults, config file, .env and environment).",
	}
	cmd.AddCommand(newConfigShowCmd(configFile))
	cmd.AddCommand(newConfigValidateCmd(configFile))
	return cmd
}

func newConfigShowCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out, err := yaml.Marshal(redacted(cfg))
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newConfigValidateCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that the configuration is valid",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(*configFile); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid.")
			return nil
		},
	}
}

// redacted returns a copy of cfg without credentials embedded in connection URIs
func redacted(cfg *config.Config) *config.Config {
	c := *cfg
	c.MongoDBURI = redactURI(c.MongoDBURI)
	c.RedisURL = redactURI(c.RedisURL)
	return &c
}
