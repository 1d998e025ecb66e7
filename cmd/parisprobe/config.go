package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/KilimcininKorOglu/parisprobe/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("parisprobe %s\n", version)
		fmt.Printf("  Commit: %s\n", commit)
		fmt.Printf("  Built:  %s\n", date)
		fmt.Printf("  Config: %s\n", config.GetConfigPath())
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage the parisprobe configuration file.

Commands:
  parisprobe config --init       Create default config file
  parisprobe config --show       Show the configuration in effect
  parisprobe config --example    Show a commented example
  parisprobe config --path       Show config file path`,
	RunE: runConfig,
}

var (
	configInit    bool
	configShow    bool
	configExample bool
	configPath    bool
)

func init() {
	configCmd.Flags().BoolVar(&configInit, "init", false, "Create default config file")
	configCmd.Flags().BoolVar(&configShow, "show", false, "Show the configuration in effect")
	configCmd.Flags().BoolVar(&configExample, "example", false, "Show a commented example")
	configCmd.Flags().BoolVar(&configPath, "path", false, "Show config file path")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if configPath {
		fmt.Println(config.GetConfigPath())
		return nil
	}

	if configInit {
		path := config.GetConfigPath()
		if cfgFile != "" {
			path = cfgFile
		}

		// Check if file already exists
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}

		// Create default config
		if err := config.DefaultConfig().SaveTo(path); err != nil {
			return fmt.Errorf("failed to create config: %w", err)
		}

		fmt.Printf("Created config file: %s\n", path)
		fmt.Println("\nEdit this file to customize defaults.")
		fmt.Println("Example: Set 'probe_method: udp' under 'defaults:' to trace with UDP.")
		return nil
	}

	if configShow {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	}

	if configExample {
		fmt.Println(config.GenerateExample())
		return nil
	}

	// No flag specified, show help
	return cmd.Help()
}
