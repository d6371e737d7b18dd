package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/zhaopengme/mcprelay/pkg/config"
)

var errConfigExists = errors.New("config file already exists (use --force to overwrite)")

func configCmd() {
	if len(os.Args) < 3 {
		configHelp()
		return
	}

	switch os.Args[2] {
	case "init":
		path := getConfigPath()
		if err := initConfig(path, hasFlag(os.Args[3:], "--force", "-f")); err != nil {
			fmt.Printf("Error writing config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Default config written to %s\n", path)
	default:
		fmt.Printf("Unknown config command: %s\n", os.Args[2])
		configHelp()
	}
}

// initConfig writes the default configuration to path. An existing file is
// kept unless force is set.
func initConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errConfigExists
		}
	}
	return config.SaveConfig(path, config.DefaultConfig())
}

func configHelp() {
	fmt.Println("\nConfig commands:")
	fmt.Println("  init [--force]   Write the default config to $MCPRELAY_CONFIG")
}
