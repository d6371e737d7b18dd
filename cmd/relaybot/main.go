// MCPRelay - Telegram to MCP chat relay
// License: MIT
//
// Copyright (c) 2026 MCPRelay contributors

package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/zhaopengme/mcprelay/pkg/config"
	"github.com/zhaopengme/mcprelay/pkg/logger"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const logo = "🤖"

// formatVersion returns the version string with optional git commit
func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// formatBuildInfo returns build time and go version info
func formatBuildInfo() (build string, goVer string) {
	if buildTime != "" {
		build = buildTime
	}
	goVer = goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return
}

func printVersion() {
	fmt.Printf("%s relaybot %s\n", logo, formatVersion())
	build, goVer := formatBuildInfo()
	if build != "" {
		fmt.Printf("  Build: %s\n", build)
	}
	if goVer != "" {
		fmt.Printf("  Go: %s\n", goVer)
	}
}

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "polling", "run":
		pollingCmd()
	case "webhook", "serve":
		webhookCmd()
	case "chat":
		chatCmd()
	case "token":
		tokenCmd()
	case "config":
		configCmd()
	case "version", "--version", "-v":
		printVersion()
	case "help", "--help", "-h":
		printHelp()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Printf("%s relaybot - Telegram to MCP chat relay\n\n", logo)
	fmt.Printf("Version: %s\n\n", formatVersion())
	fmt.Println("Usage: relaybot <command> [--debug]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  polling     Run the bot with long polling")
	fmt.Println("  webhook     Run the bot behind an HTTP webhook")
	fmt.Println("  chat        Talk to the MCP server from the terminal")
	fmt.Println("  token       Store or remove the bot token in the OS keychain")
	fmt.Println("  config      Write a default config file (config init)")
	fmt.Println("  version     Show version information")
	fmt.Println()
	fmt.Println("Configuration is read from $MCPRELAY_CONFIG (default ./config.json),")
	fmt.Println("then .env, then the environment (TELEGRAM_TOKEN, MCP_SERVER_URL, MCP_MODEL, BOT_URL).")
}

func getConfigPath() string {
	if path := os.Getenv("MCPRELAY_CONFIG"); path != "" {
		return path
	}
	return "config.json"
}

func hasFlag(args []string, names ...string) bool {
	for _, a := range args {
		for _, n := range names {
			if a == n {
				return true
			}
		}
	}
	return false
}

// loadConfig loads and validates configuration for mode and configures
// logging. Any failure here is fatal.
func loadConfig(mode config.Mode) *config.Config {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(mode); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Printf("Warning: %v, using info\n", err)
	}
	if mode == config.ModeConsole && level < logger.WARN {
		level = logger.WARN
	}
	if hasFlag(os.Args[2:], "--debug", "-d") {
		level = logger.DEBUG
	}
	logger.SetLevel(level)

	if cfg.Log.File != "" && mode != config.ModeConsole {
		if err := logger.EnableFileLogging(cfg.Log.File); err != nil {
			fmt.Printf("Warning: %v\n", err)
		}
	}
	return cfg
}
