package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/zhaopengme/mcprelay/pkg/config"
	"github.com/zhaopengme/mcprelay/pkg/relay"
)

const consoleUserID = "console"

func chatCmd() {
	message := ""
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-m", "--message":
			if i+1 < len(args) {
				message = args[i+1]
				i++
			}
		}
	}

	cfg := loadConfig(config.ModeConsole)
	client := relay.NewClient(cfg.Relay.Endpoint, cfg.Relay.Model, cfg.Relay.RequestTimeout())

	if message != "" {
		fmt.Printf("\n%s %s\n", logo, client.Relay(context.Background(), consoleUserID, message))
		return
	}

	fmt.Printf("%s Interactive mode against %s (Ctrl+C to exit)\n\n", logo, client.Endpoint())
	interactiveMode(client)
}

func interactiveMode(client *relay.Client) {
	prompt := fmt.Sprintf("%s You: ", logo)

	home, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(home, ".mcprelay_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return
		}

		fmt.Printf("\n%s %s\n\n", logo, client.Relay(context.Background(), consoleUserID, input))
	}
}
