package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/zhaopengme/mcprelay/pkg/keychain"
)

func tokenCmd() {
	if len(os.Args) < 3 {
		tokenHelp()
		return
	}

	switch os.Args[2] {
	case "set":
		if len(os.Args) < 4 {
			fmt.Println("Usage: relaybot token set <bot-token>")
			os.Exit(1)
		}
		if err := keychain.Set(keychain.TelegramAccount, os.Args[3]); err != nil {
			fmt.Printf("Error storing token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✓ Token stored in the OS keychain")
	case "delete", "remove":
		if err := keychain.Delete(keychain.TelegramAccount); err != nil {
			fmt.Printf("Error removing token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✓ Token removed from the OS keychain")
	case "status":
		_, err := keychain.Get(keychain.TelegramAccount)
		switch {
		case errors.Is(err, keychain.ErrNotFound):
			fmt.Println("No token stored in the OS keychain")
			return
		case err != nil:
			fmt.Printf("Error reading keychain: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("A token is stored in the OS keychain")
	default:
		fmt.Printf("Unknown token command: %s\n", os.Args[2])
		tokenHelp()
	}
}

func tokenHelp() {
	fmt.Println("\nToken commands:")
	fmt.Println("  set <token>   Store the Telegram bot token")
	fmt.Println("  delete        Remove the stored token")
	fmt.Println("  status        Report whether a token is stored")
}
