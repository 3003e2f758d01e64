package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ethanbaker/chatbot/pkg/sdk"
	"github.com/ethanbaker/chatbot/pkg/utils"
)

func main() {
	// Load global config
	cfg := utils.NewConfigFromEnv(utils.EnvFile())

	client := sdk.NewClient(cfg.GetWithDefault("API_URL", "http://localhost:8000"))

	// Start interactive session
	ctx := context.Background()
	if err := startInteractiveSession(ctx, client); err != nil {
		log.Fatalf("[COMMANDLINE]: Failed to run interactive session: %v", err)
	}
}

// startInteractiveSession reads messages from stdin and prints the bot's replies. The session id
// returned by the first reply is reused for every following message
func startInteractiveSession(ctx context.Context, client *sdk.Client) error {
	fmt.Println("Chatbot started. Type 'exit' to quit or '/reset' to start a new session.")

	sessionID := ""

	// Create scanner for reading user input
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("\n> ")

		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())

		if input == "exit" {
			break
		}

		if input == "" {
			continue
		}

		if input == "/reset" {
			if sessionID != "" {
				if err := client.DeleteSession(ctx, sessionID); err != nil && !sdk.IsNotFound(err) {
					fmt.Printf("Error: %v\n", err)
				}
			}
			sessionID = ""
			fmt.Println("Session reset.")
			continue
		}

		resp, err := client.Chat(ctx, sessionID, input)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		if resp.SessionID != sessionID {
			fmt.Printf("Session: %s\n", resp.SessionID)
			sessionID = resp.SessionID
		}

		fmt.Printf("Bot: %s\n", resp.Response)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}

	return nil
}
