package main

import (
	"github.com/ethanbaker/chatbot/internal/api"
	"github.com/ethanbaker/chatbot/pkg/utils"
)

// Start the API server
func main() {
	// Load global config
	cfg := utils.NewConfigFromEnv(utils.EnvFile())

	// Start
	api.Start(cfg)
}
