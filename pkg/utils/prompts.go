package utils

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// LoadPrompt reads a prompt file and returns its trimmed content
func LoadPrompt(filePath string) (string, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file %s: %w", filePath, err)
	}

	prompt := strings.TrimSpace(string(content))
	if prompt == "" {
		return "", fmt.Errorf("prompt file %s is empty", filePath)
	}

	return prompt, nil
}

// LoadPromptWithFallback loads a prompt file, returning fallback when it is missing or empty
func LoadPromptWithFallback(filePath, fallback string) string {
	content, err := LoadPrompt(filePath)
	if err != nil {
		log.Printf("[UTILS]: Warning, using fallback prompt: %v", err)
		return fallback
	}
	return content
}
