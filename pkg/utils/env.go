package utils

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// EnvFile returns the dotenv file named by ENV_FILE, or ".env"
func EnvFile() string {
	if file := os.Getenv("ENV_FILE"); file != "" {
		return file
	}
	return ".env"
}

// LoadEnv loads environment variables from multiple .env files and returns the resulting process
// environment as a map. Variables already set in the environment are never overridden, and earlier
// files win over later ones
func LoadEnv(files ...string) map[string]string {
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			log.Printf("[UTILS]: Warning, could not load %s: %v", file, err)
		}
	}

	config := make(map[string]string)
	for _, env := range os.Environ() {
		if key, value, ok := strings.Cut(env, "="); ok && key != "" {
			config[key] = value
		}
	}

	return config
}
