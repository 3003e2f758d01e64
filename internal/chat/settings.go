package chat

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethanbaker/chatbot/internal/stores/session"
	"github.com/ethanbaker/chatbot/pkg/provider"
	"github.com/ethanbaker/chatbot/pkg/utils"
	"gopkg.in/yaml.v3"
)

// UnknownSessionPolicy decides what happens when a caller sends a session id the store does not know
type UnknownSessionPolicy string

const (
	// CreateUnknown silently starts a new session and returns its id
	CreateUnknown UnknownSessionPolicy = "create"

	// RejectUnknown fails the turn with ErrSessionNotFound
	RejectUnknown UnknownSessionPolicy = "reject"
)

// ParseUnknownSessionPolicy parses a policy name
func ParseUnknownSessionPolicy(value string) (UnknownSessionPolicy, error) {
	switch UnknownSessionPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", CreateUnknown:
		return CreateUnknown, nil
	case RejectUnknown:
		return RejectUnknown, nil
	}
	return "", fmt.Errorf("unknown session policy %q (expected create or reject)", value)
}

const DefaultSystemPrompt = "You are a person chatting with the user. Keep the conversation natural and friendly."

// Settings is the process-wide chat configuration, read once at startup
type Settings struct {
	SystemPrompt   string
	Params         provider.Params
	MaxMessages    int
	UnknownSession UnknownSessionPolicy
}

// DefaultSettings returns the settings used when nothing is configured
func DefaultSettings() Settings {
	return Settings{
		SystemPrompt: DefaultSystemPrompt,
		Params: provider.Params{
			Model:       "gpt-4",
			Temperature: 0.7,
			MaxTokens:   2000,
		},
		MaxMessages:    session.DefaultMaxMessages,
		UnknownSession: CreateUnknown,
	}
}

// fileSettings is the YAML layout of CHAT_CONFIG_PATH. Unset fields keep their current value
type fileSettings struct {
	Model          *string  `yaml:"model"`
	Temperature    *float64 `yaml:"temperature"`
	MaxTokens      *int     `yaml:"max_tokens"`
	MaxMessages    *int     `yaml:"max_messages"`
	SystemPrompt   *string  `yaml:"system_prompt"`
	UnknownSession *string  `yaml:"unknown_session"`
}

// LoadSettings builds Settings from the environment config. Values in the YAML file named by
// CHAT_CONFIG_PATH take precedence over environment values
func LoadSettings(cfg *utils.Config) (Settings, error) {
	settings := DefaultSettings()

	settings.Params.Model = cfg.GetWithDefault("OPENAI_MODEL", settings.Params.Model)
	settings.Params.Temperature = cfg.GetFloatWithDefault("TEMPERATURE", settings.Params.Temperature)
	settings.Params.MaxTokens = cfg.GetIntWithDefault("MAX_TOKENS", settings.Params.MaxTokens)
	settings.MaxMessages = cfg.GetIntWithDefault("MAX_MESSAGES", settings.MaxMessages)

	// System prompt from text, then from file
	settings.SystemPrompt = cfg.GetWithDefault("SYSTEM_PROMPT", settings.SystemPrompt)
	if path := cfg.Get("SYSTEM_PROMPT_PATH"); path != "" {
		settings.SystemPrompt = utils.LoadPromptWithFallback(path, settings.SystemPrompt)
	}

	policy, err := ParseUnknownSessionPolicy(cfg.Get("UNKNOWN_SESSION_POLICY"))
	if err != nil {
		return Settings{}, err
	}
	settings.UnknownSession = policy

	if path := cfg.Get("CHAT_CONFIG_PATH"); path != "" {
		if err := settings.overlayFile(path); err != nil {
			return Settings{}, err
		}
	}

	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}

	return settings, nil
}

// overlayFile applies the values set in a YAML settings file
func (s *Settings) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read chat config file: %w", err)
	}

	var file fileSettings
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse chat config file: %w", err)
	}

	if file.Model != nil {
		s.Params.Model = *file.Model
	}
	if file.Temperature != nil {
		s.Params.Temperature = *file.Temperature
	}
	if file.MaxTokens != nil {
		s.Params.MaxTokens = *file.MaxTokens
	}
	if file.MaxMessages != nil {
		s.MaxMessages = *file.MaxMessages
	}
	if file.SystemPrompt != nil {
		s.SystemPrompt = strings.TrimSpace(*file.SystemPrompt)
	}
	if file.UnknownSession != nil {
		policy, err := ParseUnknownSessionPolicy(*file.UnknownSession)
		if err != nil {
			return err
		}
		s.UnknownSession = policy
	}

	return nil
}

// Validate checks the settings and normalises the trim window
func (s *Settings) Validate() error {
	if s.Params.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if s.Params.Temperature < 0 || s.Params.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", s.Params.Temperature)
	}
	if s.Params.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", s.Params.MaxTokens)
	}
	if s.SystemPrompt == "" {
		return fmt.Errorf("system prompt cannot be empty")
	}
	if s.MaxMessages < 3 {
		return fmt.Errorf("max messages must be at least 3 to keep one exchange, got %d", s.MaxMessages)
	}

	s.MaxMessages = session.NormalizeWindow(s.MaxMessages)
	return nil
}
