package helper

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// LLMConfiguration holds the connection parameters for the generation service.
// The endpoint must speak the OpenAI chat-completions protocol.
type LLMConfiguration struct {
	BaseURL string
	APIKey  string
}

// NewLLMConfiguration reads the generation service configuration from the
// environment. A .env file is loaded first when present.
func NewLLMConfiguration() (*LLMConfiguration, error) {
	_ = godotenv.Load()

	config := &LLMConfiguration{
		BaseURL: os.Getenv("LLM_BASE_URL"),
		APIKey:  os.Getenv("LLM_API_KEY"),
	}

	if config.BaseURL == "" {
		config.BaseURL = "https://api.groq.com/openai/v1"
	}
	if config.APIKey == "" {
		return nil, NewError("read llm configuration", fmt.Errorf("LLM_API_KEY must be set"))
	}

	return config, nil
}
