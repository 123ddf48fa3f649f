package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// WSAddress is the listen address for the WebSocket chat server.
	WSAddress string `env:"WS_ADDRESS" envDefault:":8765"`
	// HTTPAddress is the listen address for the chat-history HTTP server.
	HTTPAddress string `env:"HTTP_ADDRESS" envDefault:":8081"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`

	// EspeakPath is the local synthesis binary used when cloud TTS fails.
	EspeakPath string `env:"ESPEAK_PATH" envDefault:"espeak-ng"`

	LogFile     string `env:"CHAT_LOG_FILE" envDefault:"chat_log.csv"`
	AudioLogDir string `env:"AUDIO_LOG_DIR" envDefault:"audio_logs"`
}

// Load reads .env (if present) and environment variables, returning Config
// with sane defaults. Missing API keys are warned about, never fatal: the
// server still runs and degrades feature by feature.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded")
	}

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	if cfg.GeminiAPIKey == "" {
		log.Println("Warning: GEMINI_API_KEY not set - text generation will not work")
	}
	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set - audio transcription will not work")
	}

	log.Printf("config: WS_ADDRESS=%s HTTP_ADDRESS=%s", cfg.WSAddress, cfg.HTTPAddress)
	return cfg
}
